package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Recipe represents a user's recipe
type Recipe struct {
	ID          uint            `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	UserID      uint            `gorm:"not null;index" json:"user_id"`
	Title       string          `gorm:"not null;size:255" json:"title"`
	TimeMinutes int             `gorm:"not null" json:"time_minutes"`
	Price       decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"price"`
	Link        string          `gorm:"size:255" json:"link"`
	Description string          `gorm:"type:text" json:"description"`

	// Relationships
	User        User         `gorm:"foreignKey:UserID" json:"-"`
	Tags        []Tag        `gorm:"many2many:recipe_tags;" json:"tags"`
	Ingredients []Ingredient `gorm:"many2many:recipe_ingredients;" json:"ingredients"`
}
