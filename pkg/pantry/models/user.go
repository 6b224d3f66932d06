package models

import (
	"time"

	"gorm.io/gorm"
)

// User is an account that owns recipes, tags and ingredients
type User struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Email        string    `gorm:"uniqueIndex;not null;size:255" json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `gorm:"not null;size:255" json:"name"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
	IsStaff      bool      `gorm:"not null;default:false" json:"is_staff"`
	IsSuperuser  bool      `gorm:"not null;default:false" json:"is_superuser"`

	// Relationships
	Recipes     []Recipe     `gorm:"foreignKey:UserID" json:"recipes,omitempty"`
	Tags        []Tag        `gorm:"foreignKey:UserID" json:"tags,omitempty"`
	Ingredients []Ingredient `gorm:"foreignKey:UserID" json:"ingredients,omitempty"`
	APITokens   []APIToken   `gorm:"foreignKey:UserID" json:"api_tokens,omitempty"`
}

// BeforeSave normalizes the email so lookups are consistent.
func (u *User) BeforeSave(tx *gorm.DB) error {
	u.Email = NormalizeEmail(u.Email)
	return nil
}
