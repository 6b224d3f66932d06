package models

import "time"

// Ingredient is an item used in a user's recipes.
// Names are unique per user, not globally.
type Ingredient struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_ingredient_user_name" json:"user_id"`
	Name      string    `gorm:"not null;size:255;uniqueIndex:idx_ingredient_user_name" json:"name"`

	// Relationships
	User    User     `gorm:"foreignKey:UserID" json:"-"`
	Recipes []Recipe `gorm:"many2many:recipe_ingredients;" json:"recipes,omitempty"`
}
