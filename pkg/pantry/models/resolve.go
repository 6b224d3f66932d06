package models

import (
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetOrCreateTag returns userID's tag called name, creating it if needed.
// Surrounding whitespace is not part of the name.
func GetOrCreateTag(tx *gorm.DB, userID uint, name string) (Tag, error) {
	name = strings.TrimSpace(name)
	var tag Tag
	err := tx.Scopes(OwnedBy(userID)).Where("name = ?", name).Take(&tag).Error
	if err == nil || !errors.Is(err, gorm.ErrRecordNotFound) {
		return tag, err
	}

	tag = Tag{UserID: userID, Name: name}
	if err := insertIgnoringConflict(tx, &tag); err != nil {
		return Tag{}, err
	}
	if tag.ID != 0 {
		return tag, nil
	}
	// A concurrent request inserted the same name first
	err = tx.Scopes(OwnedBy(userID)).Where("name = ?", name).Take(&tag).Error
	return tag, err
}

// GetOrCreateIngredient returns userID's ingredient called name, creating it if needed.
func GetOrCreateIngredient(tx *gorm.DB, userID uint, name string) (Ingredient, error) {
	name = strings.TrimSpace(name)
	var ingredient Ingredient
	err := tx.Scopes(OwnedBy(userID)).Where("name = ?", name).Take(&ingredient).Error
	if err == nil || !errors.Is(err, gorm.ErrRecordNotFound) {
		return ingredient, err
	}

	ingredient = Ingredient{UserID: userID, Name: name}
	if err := insertIgnoringConflict(tx, &ingredient); err != nil {
		return Ingredient{}, err
	}
	if ingredient.ID != 0 {
		return ingredient, nil
	}
	err = tx.Scopes(OwnedBy(userID)).Where("name = ?", name).Take(&ingredient).Error
	return ingredient, err
}

// insertIgnoringConflict relies on the (user_id, name) unique index; on conflict
// nothing is written and the primary key stays zero.
func insertIgnoringConflict(tx *gorm.DB, row interface{}) error {
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error
}
