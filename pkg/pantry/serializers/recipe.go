package serializers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mikepea/pantry/pkg/pantry/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Mode selects which fields a payload must carry and how omitted fields are treated.
type Mode int

const (
	// ModeCreate requires every required field; omitted optional fields are empty.
	ModeCreate Mode = iota
	// ModeReplace (PUT) behaves like ModeCreate on an existing row.
	ModeReplace
	// ModePatch only touches the fields present in the payload.
	ModePatch
)

var maxPrice = decimal.NewFromInt(1000)

// NameInput is a nested tag or ingredient reference.
type NameInput struct {
	Name string `json:"name" validate:"required,max=255"`
}

// RecipeInput is a decoded recipe payload. Every field keeps track of whether
// it was sent, so a missing "tags" key and "tags": [] mean different things.
type RecipeInput struct {
	Title       Optional[string]
	TimeMinutes Optional[int]
	Price       Optional[decimal.Decimal]
	Link        Optional[string]
	Description Optional[string]
	Tags        Optional[[]NameInput]
	Ingredients Optional[[]NameInput]
}

// NameResponse is the {id, name} shape used for tags and ingredients.
type NameResponse struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// RecipeResponse is the summary representation used by list views.
type RecipeResponse struct {
	ID          uint           `json:"id"`
	Title       string         `json:"title"`
	TimeMinutes int            `json:"time_minutes"`
	Price       string         `json:"price"`
	Link        string         `json:"link"`
	Tags        []NameResponse `json:"tags"`
	Ingredients []NameResponse `json:"ingredients"`
}

// RecipeDetailResponse adds the description to the summary.
type RecipeDetailResponse struct {
	RecipeResponse
	Description string `json:"description"`
}

// DecodeRecipe parses a recipe payload. Keys the client may not write
// (id, user, timestamps) are ignored. Type errors are reported per field.
func DecodeRecipe(body []byte) (RecipeInput, error) {
	raw, err := decodeFields(body)
	if err != nil {
		return RecipeInput{}, err
	}

	var in RecipeInput
	errs := FieldErrors{}
	decodeField(raw, "title", &in.Title, msgString, errs)
	decodeInteger(raw, "time_minutes", &in.TimeMinutes, errs)
	decodeField(raw, "price", &in.Price, msgNumber, errs)
	decodeField(raw, "link", &in.Link, msgString, errs)
	decodeField(raw, "description", &in.Description, msgString, errs)
	decodeField(raw, "tags", &in.Tags, msgList, errs)
	decodeField(raw, "ingredients", &in.Ingredients, msgList, errs)

	in.Title.Value = strings.TrimSpace(in.Title.Value)
	in.Link.Value = strings.TrimSpace(in.Link.Value)
	in.Description.Value = strings.TrimSpace(in.Description.Value)
	trimNames(in.Tags.Value)
	trimNames(in.Ingredients.Value)

	return in, errs.Err()
}

// ParseRecipe decodes body and validates it for mode. Type errors and
// validation errors are reported together; a field with a type error only
// carries that message.
func ParseRecipe(body []byte, mode Mode) (RecipeInput, error) {
	in, err := DecodeRecipe(body)
	var typeErrs FieldErrors
	if err != nil && !errors.As(err, &typeErrs) {
		return RecipeInput{}, err
	}

	errs := FieldErrors{}
	var validationErrs FieldErrors
	if err := in.Validate(mode); err != nil && !errors.As(err, &validationErrs) {
		return in, err
	}
	for field, msgs := range validationErrs {
		if !coveredBy(typeErrs, field) {
			errs[field] = msgs
		}
	}
	for field, msgs := range typeErrs {
		errs[field] = msgs
	}
	return in, errs.Err()
}

// coveredBy reports whether field, or the list it is nested in, already has an error.
func coveredBy(errs FieldErrors, field string) bool {
	if _, ok := errs[field]; ok {
		return true
	}
	if i := strings.IndexByte(field, '['); i > 0 {
		_, ok := errs[field[:i]]
		return ok
	}
	return false
}

func trimNames(items []NameInput) {
	for i := range items {
		items[i].Name = strings.TrimSpace(items[i].Name)
	}
}

// Validate checks presence for mode and the value constraints of every sent field.
func (in RecipeInput) Validate(mode Mode) error {
	errs := FieldErrors{}
	required := mode != ModePatch

	checkPresence(errs, "title", in.Title.Set, in.Title.Null, required)
	checkPresence(errs, "time_minutes", in.TimeMinutes.Set, in.TimeMinutes.Null, required)
	checkPresence(errs, "price", in.Price.Set, in.Price.Null, required)
	checkPresence(errs, "link", in.Link.Set, in.Link.Null, false)
	checkPresence(errs, "description", in.Description.Set, in.Description.Null, false)
	checkPresence(errs, "tags", in.Tags.Set, in.Tags.Null, false)
	checkPresence(errs, "ingredients", in.Ingredients.Set, in.Ingredients.Null, false)

	if in.Title.Set && !in.Title.Null {
		validateVar(errs, "title", in.Title.Value, "required,max=255")
	}
	if in.Link.Set && !in.Link.Null {
		validateVar(errs, "link", in.Link.Value, "max=255")
	}
	if in.Price.Set && !in.Price.Null {
		checkPrice(errs, in.Price.Value)
	}
	if in.Tags.Set {
		checkNames(errs, "tags", in.Tags.Value)
	}
	if in.Ingredients.Set {
		checkNames(errs, "ingredients", in.Ingredients.Value)
	}

	return errs.Err()
}

func checkPresence(errs FieldErrors, field string, set, null, required bool) {
	switch {
	case null:
		errs.Add(field, msgNull)
	case !set && required:
		errs.Add(field, msgRequired)
	}
}

func checkPrice(errs FieldErrors, price decimal.Decimal) {
	if !price.Equal(price.Round(2)) {
		errs.Add("price", "Ensure that there are no more than 2 decimal places.")
	}
	if price.Abs().GreaterThanOrEqual(maxPrice) {
		errs.Add("price", "Ensure that there are no more than 5 digits in total.")
	}
}

func checkNames(errs FieldErrors, field string, items []NameInput) {
	for i, item := range items {
		itemErrs := FieldErrors{}
		validateStruct(item, itemErrs)
		errs.Merge(fmt.Sprintf("%s[%d].", field, i), itemErrs)
	}
}

// Apply writes the scalar fields onto recipe. Ownership and id are never touched.
func (in RecipeInput) Apply(recipe *models.Recipe, mode Mode) {
	if in.Title.Set {
		recipe.Title = in.Title.Value
	}
	if in.TimeMinutes.Set {
		recipe.TimeMinutes = in.TimeMinutes.Value
	}
	if in.Price.Set {
		recipe.Price = in.Price.Value
	}

	if mode == ModePatch {
		if in.Link.Set {
			recipe.Link = in.Link.Value
		}
		if in.Description.Set {
			recipe.Description = in.Description.Value
		}
		return
	}
	recipe.Link = in.Link.Or("")
	recipe.Description = in.Description.Or("")
}

// SaveRecipe applies in to recipe and persists it for userID inside tx.
// With ModeCreate a new row owned by userID is inserted; otherwise recipe must
// already be a row owned by userID. Nested tags and ingredients are resolved
// under userID and replace the current set only when present in the payload.
func SaveRecipe(tx *gorm.DB, userID uint, recipe *models.Recipe, in RecipeInput, mode Mode) error {
	in.Apply(recipe, mode)

	if mode == ModeCreate {
		recipe.ID = 0
		recipe.UserID = userID
		if err := tx.Omit(clause.Associations).Create(recipe).Error; err != nil {
			return fmt.Errorf("create recipe: %w", err)
		}
	} else {
		if recipe.UserID != userID {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Omit(clause.Associations).Save(recipe).Error; err != nil {
			return fmt.Errorf("update recipe: %w", err)
		}
	}

	if in.Tags.Set {
		tags, err := ResolveTags(tx, userID, in.Tags.Value)
		if err != nil {
			return err
		}
		if err := replaceAssociation(tx, recipe, "Tags", tags); err != nil {
			return err
		}
	}
	if in.Ingredients.Set {
		ingredients, err := ResolveIngredients(tx, userID, in.Ingredients.Value)
		if err != nil {
			return err
		}
		if err := replaceAssociation(tx, recipe, "Ingredients", ingredients); err != nil {
			return err
		}
	}

	return nil
}

func replaceAssociation[T any](tx *gorm.DB, recipe *models.Recipe, name string, rows []T) error {
	assoc := tx.Model(recipe).Association(name)
	if err := assoc.Clear(); err != nil {
		return fmt.Errorf("clear %s: %w", name, err)
	}
	if len(rows) == 0 {
		return nil
	}
	if err := assoc.Append(rows); err != nil {
		return fmt.Errorf("attach %s: %w", name, err)
	}
	return nil
}

// ResolveTags gets or creates each named tag for userID. Repeated names map to one tag.
func ResolveTags(tx *gorm.DB, userID uint, items []NameInput) ([]models.Tag, error) {
	tags := make([]models.Tag, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if seen[item.Name] {
			continue
		}
		seen[item.Name] = true
		tag, err := models.GetOrCreateTag(tx, userID, item.Name)
		if err != nil {
			return nil, fmt.Errorf("resolve tag %q: %w", item.Name, err)
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

// ResolveIngredients gets or creates each named ingredient for userID.
func ResolveIngredients(tx *gorm.DB, userID uint, items []NameInput) ([]models.Ingredient, error) {
	ingredients := make([]models.Ingredient, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if seen[item.Name] {
			continue
		}
		seen[item.Name] = true
		ingredient, err := models.GetOrCreateIngredient(tx, userID, item.Name)
		if err != nil {
			return nil, fmt.Errorf("resolve ingredient %q: %w", item.Name, err)
		}
		ingredients = append(ingredients, ingredient)
	}
	return ingredients, nil
}

// LoadRecipe fetches userID's recipe with its tags and ingredients.
func LoadRecipe(db *gorm.DB, userID, id uint) (models.Recipe, error) {
	var recipe models.Recipe
	err := PreloadNested(db).Scopes(models.OwnedBy(userID)).Where("id = ?", id).Take(&recipe).Error
	return recipe, err
}

// PreloadNested preloads tags and ingredients ordered by id.
func PreloadNested(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Tags", func(db *gorm.DB) *gorm.DB { return db.Order("tags.id") }).
		Preload("Ingredients", func(db *gorm.DB) *gorm.DB { return db.Order("ingredients.id") })
}

// NewRecipeResponse renders the summary representation.
func NewRecipeResponse(recipe models.Recipe) RecipeResponse {
	tags := make([]NameResponse, len(recipe.Tags))
	for i, t := range recipe.Tags {
		tags[i] = NameResponse{ID: t.ID, Name: t.Name}
	}
	ingredients := make([]NameResponse, len(recipe.Ingredients))
	for i, ing := range recipe.Ingredients {
		ingredients[i] = NameResponse{ID: ing.ID, Name: ing.Name}
	}

	return RecipeResponse{
		ID:          recipe.ID,
		Title:       recipe.Title,
		TimeMinutes: recipe.TimeMinutes,
		Price:       recipe.Price.StringFixed(2),
		Link:        recipe.Link,
		Tags:        tags,
		Ingredients: ingredients,
	}
}

// NewRecipeDetailResponse renders the detail representation.
func NewRecipeDetailResponse(recipe models.Recipe) RecipeDetailResponse {
	return RecipeDetailResponse{
		RecipeResponse: NewRecipeResponse(recipe),
		Description:    recipe.Description,
	}
}
