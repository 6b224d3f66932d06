package recipes

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/pantry/pkg/pantry/auth"
	"github.com/mikepea/pantry/pkg/pantry/middleware"
	"github.com/mikepea/pantry/pkg/pantry/models"
	"github.com/mikepea/pantry/pkg/pantry/serializers"
	"gorm.io/gorm"
)

// Handler handles recipe requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new recipes handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// parseID reads the :id path parameter. A malformed id is reported as not found.
func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

// List returns the user's recipes, newest first.
// Optional filters: ?tags=1,2 and ?ingredients=3 keep recipes carrying any of the ids.
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	db := h.db.WithContext(c.Request.Context())

	query := serializers.PreloadNested(db).Scopes(models.OwnedBy(userID)).Order("id DESC")

	filters := []struct {
		param, table, column string
	}{
		{"tags", "recipe_tags", "tag_id"},
		{"ingredients", "recipe_ingredients", "ingredient_id"},
	}
	for _, f := range filters {
		raw := c.Query(f.param)
		if raw == "" {
			continue
		}
		ids, err := serializers.ParseIDList(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + f.param + " filter"})
			return
		}
		sub := db.Table(f.table).Select("recipe_id").Where(f.column+" IN ?", ids)
		query = query.Where("id IN (?)", sub)
	}

	var recipes []models.Recipe
	if err := query.Find(&recipes).Error; err != nil {
		middleware.LoggerFrom(c).Error("list recipes", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch recipes"})
		return
	}

	responses := make([]serializers.RecipeResponse, len(recipes))
	for i, recipe := range recipes {
		responses[i] = serializers.NewRecipeResponse(recipe)
	}

	c.JSON(http.StatusOK, responses)
}

// Retrieve returns one of the user's recipes with its description
func (h *Handler) Retrieve(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	id, ok := parseID(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Recipe not found"})
		return
	}

	recipe, err := serializers.LoadRecipe(h.db.WithContext(c.Request.Context()), userID, id)
	if err != nil {
		h.lookupFailed(c, err)
		return
	}

	c.JSON(http.StatusOK, serializers.NewRecipeDetailResponse(recipe))
}

// Create creates a recipe owned by the requesting user
func (h *Handler) Create(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	in, ok := decodeRecipe(c, serializers.ModeCreate)
	if !ok {
		return
	}

	var recipe models.Recipe
	h.save(c, userID, &recipe, in, serializers.ModeCreate, http.StatusCreated)
}

// Update replaces a recipe (PUT)
func (h *Handler) Update(c *gin.Context) {
	h.update(c, serializers.ModeReplace)
}

// PartialUpdate changes only the supplied fields (PATCH)
func (h *Handler) PartialUpdate(c *gin.Context) {
	h.update(c, serializers.ModePatch)
}

func (h *Handler) update(c *gin.Context, mode serializers.Mode) {
	userID, _ := auth.GetUserID(c)
	id, ok := parseID(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Recipe not found"})
		return
	}

	var recipe models.Recipe
	err := h.db.WithContext(c.Request.Context()).
		Scopes(models.OwnedBy(userID)).Where("id = ?", id).Take(&recipe).Error
	if err != nil {
		h.lookupFailed(c, err)
		return
	}

	in, ok := decodeRecipe(c, mode)
	if !ok {
		return
	}

	h.save(c, userID, &recipe, in, mode, http.StatusOK)
}

// Delete removes a recipe. Its tags and ingredients are kept.
func (h *Handler) Delete(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	id, ok := parseID(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Recipe not found"})
		return
	}

	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var recipe models.Recipe
		if err := tx.Scopes(models.OwnedBy(userID)).Where("id = ?", id).Take(&recipe).Error; err != nil {
			return err
		}
		return DeleteRecipe(tx, &recipe)
	})
	if err != nil {
		h.lookupFailed(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// DeleteRecipe detaches recipe from its tags and ingredients and deletes it.
func DeleteRecipe(tx *gorm.DB, recipe *models.Recipe) error {
	if err := tx.Model(recipe).Association("Tags").Clear(); err != nil {
		return err
	}
	if err := tx.Model(recipe).Association("Ingredients").Clear(); err != nil {
		return err
	}
	return tx.Delete(recipe).Error
}

// decodeRecipe reads and validates the request body. On failure it writes the
// 400 response and returns false.
func decodeRecipe(c *gin.Context, mode serializers.Mode) (serializers.RecipeInput, bool) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return serializers.RecipeInput{}, false
	}

	in, err := serializers.ParseRecipe(body, mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, serializers.ErrorBody(err))
		return serializers.RecipeInput{}, false
	}
	return in, true
}

// save persists in onto recipe in one transaction and renders the detail view.
func (h *Handler) save(c *gin.Context, userID uint, recipe *models.Recipe, in serializers.RecipeInput, mode serializers.Mode, status int) {
	db := h.db.WithContext(c.Request.Context())

	err := db.Transaction(func(tx *gorm.DB) error {
		return serializers.SaveRecipe(tx, userID, recipe, in, mode)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Recipe not found"})
			return
		}
		middleware.LoggerFrom(c).Error("save recipe", "error", err, "recipe_id", recipe.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save recipe"})
		return
	}

	saved, err := serializers.LoadRecipe(db, userID, recipe.ID)
	if err != nil {
		middleware.LoggerFrom(c).Error("reload recipe", "error", err, "recipe_id", recipe.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch recipe"})
		return
	}

	c.JSON(status, serializers.NewRecipeDetailResponse(saved))
}

func (h *Handler) lookupFailed(c *gin.Context, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Recipe not found"})
		return
	}
	middleware.LoggerFrom(c).Error("fetch recipe", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch recipe"})
}

// RegisterRoutes registers recipe routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/recipes/", h.List)
	rg.POST("/recipes/", h.Create)
	rg.GET("/recipes/:id/", h.Retrieve)
	rg.PUT("/recipes/:id/", h.Update)
	rg.PATCH("/recipes/:id/", h.PartialUpdate)
	rg.DELETE("/recipes/:id/", h.Delete)
}
