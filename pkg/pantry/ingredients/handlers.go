package ingredients

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

var errNameTaken = errors.New("ingredient name taken")

// Handler handles ingredient requests. Ingredients are created through recipes.
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new ingredients handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

func toResponse(ingredient models.Ingredient) serializers.NameResponse {
	return serializers.NameResponse{ID: ingredient.ID, Name: ingredient.Name}
}

// List returns the user's ingredients ordered by name descending
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	db := h.db.WithContext(c.Request.Context())

	assignedOnly, err := serializers.ParseFlag(c.Query("assigned_only"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid assigned_only value"})
		return
	}

	query := db.Scopes(models.OwnedBy(userID)).Order("name DESC")
	if assignedOnly {
		query = query.Where("id IN (?)", db.Table("recipe_ingredients").Select("ingredient_id"))
	}

	var ingredients []models.Ingredient
	if err := query.Find(&ingredients).Error; err != nil {
		middleware.LoggerFrom(c).Error("list ingredients", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch ingredients"})
		return
	}

	responses := make([]serializers.NameResponse, len(ingredients))
	for i, ingredient := range ingredients {
		responses[i] = toResponse(ingredient)
	}

	c.JSON(http.StatusOK, responses)
}

// Update renames an ingredient (PUT)
func (h *Handler) Update(c *gin.Context) {
	h.update(c, serializers.ModeReplace)
}

// PartialUpdate renames an ingredient if a name is supplied (PATCH)
func (h *Handler) PartialUpdate(c *gin.Context) {
	h.update(c, serializers.ModePatch)
}

func (h *Handler) update(c *gin.Context, mode serializers.Mode) {
	userID, _ := auth.GetUserID(c)
	ingredient, ok := h.lookup(c, userID)
	if !ok {
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}
	in, err := serializers.DecodeName(body, mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, serializers.ErrorBody(err))
		return
	}

	if in.Name.Set && in.Name.Value != ingredient.Name {
		err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
			var count int64
			if err := tx.Model(&models.Ingredient{}).Scopes(models.OwnedBy(userID)).
				Where("name = ? AND id <> ?", in.Name.Value, ingredient.ID).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return errNameTaken
			}
			return tx.Model(&ingredient).Update("name", in.Name.Value).Error
		})
		if errors.Is(err, errNameTaken) || errors.Is(err, gorm.ErrDuplicatedKey) {
			fields := serializers.FieldErrors{}
			fields.Add("name", serializers.MsgNameExists)
			c.JSON(http.StatusBadRequest, serializers.ErrorBody(fields))
			return
		}
		if err != nil {
			middleware.LoggerFrom(c).Error("rename ingredient", "error", err, "ingredient_id", ingredient.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update ingredient"})
			return
		}
		ingredient.Name = in.Name.Value
	}

	c.JSON(http.StatusOK, toResponse(ingredient))
}

// Delete detaches the ingredient from every recipe and deletes it
func (h *Handler) Delete(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	ingredient, ok := h.lookup(c, userID)
	if !ok {
		return
	}

	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&ingredient).Association("Recipes").Clear(); err != nil {
			return err
		}
		return tx.Delete(&ingredient).Error
	})
	if err != nil {
		middleware.LoggerFrom(c).Error("delete ingredient", "error", err, "ingredient_id", ingredient.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete ingredient"})
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) lookup(c *gin.Context, userID uint) (models.Ingredient, bool) {
	var ingredient models.Ingredient
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Ingredient not found"})
		return ingredient, false
	}

	err = h.db.WithContext(c.Request.Context()).
		Scopes(models.OwnedBy(userID)).Where("id = ?", id).Take(&ingredient).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Ingredient not found"})
		return ingredient, false
	}
	if err != nil {
		middleware.LoggerFrom(c).Error("fetch ingredient", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch ingredient"})
		return ingredient, false
	}
	return ingredient, true
}

// RegisterRoutes registers ingredient routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/ingredients/", h.List)
	rg.PUT("/ingredients/:id/", h.Update)
	rg.PATCH("/ingredients/:id/", h.PartialUpdate)
	rg.DELETE("/ingredients/:id/", h.Delete)
}
