package importexport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/pantry/pkg/pantry/auth"
	"github.com/mikepea/pantry/pkg/pantry/middleware"
	"github.com/mikepea/pantry/pkg/pantry/models"
	"github.com/mikepea/pantry/pkg/pantry/serializers"
	"gorm.io/gorm"
)

// FormatVersion is the version written to and accepted from export documents
const FormatVersion = 1

// Handler handles import/export requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new import/export handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// ExportDocument is a user's recipe backup
type ExportDocument struct {
	Version    int                                `json:"version"`
	ExportedAt time.Time                          `json:"exported_at"`
	Recipes    []serializers.RecipeDetailResponse `json:"recipes"`
}

// ImportRequest is an export document read back. Recipes are kept raw so each
// one is decoded and validated on its own.
type ImportRequest struct {
	Version int               `json:"version"`
	Recipes []json.RawMessage `json:"recipes" binding:"required"`
}

// ImportResult represents the result of an import operation
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}

// Export returns all of the user's recipes in detail form, oldest first
func (h *Handler) Export(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var recipes []models.Recipe
	err := serializers.PreloadNested(h.db.WithContext(c.Request.Context())).
		Scopes(models.OwnedBy(userID)).Order("id").Find(&recipes).Error
	if err != nil {
		middleware.LoggerFrom(c).Error("export recipes", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch recipes"})
		return
	}

	doc := ExportDocument{
		Version:    FormatVersion,
		ExportedAt: time.Now().UTC(),
		Recipes:    make([]serializers.RecipeDetailResponse, len(recipes)),
	}
	for i, recipe := range recipes {
		doc.Recipes[i] = serializers.NewRecipeDetailResponse(recipe)
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="recipes-%s.json"`, doc.ExportedAt.Format("20060102")))
	c.JSON(http.StatusOK, doc)
}

// Import creates recipes from an export document. Each recipe is validated
// like a create request and saved in its own transaction. Recipes whose title
// the user already has are skipped, so importing the same file twice is harmless.
func (h *Handler) Import(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	db := h.db.WithContext(c.Request.Context())

	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Version != 0 && req.Version != FormatVersion {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unsupported format version %d", req.Version)})
		return
	}

	result := ImportResult{
		Errors: []string{},
	}

	for i, raw := range req.Recipes {
		in, err := serializers.ParseRecipe(raw, serializers.ModeCreate)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("recipe %d: %v", i, err))
			result.Skipped++
			continue
		}

		var count int64
		if err := db.Model(&models.Recipe{}).Scopes(models.OwnedBy(userID)).
			Where("title = ?", in.Title.Value).Count(&count).Error; err != nil {
			middleware.LoggerFrom(c).Error("import lookup", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to import recipes"})
			return
		}
		if count > 0 {
			result.Skipped++
			continue
		}

		var recipe models.Recipe
		err = db.Transaction(func(tx *gorm.DB) error {
			return serializers.SaveRecipe(tx, userID, &recipe, in, serializers.ModeCreate)
		})
		if err != nil {
			middleware.LoggerFrom(c).Warn("import recipe", "error", err, "index", i)
			result.Errors = append(result.Errors, fmt.Sprintf("recipe %d: failed to save", i))
			result.Skipped++
			continue
		}
		result.Imported++
	}

	middleware.LoggerFrom(c).Info("recipes imported",
		"imported", result.Imported,
		"skipped", result.Skipped,
	)

	c.JSON(http.StatusOK, result)
}

// RegisterRoutes registers import/export routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/export", h.Export)
	rg.POST("/import", h.Import)
}
