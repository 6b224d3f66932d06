package tags

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

// errNameTaken is returned when a rename collides with another of the user's tags
var errNameTaken = errors.New("tag name taken")

// Handler handles tag requests. Tags are created through recipes, so there is no create route.
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new tags handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

func toResponse(tag models.Tag) serializers.NameResponse {
	return serializers.NameResponse{ID: tag.ID, Name: tag.Name}
}

// List returns the user's tags ordered by name descending.
// With ?assigned_only=1 only tags attached to at least one recipe are returned.
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
		query = query.Where("id IN (?)", db.Table("recipe_tags").Select("tag_id"))
	}

	var tags []models.Tag
	if err := query.Find(&tags).Error; err != nil {
		middleware.LoggerFrom(c).Error("list tags", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch tags"})
		return
	}

	responses := make([]serializers.NameResponse, len(tags))
	for i, tag := range tags {
		responses[i] = toResponse(tag)
	}

	c.JSON(http.StatusOK, responses)
}

// Update renames a tag (PUT)
func (h *Handler) Update(c *gin.Context) {
	h.update(c, serializers.ModeReplace)
}

// PartialUpdate renames a tag if a name is supplied (PATCH)
func (h *Handler) PartialUpdate(c *gin.Context) {
	h.update(c, serializers.ModePatch)
}

func (h *Handler) update(c *gin.Context, mode serializers.Mode) {
	userID, _ := auth.GetUserID(c)
	tag, ok := h.lookup(c, userID)
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

	if in.Name.Set && in.Name.Value != tag.Name {
		err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
			var count int64
			if err := tx.Model(&models.Tag{}).Scopes(models.OwnedBy(userID)).
				Where("name = ? AND id <> ?", in.Name.Value, tag.ID).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return errNameTaken
			}
			return tx.Model(&tag).Update("name", in.Name.Value).Error
		})
		if errors.Is(err, errNameTaken) || errors.Is(err, gorm.ErrDuplicatedKey) {
			fields := serializers.FieldErrors{}
			fields.Add("name", serializers.MsgNameExists)
			c.JSON(http.StatusBadRequest, serializers.ErrorBody(fields))
			return
		}
		if err != nil {
			middleware.LoggerFrom(c).Error("rename tag", "error", err, "tag_id", tag.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update tag"})
			return
		}
		tag.Name = in.Name.Value
	}

	c.JSON(http.StatusOK, toResponse(tag))
}

// Delete detaches the tag from every recipe and deletes it
func (h *Handler) Delete(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	tag, ok := h.lookup(c, userID)
	if !ok {
		return
	}

	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&tag).Association("Recipes").Clear(); err != nil {
			return err
		}
		return tx.Delete(&tag).Error
	})
	if err != nil {
		middleware.LoggerFrom(c).Error("delete tag", "error", err, "tag_id", tag.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete tag"})
		return
	}

	c.Status(http.StatusNoContent)
}

// lookup loads the user's tag named by :id, writing a 404 when there is none
func (h *Handler) lookup(c *gin.Context, userID uint) (models.Tag, bool) {
	var tag models.Tag
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Tag not found"})
		return tag, false
	}

	err = h.db.WithContext(c.Request.Context()).
		Scopes(models.OwnedBy(userID)).Where("id = ?", id).Take(&tag).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Tag not found"})
		return tag, false
	}
	if err != nil {
		middleware.LoggerFrom(c).Error("fetch tag", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch tag"})
		return tag, false
	}
	return tag, true
}

// RegisterRoutes registers tag routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/tags/", h.List)
	rg.PUT("/tags/:id/", h.Update)
	rg.PATCH("/tags/:id/", h.PartialUpdate)
	rg.DELETE("/tags/:id/", h.Delete)
}
