package admin

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/pantry/pkg/pantry/auth"
	"github.com/mikepea/pantry/pkg/pantry/middleware"
	"github.com/mikepea/pantry/pkg/pantry/models"
	"gorm.io/gorm"
)

// Handler handles admin requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new admin handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// UserResponse represents user data in admin responses
type UserResponse struct {
	ID              uint   `json:"id"`
	Email           string `json:"email"`
	Name            string `json:"name"`
	IsActive        bool   `json:"is_active"`
	IsStaff         bool   `json:"is_staff"`
	CreatedAt       string `json:"created_at"`
	RecipeCount     int64  `json:"recipe_count"`
	TagCount        int64  `json:"tag_count"`
	IngredientCount int64  `json:"ingredient_count"`
}

// UpdateUserRequest represents the request to update a user
type UpdateUserRequest struct {
	Name     *string `json:"name" binding:"omitempty,max=255"`
	IsActive *bool   `json:"is_active"`
	IsStaff  *bool   `json:"is_staff"`
}

// StatsResponse represents system statistics
type StatsResponse struct {
	TotalUsers       int64 `json:"total_users"`
	ActiveUsers      int64 `json:"active_users"`
	StaffUsers       int64 `json:"staff_users"`
	TotalRecipes     int64 `json:"total_recipes"`
	TotalTags        int64 `json:"total_tags"`
	TotalIngredients int64 `json:"total_ingredients"`
	ActiveAPITokens  int64 `json:"active_api_tokens"`
}

func userToResponse(db *gorm.DB, user models.User) (UserResponse, error) {
	resp := UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		IsActive:  user.IsActive,
		IsStaff:   user.IsStaff,
		CreatedAt: user.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}

	counts := []struct {
		name  string
		model interface{}
		dst   *int64
	}{
		{"recipes", &models.Recipe{}, &resp.RecipeCount},
		{"tags", &models.Tag{}, &resp.TagCount},
		{"ingredients", &models.Ingredient{}, &resp.IngredientCount},
	}
	for _, count := range counts {
		if err := db.Model(count.model).Scopes(models.OwnedBy(user.ID)).Count(count.dst).Error; err != nil {
			return resp, fmt.Errorf("count %s of user %d: %w", count.name, user.ID, err)
		}
	}
	return resp, nil
}

// writeUser renders user with its counts, or a 500 when they cannot be read.
func writeUser(c *gin.Context, db *gorm.DB, user models.User) {
	resp, err := userToResponse(db, user)
	if err != nil {
		middleware.LoggerFrom(c).Error("user counts", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch user"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListUsers returns all users (staff only)
func (h *Handler) ListUsers(c *gin.Context) {
	db := h.db.WithContext(c.Request.Context())
	var users []models.User

	query := db.Order("created_at DESC")

	// Optional search by email or name
	if search := c.Query("q"); search != "" {
		query = query.Where("email LIKE ? OR name LIKE ?", "%"+search+"%", "%"+search+"%")
	}

	// Optional filter by staff flag
	if staff := c.Query("is_staff"); staff != "" {
		query = query.Where("is_staff = ?", staff == "true" || staff == "1")
	}

	if err := query.Find(&users).Error; err != nil {
		middleware.LoggerFrom(c).Error("list users", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
		return
	}

	responses := make([]UserResponse, len(users))
	for i, user := range users {
		resp, err := userToResponse(db, user)
		if err != nil {
			middleware.LoggerFrom(c).Error("user counts", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
			return
		}
		responses[i] = resp
	}

	c.JSON(http.StatusOK, responses)
}

// GetUser returns a single user by ID (staff only)
func (h *Handler) GetUser(c *gin.Context) {
	db := h.db.WithContext(c.Request.Context())
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	var user models.User
	if err := db.First(&user, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	writeUser(c, db, user)
}

// UpdateUser updates a user's name and flags (staff only)
func (h *Handler) UpdateUser(c *gin.Context) {
	db := h.db.WithContext(c.Request.Context())
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	var user models.User
	if err := db.First(&user, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Prevent staff from locking themselves out
	currentUserID, _ := auth.GetUserID(c)
	if uint(id) == currentUserID {
		if req.IsStaff != nil && !*req.IsStaff {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot demote yourself"})
			return
		}
		if req.IsActive != nil && !*req.IsActive {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot deactivate yourself"})
			return
		}
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.IsStaff != nil {
		updates["is_staff"] = *req.IsStaff
	}

	if len(updates) > 0 {
		if err := db.Model(&user).Updates(updates).Error; err != nil {
			middleware.LoggerFrom(c).Error("update user", "error", err, "target_user_id", user.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
			return
		}
	}

	// Reload user
	db.First(&user, id)

	writeUser(c, db, user)
}

// DeleteUser deletes a user with their recipes, tags, ingredients and API tokens (staff only)
func (h *Handler) DeleteUser(c *gin.Context) {
	db := h.db.WithContext(c.Request.Context())
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	// Prevent staff from deleting themselves
	currentUserID, _ := auth.GetUserID(c)
	if uint(id) == currentUserID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot delete yourself"})
		return
	}

	var user models.User
	if err := db.First(&user, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	if err := db.Transaction(func(tx *gorm.DB) error { return DeleteUserData(tx, user.ID) }); err != nil {
		middleware.LoggerFrom(c).Error("delete user", "error", err, "target_user_id", user.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete user"})
		return
	}

	c.Status(http.StatusNoContent)
}

// DeleteUserData removes a user and everything they own. Run it inside a transaction.
func DeleteUserData(tx *gorm.DB, userID uint) error {
	recipeIDs := tx.Model(&models.Recipe{}).Select("id").Where("user_id = ?", userID)

	// Join rows first, then the rows they reference
	if err := tx.Exec("DELETE FROM recipe_tags WHERE recipe_id IN (?)", recipeIDs).Error; err != nil {
		return err
	}
	if err := tx.Exec("DELETE FROM recipe_ingredients WHERE recipe_id IN (?)", recipeIDs).Error; err != nil {
		return err
	}
	for _, model := range []interface{}{&models.Recipe{}, &models.Tag{}, &models.Ingredient{}, &models.APIToken{}} {
		if err := tx.Scopes(models.OwnedBy(userID)).Delete(model).Error; err != nil {
			return err
		}
	}
	return tx.Delete(&models.User{}, userID).Error
}

// GetStats returns system-wide statistics (staff only)
func (h *Handler) GetStats(c *gin.Context) {
	db := h.db.WithContext(c.Request.Context())
	var stats StatsResponse

	db.Model(&models.User{}).Count(&stats.TotalUsers)
	db.Model(&models.User{}).Where("is_active = ?", true).Count(&stats.ActiveUsers)
	db.Model(&models.User{}).Where("is_staff = ?", true).Count(&stats.StaffUsers)
	db.Model(&models.Recipe{}).Count(&stats.TotalRecipes)
	db.Model(&models.Tag{}).Count(&stats.TotalTags)
	db.Model(&models.Ingredient{}).Count(&stats.TotalIngredients)
	db.Model(&models.APIToken{}).Count(&stats.ActiveAPITokens)

	c.JSON(http.StatusOK, stats)
}

// RegisterRoutes registers admin routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/stats", h.GetStats)
	rg.GET("/users", h.ListUsers)
	rg.GET("/users/:id", h.GetUser)
	rg.PUT("/users/:id", h.UpdateUser)
	rg.PATCH("/users/:id", h.UpdateUser)
	rg.DELETE("/users/:id", h.DeleteUser)
}
