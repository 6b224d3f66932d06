package apikeys

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/pantry/pkg/pantry/auth"
	"github.com/mikepea/pantry/pkg/pantry/middleware"
	"github.com/mikepea/pantry/pkg/pantry/models"
	"gorm.io/gorm"
)

const (
	// KeyLength is the length of the generated API token in bytes (32 bytes = 64 hex chars)
	KeyLength = 32
	// KeyPrefixLength is the number of characters to store as prefix for identification
	KeyPrefixLength = 8
)

// Handler handles API token requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new API tokens handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// APITokenResponse represents an API token in responses
type APITokenResponse struct {
	ID          uint       `json:"id"`
	KeyPrefix   string     `json:"key_prefix"`
	Description string     `json:"description"`
	LastUsedAt  *time.Time `json:"last_used_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// CreateAPITokenRequest represents a request to create an API token
type CreateAPITokenRequest struct {
	Description string `json:"description" binding:"max=255"`
}

// CreateAPITokenResponse includes the full key (only shown once)
type CreateAPITokenResponse struct {
	ID          uint      `json:"id"`
	Key         string    `json:"key"`
	KeyPrefix   string    `json:"key_prefix"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// generateKey generates a new random API token
func generateKey() (string, error) {
	bytes := make([]byte, KeyLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// hashKey creates a SHA-256 hash of the API token
func hashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// Create creates a new API token for the authenticated user
func (h *Handler) Create(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req CreateAPITokenRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	key, err := generateKey()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate API token"})
		return
	}

	token := models.APIToken{
		UserID:      userID,
		KeyHash:     hashKey(key),
		KeyPrefix:   key[:KeyPrefixLength],
		Description: req.Description,
	}

	if err := h.db.WithContext(c.Request.Context()).Create(&token).Error; err != nil {
		middleware.LoggerFrom(c).Error("create api token", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create API token"})
		return
	}

	// Return the full key - this is the only time it's visible
	c.JSON(http.StatusCreated, CreateAPITokenResponse{
		ID:          token.ID,
		Key:         key,
		KeyPrefix:   token.KeyPrefix,
		Description: token.Description,
		CreatedAt:   token.CreatedAt,
	})
}

// List returns all API tokens for the authenticated user
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var tokens []models.APIToken
	if err := h.db.WithContext(c.Request.Context()).
		Scopes(models.OwnedBy(userID)).Order("id DESC").Find(&tokens).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch API tokens"})
		return
	}

	responses := make([]APITokenResponse, len(tokens))
	for i, token := range tokens {
		responses[i] = APITokenResponse{
			ID:          token.ID,
			KeyPrefix:   token.KeyPrefix,
			Description: token.Description,
			LastUsedAt:  token.LastUsedAt,
			CreatedAt:   token.CreatedAt,
		}
	}

	c.JSON(http.StatusOK, responses)
}

// Delete revokes an API token
func (h *Handler) Delete(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	tokenID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "API token not found"})
		return
	}

	db := h.db.WithContext(c.Request.Context())
	var token models.APIToken
	if err := db.Scopes(models.OwnedBy(userID)).Where("id = ?", tokenID).First(&token).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "API token not found"})
		return
	}

	if err := db.Delete(&token).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete API token"})
		return
	}

	c.Status(http.StatusNoContent)
}

// ValidateKey looks up the API token matching key
func ValidateKey(ctx context.Context, db *gorm.DB, key string) (*models.APIToken, error) {
	var token models.APIToken
	if err := db.WithContext(ctx).Where("key_hash = ?", hashKey(key)).First(&token).Error; err != nil {
		return nil, err
	}
	return &token, nil
}

// UpdateLastUsed updates the last_used_at timestamp for an API token
func UpdateLastUsed(ctx context.Context, db *gorm.DB, tokenID uint) error {
	return db.WithContext(ctx).Model(&models.APIToken{}).
		Where("id = ?", tokenID).Update("last_used_at", time.Now()).Error
}

// CombinedAuthMiddleware authenticates via JWT or API token.
// Both travel in the Authorization header as "Bearer <credential>"; API tokens
// are also accepted with the "Token" scheme. JWTs contain dots, API tokens are
// hex strings without dots. The user must exist and be active.
func CombinedAuthMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		scheme, credential, ok := auth.ParseAuthorization(authHeader)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			return
		}

		ctx := c.Request.Context()
		var userID uint

		if scheme == "bearer" && strings.Contains(credential, ".") {
			claims, err := auth.ValidateToken(credential)
			if errors.Is(err, auth.ErrExpiredToken) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token has expired"})
				return
			}
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
				return
			}
			userID = claims.UserID
		} else {
			token, err := ValidateKey(ctx, db, credential)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API token"})
				return
			}
			if err := UpdateLastUsed(ctx, db, token.ID); err != nil {
				middleware.LoggerFrom(c).Warn("update api token last_used_at", "error", err)
			}
			userID = token.UserID
		}

		var user models.User
		if err := db.WithContext(ctx).First(&user, userID).Error; err != nil || !user.IsActive {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not found or inactive"})
			return
		}

		auth.SetIdentity(c, user.ID, user.Email, user.IsStaff)
		c.Next()
	}
}

// RegisterRoutes registers API token routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/api-tokens/", h.Create)
	rg.GET("/api-tokens/", h.List)
	rg.DELETE("/api-tokens/:id/", h.Delete)
}
