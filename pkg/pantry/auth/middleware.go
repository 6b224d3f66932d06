package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyUserID is the key for user ID in gin context
	ContextKeyUserID = "user_id"
	// ContextKeyEmail is the key for email in gin context
	ContextKeyEmail = "email"
	// ContextKeyIsStaff is the key for the staff flag in gin context
	ContextKeyIsStaff = "is_staff"
)

// SetIdentity stores the authenticated user in the gin context.
// Handlers read it back with GetUserID and pass it down explicitly.
func SetIdentity(c *gin.Context, userID uint, email string, isStaff bool) {
	c.Set(ContextKeyUserID, userID)
	c.Set(ContextKeyEmail, email)
	c.Set(ContextKeyIsStaff, isStaff)
}

// ParseAuthorization splits an Authorization header into scheme and credential.
// Accepted schemes are "Bearer" and "Token", case-insensitive.
func ParseAuthorization(header string) (scheme, credential string, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	scheme = strings.ToLower(parts[0])
	credential = strings.TrimSpace(parts[1])
	if credential == "" || (scheme != "bearer" && scheme != "token") {
		return "", "", false
	}
	return scheme, credential, true
}

// RequireStaff middleware checks that the user has the staff flag
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := GetUserID(c); !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		if !IsStaff(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Staff access required"})
			return
		}

		c.Next()
	}
}

// GetUserID returns the user ID from the gin context
func GetUserID(c *gin.Context) (uint, bool) {
	userID, exists := c.Get(ContextKeyUserID)
	if !exists {
		return 0, false
	}
	id, ok := userID.(uint)
	return id, ok
}

// IsStaff reports whether the authenticated user is staff
func IsStaff(c *gin.Context) bool {
	return c.GetBool(ContextKeyIsStaff)
}
