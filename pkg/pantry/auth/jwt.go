package auth

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

const issuer = "pantry"

// Claims represents the JWT claims
type Claims struct {
	UserID  uint   `json:"user_id"`
	Email   string `json:"email"`
	IsStaff bool   `json:"is_staff"`
	jwt.RegisteredClaims
}

var (
	settingsMu    sync.RWMutex
	signingSecret = []byte("pantry-dev-secret-change-in-production")
	tokenDuration = 24 * time.Hour
)

// Configure sets the signing secret and token lifetime. Called once at startup.
func Configure(secret string, ttl time.Duration) {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	if secret != "" {
		signingSecret = []byte(secret)
	}
	if ttl > 0 {
		tokenDuration = ttl
	}
}

func settings() ([]byte, time.Duration) {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return signingSecret, tokenDuration
}

// GenerateToken creates a new JWT token for a user
func GenerateToken(userID uint, email string, isStaff bool) (string, error) {
	secret, ttl := settings()
	now := time.Now()
	claims := &Claims{
		UserID:  userID,
		Email:   email,
		IsStaff: isStaff,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ValidateToken validates a JWT token and returns the claims
func ValidateToken(tokenString string) (*Claims, error) {
	secret, _ := settings()
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	}, jwt.WithIssuer(issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
