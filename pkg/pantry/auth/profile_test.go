package auth_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/pantry/pkg/pantry/apikeys"
	"github.com/mikepea/pantry/pkg/pantry/auth"
	"github.com/mikepea/pantry/pkg/pantry/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Profile and staff routes sit behind the same middleware the server uses.

func setupProfileRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	models.AutoMigrate(db)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := auth.NewHandler(db)
	user := r.Group("/user")
	handler.RegisterRoutes(user)
	handler.RegisterProfileRoutes(user.Group("", apikeys.CombinedAuthMiddleware(db)))

	r.GET("/staff", apikeys.CombinedAuthMiddleware(db), auth.RequireStaff(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r, db
}

func sendJSON(router *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func registerUser(t *testing.T, router *gin.Engine, email string) auth.AuthResponse {
	resp := sendJSON(router, "POST", "/user/create/", auth.RegisterRequest{
		Email:    email,
		Password: "password123",
		Name:     "Test User",
	}, "")
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var response auth.AuthResponse
	json.Unmarshal(resp.Body.Bytes(), &response)
	return response
}

func TestMe(t *testing.T) {
	router, _ := setupProfileRouter(t)
	registered := registerUser(t, router, "test@example.com")

	resp := sendJSON(router, "GET", "/user/me/", nil, registered.Token)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var userResponse auth.UserResponse
	json.Unmarshal(resp.Body.Bytes(), &userResponse)
	if userResponse.Email != "test@example.com" {
		t.Errorf("Expected email test@example.com, got %s", userResponse.Email)
	}
}

func TestUpdateMe(t *testing.T) {
	router, db := setupProfileRouter(t)
	registered := registerUser(t, router, "test@example.com")

	resp := sendJSON(router, "PATCH", "/user/me/", map[string]string{
		"name":     "Updated Name",
		"password": "newpassword123",
	}, registered.Token)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var user models.User
	db.First(&user, registered.User.ID)
	if user.Name != "Updated Name" {
		t.Errorf("Expected updated name, got %s", user.Name)
	}
	if !auth.CheckPassword("newpassword123", user.PasswordHash) {
		t.Error("Expected password to be updated")
	}
}

func TestMeWithoutAuth(t *testing.T) {
	router, _ := setupProfileRouter(t)

	resp := sendJSON(router, "GET", "/user/me/", nil, "")
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.Code)
	}
}

func TestMeDeactivatedUser(t *testing.T) {
	router, db := setupProfileRouter(t)
	registered := registerUser(t, router, "test@example.com")
	db.Model(&models.User{}).Where("id = ?", registered.User.ID).Update("is_active", false)

	resp := sendJSON(router, "GET", "/user/me/", nil, registered.Token)
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 for a deactivated user, got %d", resp.Code)
	}
}

func TestRequireStaff(t *testing.T) {
	router, db := setupProfileRouter(t)
	member := registerUser(t, router, "user@example.com")
	staff := registerUser(t, router, "staff@example.com")
	db.Model(&models.User{}).Where("id = ?", staff.User.ID).Update("is_staff", true)

	if resp := sendJSON(router, "GET", "/staff", nil, member.Token); resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for non-staff, got %d", resp.Code)
	}
	// The staff flag is read from the user row, not the token issued at registration
	if resp := sendJSON(router, "GET", "/staff", nil, staff.Token); resp.Code != http.StatusNoContent {
		t.Errorf("Expected status 204 for staff, got %d", resp.Code)
	}
}
