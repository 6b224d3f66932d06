package tags

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/pantry/pkg/pantry/apikeys"
	"github.com/mikepea/pantry/pkg/pantry/auth"
	"github.com/mikepea/pantry/pkg/pantry/models"
	"github.com/mikepea/pantry/pkg/pantry/serializers"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	models.AutoMigrate(db)
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, email string) models.User {
	hash, _ := auth.HashPassword("password123")
	user := models.User{
		Email:        email,
		PasswordHash: hash,
		Name:         "Test User",
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

func createTestTag(t *testing.T, db *gorm.DB, user models.User, name string) models.Tag {
	tag := models.Tag{UserID: user.ID, Name: name}
	if err := db.Create(&tag).Error; err != nil {
		t.Fatalf("Failed to create test tag: %v", err)
	}
	return tag
}

func createTaggedRecipe(t *testing.T, db *gorm.DB, user models.User, tag models.Tag) models.Recipe {
	recipe := models.Recipe{
		UserID:      user.ID,
		Title:       "Porridge",
		TimeMinutes: 5,
		Price:       decimal.RequireFromString("1.50"),
	}
	if err := db.Create(&recipe).Error; err != nil {
		t.Fatalf("Failed to create test recipe: %v", err)
	}
	if err := db.Model(&recipe).Association("Tags").Append(&tag); err != nil {
		t.Fatalf("Failed to tag recipe: %v", err)
	}
	return recipe
}

func setupTestRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.HandleMethodNotAllowed = true
	handler := NewHandler(db)

	api := r.Group("/api/recipe")
	api.Use(apikeys.CombinedAuthMiddleware(db))
	handler.RegisterRoutes(api)

	return r
}

func doRequest(router *gin.Engine, method, path string, body interface{}, user models.User) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	token, _ := auth.GenerateToken(user.ID, user.Email, user.IsStaff)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func detailURL(id uint) string {
	return fmt.Sprintf("/api/recipe/tags/%d/", id)
}

func TestListTagsUnauthenticated(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	req, _ := http.NewRequest("GET", "/api/recipe/tags/", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.Code)
	}
}

func TestListTags(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "test@example.com")
	createTestTag(t, db, user, "Vegan")
	createTestTag(t, db, user, "Dessert")

	resp := doRequest(router, "GET", "/api/recipe/tags/", nil, user)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var response []serializers.NameResponse
	json.Unmarshal(resp.Body.Bytes(), &response)

	if len(response) != 2 {
		t.Fatalf("Expected 2 tags, got %d", len(response))
	}
	if response[0].Name != "Vegan" || response[1].Name != "Dessert" {
		t.Errorf("Expected tags ordered by name descending, got %+v", response)
	}
}

func TestListTagsOnlyShowsOwnTags(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "user1@example.com")
	other := createTestUser(t, db, "user2@example.com")
	createTestTag(t, db, user, "Comfort Food")
	createTestTag(t, db, other, "Fruity")

	resp := doRequest(router, "GET", "/api/recipe/tags/", nil, user)

	var response []serializers.NameResponse
	json.Unmarshal(resp.Body.Bytes(), &response)

	if len(response) != 1 || response[0].Name != "Comfort Food" {
		t.Errorf("Expected only own tag, got %+v", response)
	}
}

func TestListTagsAssignedOnly(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "test@example.com")
	breakfast := createTestTag(t, db, user, "Breakfast")
	createTestTag(t, db, user, "Lunch")
	createTaggedRecipe(t, db, user, breakfast)
	createTaggedRecipe(t, db, user, breakfast)

	resp := doRequest(router, "GET", "/api/recipe/tags/?assigned_only=1", nil, user)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var response []serializers.NameResponse
	json.Unmarshal(resp.Body.Bytes(), &response)

	if len(response) != 1 || response[0].ID != breakfast.ID {
		t.Errorf("Expected only the assigned tag once, got %+v", response)
	}

	resp = doRequest(router, "GET", "/api/recipe/tags/?assigned_only=0", nil, user)
	json.Unmarshal(resp.Body.Bytes(), &response)
	if len(response) != 2 {
		t.Errorf("Expected 2 tags with assigned_only=0, got %d", len(response))
	}
}

func TestListTagsInvalidAssignedOnly(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "test@example.com")

	resp := doRequest(router, "GET", "/api/recipe/tags/?assigned_only=yes", nil, user)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.Code)
	}
}

func TestCreateTagNotAllowed(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "test@example.com")

	resp := doRequest(router, "POST", "/api/recipe/tags/", map[string]string{"name": "New"}, user)
	if resp.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", resp.Code)
	}
}

func TestUpdateTag(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "test@example.com")
	tag := createTestTag(t, db, user, "After Dinner")

	resp := doRequest(router, "PATCH", detailURL(tag.ID), map[string]string{"name": "Dessert"}, user)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var response serializers.NameResponse
	json.Unmarshal(resp.Body.Bytes(), &response)
	if response.Name != "Dessert" {
		t.Errorf("Expected name 'Dessert' in response, got '%s'", response.Name)
	}

	var updated models.Tag
	db.First(&updated, tag.ID)
	if updated.Name != "Dessert" {
		t.Errorf("Expected name 'Dessert', got '%s'", updated.Name)
	}
}

func TestFullUpdateTagRequiresName(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "test@example.com")
	tag := createTestTag(t, db, user, "Dinner")

	resp := doRequest(router, "PUT", detailURL(tag.ID), map[string]string{}, user)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.Code)
	}

	resp = doRequest(router, "PATCH", detailURL(tag.ID), map[string]string{}, user)
	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200 for empty PATCH, got %d", resp.Code)
	}
}

func TestUpdateTagInvalidName(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "test@example.com")
	tag := createTestTag(t, db, user, "Dinner")

	resp := doRequest(router, "PATCH", detailURL(tag.ID), map[string]string{"name": ""}, user)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.Code)
	}
}

func TestUpdateTagNameConflict(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "test@example.com")
	tag := createTestTag(t, db, user, "Dinner")
	createTestTag(t, db, user, "Supper")

	resp := doRequest(router, "PUT", detailURL(tag.ID), map[string]string{"name": "Supper"}, user)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d: %s", resp.Code, resp.Body.String())
	}

	var response struct {
		Fields map[string][]string `json:"fields"`
	}
	json.Unmarshal(resp.Body.Bytes(), &response)
	if len(response.Fields["name"]) == 0 {
		t.Error("Expected a name field error")
	}
}

func TestUpdateTagTrimsName(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "test@example.com")
	item := createTestTag(t, db, user, "Dinner")
	createTestTag(t, db, user, "Supper")

	resp := doRequest(router, "PATCH", detailURL(item.ID), map[string]string{"name": " Supper "}, user)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for a padded duplicate name, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doRequest(router, "PATCH", detailURL(item.ID), map[string]string{"name": "  Renamed "}, user)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var stored models.Tag
	db.First(&stored, item.ID)
	if stored.Name != "Renamed" {
		t.Errorf("Expected trimmed name, got %q", stored.Name)
	}

	resp = doRequest(router, "PUT", detailURL(item.ID), map[string]string{"name": "   "}, user)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for a blank name, got %d", resp.Code)
	}
}

func TestUpdateTagSameNameAsOtherUser(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "user1@example.com")
	other := createTestUser(t, db, "user2@example.com")
	tag := createTestTag(t, db, user, "Dinner")
	createTestTag(t, db, other, "Supper")

	resp := doRequest(router, "PUT", detailURL(tag.ID), map[string]string{"name": "Supper"}, user)
	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestUpdateTagNotOwned(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "user1@example.com")
	other := createTestUser(t, db, "user2@example.com")
	tag := createTestTag(t, db, other, "Theirs")

	resp := doRequest(router, "PATCH", detailURL(tag.ID), map[string]string{"name": "Mine"}, user)
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.Code)
	}

	resp = doRequest(router, "PATCH", "/api/recipe/tags/abc/", map[string]string{"name": "Mine"}, user)
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for non-numeric id, got %d", resp.Code)
	}
}

func TestDeleteTag(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "test@example.com")
	tag := createTestTag(t, db, user, "Breakfast")
	recipe := createTaggedRecipe(t, db, user, tag)

	resp := doRequest(router, "DELETE", detailURL(tag.ID), nil, user)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d: %s", resp.Code, resp.Body.String())
	}

	var count int64
	db.Model(&models.Tag{}).Count(&count)
	if count != 0 {
		t.Error("Tag should be deleted")
	}

	var remaining models.Recipe
	if err := db.Preload("Tags").First(&remaining, recipe.ID).Error; err != nil {
		t.Fatalf("Recipe should survive tag deletion: %v", err)
	}
	if len(remaining.Tags) != 0 {
		t.Error("Recipe should no longer carry the deleted tag")
	}
}

func TestDeleteTagNotOwned(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "user1@example.com")
	other := createTestUser(t, db, "user2@example.com")
	tag := createTestTag(t, db, other, "Theirs")

	resp := doRequest(router, "DELETE", detailURL(tag.ID), nil, user)
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.Code)
	}
}
