// Package server builds the HTTP route table.
package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/pantry/pkg/pantry/admin"
	"github.com/mikepea/pantry/pkg/pantry/apikeys"
	"github.com/mikepea/pantry/pkg/pantry/auth"
	"github.com/mikepea/pantry/pkg/pantry/importexport"
	"github.com/mikepea/pantry/pkg/pantry/ingredients"
	"github.com/mikepea/pantry/pkg/pantry/middleware"
	"github.com/mikepea/pantry/pkg/pantry/recipes"
	"github.com/mikepea/pantry/pkg/pantry/tags"
	"gorm.io/gorm"
)

// NewRouter returns a gin engine with every route registered.
func NewRouter(db *gorm.DB, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID(logger), middleware.Logger(), middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
	})

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	api := r.Group("/api")
	{
		api.GET("/health", healthHandler(db))

		// Combined auth middleware (accepts JWT or API token)
		combinedAuth := apikeys.CombinedAuthMiddleware(db)

		// User routes: registration and login are public
		authHandler := auth.NewHandler(db)
		userGroup := api.Group("/user")
		authHandler.RegisterRoutes(userGroup)

		protectedUser := userGroup.Group("", combinedAuth)
		authHandler.RegisterProfileRoutes(protectedUser)
		apikeys.NewHandler(db).RegisterRoutes(protectedUser)

		// Recipe routes
		recipeGroup := api.Group("/recipe", combinedAuth)
		recipes.NewHandler(db).RegisterRoutes(recipeGroup)
		tags.NewHandler(db).RegisterRoutes(recipeGroup)
		ingredients.NewHandler(db).RegisterRoutes(recipeGroup)
		importexport.NewHandler(db).RegisterRoutes(recipeGroup)

		// Admin routes (staff only)
		adminGroup := api.Group("/admin", combinedAuth, auth.RequireStaff())
		admin.NewHandler(db).RegisterRoutes(adminGroup)
	}

	return r
}

func healthHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		code, status, dbStatus := http.StatusOK, "ok", "ok"
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			middleware.LoggerFrom(c).Error("database ping failed", "error", err)
			code, status, dbStatus = http.StatusServiceUnavailable, "degraded", "unavailable"
		}
		c.JSON(code, gin.H{
			"status":   status,
			"service":  "pantry",
			"database": dbStatus,
		})
	}
}
