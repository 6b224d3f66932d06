package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/pantry/pkg/pantry/auth"
	"github.com/mikepea/pantry/pkg/pantry/config"
	"github.com/mikepea/pantry/pkg/pantry/database"
	"github.com/mikepea/pantry/pkg/pantry/models"
	"github.com/mikepea/pantry/pkg/pantry/server"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := newLogger(cfg)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	auth.Configure(cfg.JWTSecret, cfg.JWTTTL)

	// Connect to database
	db, err := database.Open(database.Options{
		Driver:   cfg.DatabaseDriver,
		DSN:      cfg.DatabaseURL,
		LogLevel: gormLogLevel(cfg.SlogLevel()),
	})
	if err != nil {
		return err
	}

	// Run auto-migrations
	if err := models.AutoMigrate(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info("database migrations completed", "driver", cfg.DatabaseDriver)

	// Create the bootstrap staff user if no staff exists
	if err := ensureAdminExists(db, cfg.AdminEmail, cfg.AdminPassword, log); err != nil {
		return fmt.Errorf("ensure admin user: %w", err)
	}

	srv := server.New(server.NewRouter(db, log), cfg.Addr(), server.Timeouts{
		Read:     cfg.ReadTimeout,
		Write:    cfg.WriteTimeout,
		Idle:     cfg.IdleTimeout,
		Shutdown: cfg.ShutdownTimeout,
	}, log)
	srv.OnShutdown("database", func(context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting pantry server", "env", cfg.AppEnv, "addr", cfg.Addr())
	return srv.Run(ctx)
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler).With("service", "pantry")
}

func gormLogLevel(level slog.Level) logger.LogLevel {
	switch {
	case level <= slog.LevelDebug:
		return logger.Info
	case level <= slog.LevelWarn:
		return logger.Warn
	default:
		return logger.Error
	}
}

// ensureAdminExists creates a staff user if no staff user exists in the database.
func ensureAdminExists(db *gorm.DB, email, password string, log *slog.Logger) error {
	var count int64
	if err := db.Model(&models.User{}).Where("is_staff = ?", true).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		return nil // Staff already exists
	}

	if email == "" || password == "" {
		return errors.New("ADMIN_EMAIL and ADMIN_PASSWORD are required to create the first staff user")
	}

	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	adminUser := models.User{
		Email:        email,
		Name:         "Admin",
		PasswordHash: hashedPassword,
		IsStaff:      true,
		IsSuperuser:  true,
	}

	if err := db.Create(&adminUser).Error; err != nil {
		return err
	}

	log.Info("created default staff user", "email", adminUser.Email)
	return nil
}
