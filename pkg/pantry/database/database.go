package database

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options controls how the connection is opened.
type Options struct {
	// Driver is "sqlite" or "postgres".
	Driver string
	// DSN is a file path for sqlite or a connection URL for postgres.
	DSN string
	// LogLevel is the GORM logger level. Zero keeps GORM's default.
	LogLevel logger.LogLevel
}

// Open opens a database connection with the driver named in opts.
func Open(opts Options) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch opts.Driver {
	case "", "sqlite":
		dialector = sqlite.Open(sqliteDSN(opts.DSN))
	case "postgres":
		dialector = postgres.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	cfg := &gorm.Config{
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	}
	if opts.LogLevel != 0 {
		cfg.Logger = logger.Default.LogMode(opts.LogLevel)
	}

	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", opts.Driver, err)
	}

	if opts.Driver == "" || opts.Driver == "sqlite" {
		// sqlite allows one writer; a single connection avoids SQLITE_BUSY under load
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}

// sqliteDSN enables foreign keys, which sqlite leaves off by default.
func sqliteDSN(dsn string) string {
	if dsn == ":memory:" {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=on"
	}
	return dsn + "?_foreign_keys=on"
}
