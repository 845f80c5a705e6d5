// Package db opens the GORM connection shared by the forms server stores.
package db

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported database types.
const (
	TypePostgres = "postgres"
	TypeMySQL    = "mysql"
	TypeSQLite   = "sqlite"
)

// Config describes the database connection.
type Config struct {
	Type string
	DSN  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// LogLevel is the GORM log level: silent, error, warn or info.
	LogLevel string
}

// ConfigFromEnv fills unset fields of cfg from DATABASE_TYPE, DATABASE_DSN,
// DATABASE_MAX_OPEN_CONNS and DATABASE_LOG_LEVEL. The type defaults to postgres.
func ConfigFromEnv(cfg Config) Config {
	if cfg.Type == "" {
		cfg.Type = os.Getenv("DATABASE_TYPE")
	}
	if cfg.Type == "" {
		cfg.Type = TypePostgres
	}
	if cfg.DSN == "" {
		cfg.DSN = os.Getenv("DATABASE_DSN")
	}
	if cfg.MaxOpenConns == 0 {
		if v := os.Getenv("DATABASE_MAX_OPEN_CONNS"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				cfg.MaxOpenConns = n
			}
		}
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = os.Getenv("DATABASE_LOG_LEVEL")
	}
	return cfg
}

// Open connects to the configured database. Timestamps written through the
// returned handle are UTC.
func Open(cfg Config) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required (use -db-dsn flag or DATABASE_DSN environment variable)")
	}

	dialector, err := dialectorFor(cfg.Type, cfg.DSN)
	if err != nil {
		return nil, err
	}

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger:  logger.Default.LogMode(logLevel(cfg.LogLevel)),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Type, err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql handle: %w", err)
	}
	switch {
	case cfg.Type == TypeSQLite:
		// SQLite serializes writers; one connection avoids "database is locked".
		sqlDB.SetMaxOpenConns(1)
	case cfg.MaxOpenConns > 0:
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return gormDB, nil
}

func dialectorFor(dbType, dsn string) (gorm.Dialector, error) {
	switch strings.ToLower(dbType) {
	case TypePostgres, "postgresql":
		return postgres.Open(dsn), nil
	case TypeMySQL:
		return mysql.Open(dsn), nil
	case TypeSQLite:
		return sqlite.Open(dsn), nil
	}
	return nil, fmt.Errorf("unsupported database type %q (expected postgres, mysql or sqlite)", dbType)
}

func logLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "info":
		return logger.Info
	case "warn":
		return logger.Warn
	case "error":
		return logger.Error
	}
	return logger.Silent
}
