package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

const defaultSlowQueryThreshold = 500 * time.Millisecond

// Config contains database connection options.
type Config struct {
	Driver   string
	Path     string // SQLite file; empty or ":memory:" selects an in-memory database
	DSN      string // overrides every other connection field
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	Options  map[string]string

	Pool PoolConfig
	// SlowQueryThreshold marks statements logged as slow. Zero uses 500ms.
	SlowQueryThreshold time.Duration
}

// PoolConfig bounds the sql.DB connection pool. Zero values keep the driver defaults.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to the configured driver and applies pool limits.
func Open(cfg Config) (*gorm.DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))

	var (
		dialector gorm.Dialector
		err       error
	)
	switch driver {
	case "", "sqlite", "sqlite3":
		driver = "sqlite"
		dialector, err = sqliteDialector(cfg)
	case "postgres", "postgresql":
		driver = "postgres"
		dialector, err = postgresDialector(cfg)
	case "mysql", "mariadb":
		driver = "mysql"
		dialector, err = mysqlDialector(cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newQueryLogger(driver, cfg.SlowQueryThreshold),
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	if err := applyPool(db, cfg.Pool); err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		if err := enableForeignKeys(db); err != nil {
			return nil, err
		}
	}
	return db, nil
}

func applyPool(db *gorm.DB, pool PoolConfig) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("database pool: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	return nil
}

// AutoMigrateAndSeed migrates the schema and inserts the builtin records.
func AutoMigrateAndSeed(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	if err := AutoMigrate(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	if err := SeedData(db); err != nil {
		return fmt.Errorf("seed data: %w", err)
	}

	return nil
}
