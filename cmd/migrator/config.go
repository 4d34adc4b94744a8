package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/correlator-io/alertmon/internal/config"
	"github.com/correlator-io/alertmon/internal/storage"
)

var (
	errDatabaseURLEmpty    = errors.New("ALERTMON_DATABASE_URL cannot be empty")
	errMigrationTableEmpty = errors.New("ALERTMON_MIGRATION_TABLE cannot be empty")
	errMigrationsPathEmpty = errors.New("ALERTMON_MIGRATIONS_PATH cannot be empty")
	errMigrationsDirAbsent = errors.New("migrations directory does not exist")
)

// Config holds the migrator settings.
type Config struct {
	// DatabaseURL is the postgres connection string of the fixture warehouse.
	DatabaseURL string

	// MigrationsPath is the directory holding NNN_name.(up|down).sql files.
	MigrationsPath string

	// MigrationTable tracks applied versions.
	MigrationTable string
}

// LoadConfig reads the migrator settings from the environment and validates them.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DatabaseURL:    config.GetEnvStr("ALERTMON_DATABASE_URL", ""),
		MigrationsPath: config.GetEnvStr("ALERTMON_MIGRATIONS_PATH", "./migrations"),
		MigrationTable: config.GetEnvStr("ALERTMON_MIGRATION_TABLE", "alertmon_schema_migrations"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the settings and resolves MigrationsPath to an absolute path.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errDatabaseURLEmpty
	}

	if c.MigrationTable == "" {
		return errMigrationTableEmpty
	}

	if c.MigrationsPath == "" {
		return errMigrationsPathEmpty
	}

	absPath, err := filepath.Abs(c.MigrationsPath)
	if err != nil {
		return fmt.Errorf("failed to resolve migrations path: %w", err)
	}

	c.MigrationsPath = absPath

	if _, err := os.Stat(c.MigrationsPath); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", errMigrationsDirAbsent, c.MigrationsPath)
	}

	return nil
}

// String renders the settings with the password masked.
func (c *Config) String() string {
	masked := storage.NewConfig(storage.WarehousePostgres, c.DatabaseURL, "").MaskDatabaseURL()

	return fmt.Sprintf("Config{DatabaseURL: %s, MigrationsPath: %s, MigrationTable: %s}",
		masked, c.MigrationsPath, c.MigrationTable)
}
