package migrations

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/medical-kg/ingest/internal/config"
)

// Sentinel errors for migration configuration.
var (
	// ErrDatabaseURLRequired is returned when no catalog database URL is configured.
	ErrDatabaseURLRequired = errors.New("CATALOG_DATABASE_URL is required")

	// ErrMigrationTableEmpty is returned when the tracking table name is blank.
	ErrMigrationTableEmpty = errors.New("migration table name cannot be empty")
)

// Config holds the catalog migration settings, loaded from the environment.
type Config struct {
	// DatabaseURL is the PostgreSQL connection string for the document catalog.
	DatabaseURL string

	// MigrationTable tracks applied migrations. Default schema_migrations.
	MigrationTable string
}

// LoadConfig reads CATALOG_DATABASE_URL and CATALOG_MIGRATION_TABLE.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DatabaseURL:    config.GetEnvStr("CATALOG_DATABASE_URL", ""),
		MigrationTable: config.GetEnvStr("CATALOG_MIGRATION_TABLE", "schema_migrations"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrDatabaseURLRequired
	}

	if c.MigrationTable == "" {
		return ErrMigrationTableEmpty
	}

	return nil
}

// String renders the configuration with the database credential masked,
// safe for logs.
func (c *Config) String() string {
	return fmt.Sprintf("Config{DatabaseURL: %s, MigrationTable: %s}",
		MaskDatabaseURL(c.DatabaseURL), c.MigrationTable)
}

// MaskDatabaseURL replaces the password component of a connection URL with
// asterisks. Unparseable URLs are masked entirely rather than leaked.
func MaskDatabaseURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "***"
	}

	if parsed.User != nil {
		if _, hasPassword := parsed.User.Password(); hasPassword {
			parsed.User = url.UserPassword(parsed.User.Username(), "***")
		}
	}

	return parsed.String()
}
