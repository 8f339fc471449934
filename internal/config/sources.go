package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Sentinel errors for source catalog validation.
var (
	// ErrSourceNameEmpty is returned when a catalog entry has no name.
	ErrSourceNameEmpty = errors.New("source name cannot be empty")

	// ErrSourceBaseURLEmpty is returned when a catalog entry has no base URL.
	ErrSourceBaseURLEmpty = errors.New("source base URL cannot be empty")

	// ErrSourceRateInvalid is returned when a catalog entry has a non-positive rate limit.
	ErrSourceRateInvalid = errors.New("source rate limit must be greater than zero")

	// ErrSourceNotFound is returned when looking up an unknown source name.
	ErrSourceNotFound = errors.New("source not found in catalog")
)

// DefaultSourceCatalogPath is the default location for the source catalog file.
const DefaultSourceCatalogPath = "sources.yaml"

// SourceCatalogPathEnvVar is the environment variable name for a custom catalog path.
const SourceCatalogPathEnvVar = "SOURCE_CATALOG_PATH"

const (
	defaultRatePerSecond = 3.0
	defaultBurst         = 6
	defaultPageSize      = 100
)

type (
	// SourceCatalog holds the per-source operational configuration loaded from
	// sources.yaml: base URLs, rate limits, page sizes, and the names of the
	// environment variables carrying API credentials.
	//
	// The catalog carries no secrets itself. Credentials are resolved from the
	// environment at lookup time so the file can be committed alongside the code.
	SourceCatalog struct {
		Sources map[string]SourceConfig `yaml:"sources"`
	}

	// SourceConfig is the operational configuration for a single external source.
	SourceConfig struct {
		// BaseURL is the root endpoint for the source API.
		BaseURL string `yaml:"base_url"`

		// RatePerSecond is the sustained request rate allowed against the source host.
		RatePerSecond float64 `yaml:"rate_per_second"`

		// Burst is the token bucket burst capacity. Zero means 2 x rate.
		Burst int `yaml:"burst"`

		// PageSize is the default page size for paginated endpoints.
		PageSize int `yaml:"page_size"`

		// APIKeyEnv names the environment variable holding the source API key.
		// Empty for sources that need no credentials.
		APIKeyEnv string `yaml:"api_key_env"`
	}
)

// LoadSourceCatalog loads the source catalog from a YAML file at the given path.
//
// Behavior:
//   - Returns an empty catalog (not error) if the file doesn't exist - adapters
//     fall back to their built-in defaults
//   - Returns an error if the YAML is unreadable or any entry fails validation
func LoadSourceCatalog(path string) (*SourceCatalog, error) {
	catalog := &SourceCatalog{Sources: make(map[string]SourceConfig)}

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("Source catalog not found, using adapter defaults",
				slog.String("path", path))

			return catalog, nil
		}

		return nil, fmt.Errorf("failed to read source catalog %s: %w", path, err)
	}

	if len(data) == 0 {
		return catalog, nil
	}

	if err := yaml.Unmarshal(data, catalog); err != nil {
		return nil, fmt.Errorf("failed to parse source catalog %s: %w", path, err)
	}

	if catalog.Sources == nil {
		catalog.Sources = make(map[string]SourceConfig)
	}

	if err := catalog.Validate(); err != nil {
		return nil, err
	}

	return catalog, nil
}

// LoadSourceCatalogFromEnv loads the catalog from the path in SOURCE_CATALOG_PATH,
// falling back to "sources.yaml" in the current directory.
func LoadSourceCatalogFromEnv() (*SourceCatalog, error) {
	return LoadSourceCatalog(GetEnvStr(SourceCatalogPathEnvVar, DefaultSourceCatalogPath))
}

// Validate checks every catalog entry for structural problems.
func (c *SourceCatalog) Validate() error {
	for name, source := range c.Sources {
		if name == "" {
			return ErrSourceNameEmpty
		}

		if source.BaseURL == "" {
			return fmt.Errorf("%w: %s", ErrSourceBaseURLEmpty, name)
		}

		if source.RatePerSecond < 0 {
			return fmt.Errorf("%w: %s", ErrSourceRateInvalid, name)
		}
	}

	return nil
}

// Lookup returns the configuration for a named source, falling back to the
// provided defaults for any zero-valued field. Unknown sources return the
// defaults unchanged so adapters work without a catalog file.
func (c *SourceCatalog) Lookup(name string, defaults SourceConfig) SourceConfig {
	source, ok := c.Sources[name]
	if !ok {
		return withCatalogDefaults(defaults)
	}

	if source.BaseURL == "" {
		source.BaseURL = defaults.BaseURL
	}

	if source.RatePerSecond == 0 {
		source.RatePerSecond = defaults.RatePerSecond
	}

	if source.Burst == 0 {
		source.Burst = defaults.Burst
	}

	if source.PageSize == 0 {
		source.PageSize = defaults.PageSize
	}

	if source.APIKeyEnv == "" {
		source.APIKeyEnv = defaults.APIKeyEnv
	}

	return withCatalogDefaults(source)
}

// APIKey resolves the source credential from the environment.
// Returns empty string when the source declares no credential variable.
func (s SourceConfig) APIKey() string {
	if s.APIKeyEnv == "" {
		return ""
	}

	return os.Getenv(s.APIKeyEnv)
}

func withCatalogDefaults(source SourceConfig) SourceConfig {
	if source.RatePerSecond == 0 {
		source.RatePerSecond = defaultRatePerSecond
	}

	if source.Burst == 0 {
		source.Burst = defaultBurst
	}

	if source.PageSize == 0 {
		source.PageSize = defaultPageSize
	}

	return source
}
