package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Datasource names accepted by ESI.
const (
	DatasourceTranquility = "tranquility"
	DatasourceSingularity = "singularity"
)

// File names under the data directory.
const (
	tokenFileName     = "tokens.json"
	rateLimitFileName = "rate_limits.json"
	cacheFileName     = "cache.db"
	specFileName      = "openapi_spec.json"
	imageDirName      = "images"
)

// Config holds all runtime configuration for evegate.
// Values are read from EVEGATE_* environment variables with sensible
// defaults; command-line flags may override individual fields after Load.
type Config struct {
	// ESI connectivity.
	BaseURL           string        `env:"EVEGATE_ESI_BASE_URL" envDefault:"https://esi.evetech.net/latest"`
	SpecURL           string        `env:"EVEGATE_ESI_SPEC_URL" envDefault:"https://esi.evetech.net/meta/openapi.json"`
	Datasource        string        `env:"EVEGATE_DATASOURCE" envDefault:"tranquility"`
	CompatibilityDate string        `env:"EVEGATE_COMPATIBILITY_DATE"`
	UserAgent         string        `env:"EVEGATE_USER_AGENT" envDefault:"evegate (+https://github.com/teemow/evegate)"`
	HTTPTimeout       time.Duration `env:"EVEGATE_HTTP_TIMEOUT" envDefault:"30s"`

	// EVE SSO application settings. ClientID has no default; authenticated
	// requests are unavailable until it is configured.
	ClientID    string   `env:"EVEGATE_CLIENT_ID"`
	CallbackURL string   `env:"EVEGATE_CALLBACK_URL" envDefault:"http://localhost:8080/callback"`
	Scopes      []string `env:"EVEGATE_SCOPES" envSeparator:","`

	// Local storage.
	DataDir            string        `env:"EVEGATE_DATA_DIR"`
	CacheEnabled       bool          `env:"EVEGATE_CACHE_ENABLED" envDefault:"true"`
	CacheExpiryWarning time.Duration `env:"EVEGATE_CACHE_EXPIRY_WARNING" envDefault:"5m"`

	// Rate limiting.
	MaxBackoff       time.Duration `env:"EVEGATE_MAX_BACKOFF" envDefault:"60s"`
	ThresholdPercent float64       `env:"EVEGATE_RATE_THRESHOLD_PERCENT" envDefault:"10"`

	// Logging.
	LogLevel  string `env:"EVEGATE_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"EVEGATE_LOG_FORMAT" envDefault:"text"`
}

// Load reads configuration from the environment and resolves the data
// directory. The directory itself is not created; call EnsureDataDir before
// writing into it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.DataDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolve user config dir: %w", err)
		}
		cfg.DataDir = filepath.Join(base, "evegate")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	switch c.Datasource {
	case DatasourceTranquility, DatasourceSingularity:
	default:
		return fmt.Errorf("invalid datasource %q (must be %q or %q)",
			c.Datasource, DatasourceTranquility, DatasourceSingularity)
	}

	if c.CompatibilityDate != "" {
		if _, err := time.Parse("2006-01-02", c.CompatibilityDate); err != nil {
			return fmt.Errorf("invalid compatibility date %q (must be YYYY-MM-DD): %w", c.CompatibilityDate, err)
		}
	}

	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP timeout must be positive, got %v", c.HTTPTimeout)
	}

	if c.ThresholdPercent < 0 || c.ThresholdPercent > 100 {
		return fmt.Errorf("rate threshold percent must be between 0 and 100, got %v", c.ThresholdPercent)
	}

	if c.MaxBackoff <= 0 {
		return fmt.Errorf("max backoff must be positive, got %v", c.MaxBackoff)
	}

	return nil
}

// EnsureDataDir creates the data directory with owner-only permissions.
// Token material lives under this directory, so group/world access is
// never granted.
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir %s: %w", c.DataDir, err)
	}
	return nil
}

// TokenFile returns the path of the persisted SSO token store.
func (c *Config) TokenFile() string {
	return filepath.Join(c.DataDir, tokenFileName)
}

// RateLimitFile returns the path of the persisted rate limit state.
func (c *Config) RateLimitFile() string {
	return filepath.Join(c.DataDir, rateLimitFileName)
}

// CacheFile returns the path of the sqlite response cache.
func (c *Config) CacheFile() string {
	return filepath.Join(c.DataDir, cacheFileName)
}

// SpecFile returns the path of the cached OpenAPI document.
func (c *Config) SpecFile() string {
	return filepath.Join(c.DataDir, specFileName)
}

// ImageDir returns the directory for cached rendered images.
func (c *Config) ImageDir() string {
	return filepath.Join(c.DataDir, imageDirName)
}
