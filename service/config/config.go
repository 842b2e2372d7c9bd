package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
// Everything has a default; persistence and messaging are off unless configured.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string
	PublicURL  string

	// Explorer configuration
	ExplorerURL            string
	ExplorerTimeout        time.Duration
	ExplorerRPS            int
	ExplorerMaxConcurrency int

	// Lookup configuration
	LookupTimeout time.Duration
	SessionTTL    time.Duration

	// Optional backends. Empty disables the feature.
	DatabaseURL string
	NATSURL     string
}

// Load reads configuration from environment variables and validates it.
// All problems are reported together in one error.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info"))
	cfg.PublicURL = os.Getenv("PUBLIC_URL")

	// Explorer configuration
	cfg.ExplorerURL = getEnvOrDefault("EXPLORER_URL", "https://api.blockchair.com/zcash")

	explorerTimeout, err := parseDuration("EXPLORER_TIMEOUT", "10s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ExplorerTimeout = explorerTimeout
	}

	rps, err := parseInt("EXPLORER_RPS", 10)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ExplorerRPS = rps
	}

	concurrency, err := parseInt("EXPLORER_MAX_CONCURRENCY", 10)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ExplorerMaxConcurrency = concurrency
	}

	// Lookup configuration
	lookupTimeout, err := parseDuration("LOOKUP_TIMEOUT", "30s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.LookupTimeout = lookupTimeout
	}

	ttl, err := parseDuration("SESSION_TTL", "30m")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.SessionTTL = ttl
	}

	// Optional backends
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.NATSURL = os.Getenv("NATS_URL")

	if len(errs) == 0 {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.ServerAddr == "" {
		errs = append(errs, fmt.Errorf("ServerAddr is required"))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LogLevel must be one of debug, info, warn, error (got %q)", c.LogLevel))
	}

	if u, err := url.Parse(c.ExplorerURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("ExplorerURL must be an absolute URL (got %q)", c.ExplorerURL))
	}

	if c.PublicURL != "" {
		if u, err := url.Parse(c.PublicURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PublicURL must be an absolute URL (got %q)", c.PublicURL))
		}
	}

	if c.ExplorerTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ExplorerTimeout must be positive"))
	}

	if c.ExplorerRPS < 0 {
		errs = append(errs, fmt.Errorf("ExplorerRPS cannot be negative"))
	}

	if c.ExplorerMaxConcurrency < 1 || c.ExplorerMaxConcurrency > 10 {
		errs = append(errs, fmt.Errorf("ExplorerMaxConcurrency must be between 1 and 10 (got %d)", c.ExplorerMaxConcurrency))
	}

	if c.LookupTimeout < c.ExplorerTimeout {
		errs = append(errs, fmt.Errorf("LookupTimeout (%v) cannot be less than ExplorerTimeout (%v)",
			c.LookupTimeout, c.ExplorerTimeout))
	}

	if c.SessionTTL < time.Minute {
		errs = append(errs, fmt.Errorf("SessionTTL must be at least 1 minute"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// HistoryEnabled reports whether lookups are recorded in PostgreSQL.
func (c *Config) HistoryEnabled() bool {
	return c.DatabaseURL != ""
}

// EventsEnabled reports whether score events are published to NATS.
func (c *Config) EventsEnabled() bool {
	return c.NATSURL != ""
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}
