// Package config provides configuration management for stacksense.
// It loads settings from environment variables with the STACKSENSE_ prefix
// and provides sensible defaults for all configuration options.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration settings for the stacksense service.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Rules     RulesConfig
	Security  SecurityConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Engine    EngineConfig
	Backup    BackupConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port    int    // Server port (default: 6464)
	Host    string // Server host (default: 127.0.0.1)
	Metrics bool   // Serve Prometheus metrics at /metrics (default: true)
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	StorageEngine string // sqlite or postgres (default: sqlite)
	DataPath      string // Directory holding the SQLite file (default: ./data)
	PostgresDSN   string // Connection string when StorageEngine is postgres

	// Breaker settings for the ResilientStore wrapper.
	BreakerMaxFailures int           // default: 3
	BreakerTimeout     time.Duration // default: 30s
}

// SQLitePath returns the database file inside DataPath.
func (s StorageConfig) SQLitePath() string {
	return filepath.Join(s.DataPath, "stacksense.db")
}

// BackupDir returns Backup.Dir, defaulting to a directory inside DataPath.
func (c *Config) BackupDir() string {
	if c.Backup.Dir != "" {
		return c.Backup.Dir
	}
	return filepath.Join(c.Storage.DataPath, "backups")
}

// RulesConfig controls where the rule pack comes from.
type RulesConfig struct {
	// Path is a YAML rule pack imported into the store at startup.
	// Empty means use whatever rules the store already holds.
	Path string

	// Watch reloads the pack when the file changes (default: true).
	Watch bool
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	SecurityMode string // development or production (default: development)
	APIToken     string // Bearer token required in production
	DefaultUser  string // User id when no X-User-ID header is sent (default: default)
}

// RateLimitConfig configures the per-client token bucket.
type RateLimitConfig struct {
	RequestsPerSecond int // default: 10
	Burst             int // default: 20
}

// CacheConfig sizes the snapshot cache.
type CacheConfig struct {
	Size int           // default: 256
	TTL  time.Duration // default: 5m
}

// EngineConfig holds derivation settings.
type EngineConfig struct {
	// Timezone names the location whose calendar day bounds "today".
	// "Local" (default) uses the host zone.
	Timezone string
}

// BackupConfig schedules SQLite backups. Ignored for postgres.
type BackupConfig struct {
	Interval time.Duration // 0 disables backups (default: 0)
	Dir      string        // default: <DataPath>/backups
	Keep     int           // newest backups retained (default: 24)
}

// LoadEnvFile exports the variables in a dotenv file without overriding
// ones already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}

// LoadConfig loads configuration from environment variables with sensible defaults.
// All environment variables use the STACKSENSE_ prefix.
func LoadConfig() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port:    getEnvInt("STACKSENSE_PORT", 6464),
			Host:    getEnv("STACKSENSE_HOST", "127.0.0.1"),
			Metrics: getEnvBool("STACKSENSE_METRICS", true),
		},
		Storage: StorageConfig{
			StorageEngine:      getEnv("STACKSENSE_STORAGE_ENGINE", "sqlite"),
			DataPath:           getEnv("STACKSENSE_DATA_PATH", "./data"),
			PostgresDSN:        getEnv("STACKSENSE_POSTGRES_DSN", ""),
			BreakerMaxFailures: getEnvInt("STACKSENSE_BREAKER_MAX_FAILURES", 3),
			BreakerTimeout:     getEnvDuration("STACKSENSE_BREAKER_TIMEOUT", 30*time.Second),
		},
		Rules: RulesConfig{
			Path:  getEnv("STACKSENSE_RULES_PATH", ""),
			Watch: getEnvBool("STACKSENSE_WATCH_RULES", true),
		},
		Security: SecurityConfig{
			SecurityMode: getEnv("STACKSENSE_SECURITY_MODE", "development"),
			APIToken:     getEnv("STACKSENSE_API_TOKEN", ""),
			DefaultUser:  getEnv("STACKSENSE_DEFAULT_USER", "default"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvInt("STACKSENSE_RATE_LIMIT_RPS", 10),
			Burst:             getEnvInt("STACKSENSE_RATE_LIMIT_BURST", 20),
		},
		Cache: CacheConfig{
			Size: getEnvInt("STACKSENSE_CACHE_SIZE", 256),
			TTL:  getEnvDuration("STACKSENSE_CACHE_TTL", 5*time.Minute),
		},
		Engine: EngineConfig{
			Timezone: getEnv("STACKSENSE_TIMEZONE", "Local"),
		},
		Backup: BackupConfig{
			Interval: getEnvDuration("STACKSENSE_BACKUP_INTERVAL", 0),
			Dir:      getEnv("STACKSENSE_BACKUP_DIR", ""),
			Keep:     getEnvInt("STACKSENSE_BACKUP_KEEP", 24),
		},
	}, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.StorageEngine {
	case "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("STACKSENSE_POSTGRES_DSN is required for the postgres engine"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage engine %q", c.Storage.StorageEngine))
	}

	switch c.Security.SecurityMode {
	case "development":
	case "production":
		if c.Security.APIToken == "" {
			errs = append(errs, errors.New("STACKSENSE_API_TOKEN is required in production mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown security mode %q", c.Security.SecurityMode))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Server.Port))
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("rate limit rps and burst must be positive"))
	}
	if c.Cache.Size <= 0 || c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache size and ttl must be positive"))
	}
	if c.Storage.BreakerMaxFailures <= 0 || c.Storage.BreakerTimeout <= 0 {
		errs = append(errs, errors.New("breaker max failures and timeout must be positive"))
	}
	if c.Backup.Interval < 0 || c.Backup.Keep <= 0 {
		errs = append(errs, errors.New("backup interval must not be negative and keep must be positive"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Location resolves Engine.Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Engine.Timezone == "" || c.Engine.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Engine.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", c.Engine.Timezone, err)
	}
	return loc, nil
}

// IsProduction reports whether authentication is enforced.
func (c *Config) IsProduction() bool {
	return c.Security.SecurityMode == "production"
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration syntax ("90s", "5m").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false (case-insensitive).
// If the environment variable exists but cannot be parsed as a boolean,
// it returns the default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}
