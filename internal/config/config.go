// Package config loads service configuration from a YAML file, an
// optional .env file, and environment variable overrides, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Pool    PoolConfig    `yaml:"pool"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port            string `yaml:"port"`
	RequestTimeout  int    `yaml:"request_timeout_seconds"`
	ShutdownTimeout int    `yaml:"shutdown_timeout_seconds"`
}

// PoolConfig carries the engine defaults applied to newly created pools.
type PoolConfig struct {
	FeeRate   float64 `yaml:"fee_rate"`  // in [0, 1)
	Tolerance float64 `yaml:"tolerance"` // conservation tolerance ε
	Tick      int64   `yaml:"tick"`      // boundary probe tick for threshold pools
}

// StorageConfig controls where the stake journal is persisted.
type StorageConfig struct {
	DatabaseURL string `yaml:"database_url"` // empty → in-memory store
	RedisURL    string `yaml:"redis_url"`    // empty → no cache layer
	CacheTTL    int    `yaml:"cache_ttl_seconds"`
}

// LogConfig controls the format and level of logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads configuration from the YAML file at path (skipped when path
// is empty), then the .env file if present, then environment overrides.
func Load(path string) (*Config, error) {
	// Load .env if present (silences the error if there is no file).
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// RequestTimeout returns the per-request timeout as a time.Duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeout) * time.Second
}

// ShutdownTimeout returns the graceful shutdown window.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeout) * time.Second
}

// CacheTTL returns the Redis cache TTL.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Storage.CacheTTL) * time.Second
}

// applyEnvOverrides overwrites values with environment variables when set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Storage.RedisURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("POOL_FEE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Pool.FeeRate = f
		}
	}
}

// setDefaults ensures required values have sensible defaults.
func setDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 30
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 5
	}
	if cfg.Pool.FeeRate <= 0 || cfg.Pool.FeeRate >= 1 {
		cfg.Pool.FeeRate = 0.03
	}
	if cfg.Pool.Tolerance <= 0 {
		cfg.Pool.Tolerance = 0.01
	}
	if cfg.Pool.Tick <= 0 {
		cfg.Pool.Tick = 1
	}
	if cfg.Storage.CacheTTL <= 0 {
		cfg.Storage.CacheTTL = 30
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}
