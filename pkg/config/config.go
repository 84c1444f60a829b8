// Package config loads pipeline configuration by layering defaults, an
// optional YAML file, and STATPIPE_-prefixed environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/courtdata/statpipe/pkg/fetch"
	"github.com/courtdata/statpipe/pkg/identity"
	"github.com/courtdata/statpipe/pkg/logging"
	"github.com/courtdata/statpipe/pkg/ratelimit"
)

// Config is the full pipeline configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogPretty switches to human-readable console output.
	LogPretty bool `koanf:"log_pretty"`

	// MetricsAddr is the Prometheus listen address. Empty disables the
	// listener.
	MetricsAddr string `koanf:"metrics_addr"`

	// UserAgent identifies the pipeline to upstream sources.
	UserAgent string `koanf:"user_agent"`

	// RedisAddr selects the cache backend. Empty falls back to the
	// in-process memory store.
	RedisAddr string `koanf:"redis_addr"`

	// RedisPassword is the optional redis auth password.
	RedisPassword string `koanf:"redis_password"`

	// DuckDBPath is the sink database file. Empty disables the sink.
	DuckDBPath string `koanf:"duckdb_path"`

	// Workers bounds concurrent source jobs during a backfill.
	Workers int `koanf:"workers"`

	// MaxPerDomain bounds simultaneous in-flight requests per domain.
	MaxPerDomain int `koanf:"max_per_domain"`

	// DefaultTTL applies to cached fetches without a per-kind override.
	DefaultTTL time.Duration `koanf:"default_ttl"`

	// TTLs overrides the cache TTL per entity kind (game, roster, ...).
	TTLs map[string]time.Duration `koanf:"ttls"`

	// SimilarityThreshold is the minimum fuzzy-match score for merging
	// identities.
	SimilarityThreshold float64 `koanf:"similarity_threshold"`

	// Rates configures the per-source token buckets.
	Rates RatesConfig `koanf:"rates"`

	// Retry configures transport retries.
	Retry RetryConfig `koanf:"retry"`
}

// RatesConfig mirrors the limiter configuration in file form.
type RatesConfig struct {
	Default   ratelimit.BucketConfig            `koanf:"default"`
	Global    ratelimit.BucketConfig            `koanf:"global"`
	Overrides map[string]ratelimit.BucketConfig `koanf:"overrides"`
}

// RetryConfig mirrors the fetch retry policy in file form.
type RetryConfig struct {
	MaxAttempts       int           `koanf:"max_attempts"`
	InitialBackoff    time.Duration `koanf:"initial_backoff"`
	MaxBackoff        time.Duration `koanf:"max_backoff"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier"`
}

// Default returns the baseline configuration before file and env layering.
func Default() *Config {
	limits := ratelimit.DefaultConfig()
	retry := fetch.DefaultRetryConfig()
	return &Config{
		LogLevel:            "info",
		UserAgent:           "statpipe/1.0 (+https://github.com/courtdata/statpipe)",
		DuckDBPath:          "statpipe.db",
		Workers:             4,
		MaxPerDomain:        4,
		DefaultTTL:          15 * time.Minute,
		TTLs:                map[string]time.Duration{},
		SimilarityThreshold: identity.DefaultThreshold,
		Rates: RatesConfig{
			Default: limits.Default,
			Global:  limits.Global,
		},
		Retry: RetryConfig{
			MaxAttempts:       retry.MaxAttempts,
			InitialBackoff:    retry.InitialBackoff,
			MaxBackoff:        retry.MaxBackoff,
			BackoffMultiplier: retry.BackoffMultiplier,
		},
	}
}

// Validate checks field ranges after layering.
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.MaxPerDomain <= 0 {
		return fmt.Errorf("max_per_domain must be positive, got %d", c.MaxPerDomain)
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in (0, 1], got %v", c.SimilarityThreshold)
	}
	if c.Rates.Default.Capacity <= 0 || c.Rates.Default.RefillRate <= 0 {
		return fmt.Errorf("default rate bucket must have positive capacity and refill rate")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user_agent must not be empty")
	}
	return nil
}

// TTLFor returns the cache TTL for an entity kind.
func (c *Config) TTLFor(kind string) time.Duration {
	if ttl, ok := c.TTLs[kind]; ok {
		return ttl
	}
	return c.DefaultTTL
}

// Logging maps the config into the logging setup.
func (c *Config) Logging() logging.Config {
	return logging.Config{Level: logging.LogLevel(c.LogLevel), Pretty: c.LogPretty}
}

// Limits maps the config into the rate limiter.
func (c *Config) Limits() ratelimit.Config {
	return ratelimit.Config{
		Default:   c.Rates.Default,
		Global:    c.Rates.Global,
		Overrides: c.Rates.Overrides,
	}
}

// Fetch maps the config into the fetch scheduler.
func (c *Config) Fetch() fetch.Config {
	return fetch.Config{
		UserAgent: c.UserAgent,
		Retry: fetch.RetryConfig{
			MaxAttempts:       c.Retry.MaxAttempts,
			InitialBackoff:    c.Retry.InitialBackoff,
			MaxBackoff:        c.Retry.MaxBackoff,
			BackoffMultiplier: c.Retry.BackoffMultiplier,
		},
		MaxPerDomain:   c.MaxPerDomain,
		DefaultTTL:     c.DefaultTTL,
		DefaultTimeout: 30 * time.Second,
	}
}
