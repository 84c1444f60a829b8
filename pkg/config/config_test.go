package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workers != 4 {
		t.Errorf("Workers = %d, want default 4", cfg.Workers)
	}
	if cfg.DefaultTTL != 15*time.Minute {
		t.Errorf("DefaultTTL = %v, want 15m", cfg.DefaultTTL)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statpipe.yaml")
	data := `
log_level: debug
workers: 8
default_ttl: 1h
ttls:
  game: 5m
  roster: 24h
rates:
  default:
    capacity: 5
    refill_rate: 1
  overrides:
    league-site:
      capacity: 10
      refill_rate: 2
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
	if cfg.Workers != 8 {
		t.Errorf("Workers = %d, want 8", cfg.Workers)
	}
	if cfg.TTLFor("game") != 5*time.Minute {
		t.Errorf("TTLFor(game) = %v, want 5m", cfg.TTLFor("game"))
	}
	if cfg.TTLFor("player") != time.Hour {
		t.Errorf("TTLFor(player) = %v, want default_ttl 1h", cfg.TTLFor("player"))
	}
	if cfg.Rates.Default.Capacity != 5 {
		t.Errorf("default bucket capacity = %v, want 5", cfg.Rates.Default.Capacity)
	}
	override, ok := cfg.Rates.Overrides["league-site"]
	if !ok || override.Capacity != 10 {
		t.Errorf("override = %+v, want capacity 10", override)
	}
	// Unset file keys keep their defaults.
	if cfg.Rates.Global.Capacity != 20 {
		t.Errorf("global bucket capacity = %v, want default 20", cfg.Rates.Global.Capacity)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statpipe.yaml")
	if err := os.WriteFile(path, []byte("workers: 8\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STATPIPE_WORKERS", "16")
	t.Setenv("STATPIPE_RATES__DEFAULT__CAPACITY", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workers != 16 {
		t.Errorf("Workers = %d, want env override 16", cfg.Workers)
	}
	if cfg.Rates.Default.Capacity != 7 {
		t.Errorf("default capacity = %v, want env override 7", cfg.Rates.Default.Capacity)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/statpipe.yaml"); err == nil {
		t.Error("Load with a missing explicit file should fail")
	}
}

func TestValidate_Ranges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero workers", func(c *Config) { c.Workers = 0 }},
		{"zero per-domain", func(c *Config) { c.MaxPerDomain = 0 }},
		{"threshold above one", func(c *Config) { c.SimilarityThreshold = 1.5 }},
		{"zero threshold", func(c *Config) { c.SimilarityThreshold = 0 }},
		{"empty user agent", func(c *Config) { c.UserAgent = "" }},
		{"zero default bucket", func(c *Config) { c.Rates.Default.Capacity = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate should fail")
			}
		})
	}
}

func TestFetch_MapsRetryPolicy(t *testing.T) {
	cfg := Default()
	cfg.Retry.MaxAttempts = 5

	fc := cfg.Fetch()
	if fc.Retry.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", fc.Retry.MaxAttempts)
	}
	if fc.UserAgent != cfg.UserAgent {
		t.Error("user agent should carry through")
	}
}
