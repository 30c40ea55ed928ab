// Package config defines service configuration and its loading hooks.
//
// Conventions:
//   - New(ctx) returns a Config populated with defaults.
//   - Load(ctx) layers defaults, an optional YAML file and SHOWCASE_* env vars.
//   - Validation failures wrap ErrInvalidConfig.
package config

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Store backends understood by the service.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// StoreBackend selects the profile persistence substrate: memory, badger or sqlite.
	StoreBackend string `koanf:"store_backend"`

	// DataDir holds badger files or the sqlite database.
	DataDir string `koanf:"data_dir"`

	// ProfileKey is the fixed key the behavioral profile is stored under.
	ProfileKey string `koanf:"profile_key"`

	// HistoryLimit and InteractionLimit bound the persisted profile.
	HistoryLimit     int `koanf:"history_limit"`
	InteractionLimit int `koanf:"interaction_limit"`

	// PopularItems is the allow-list boosted for new users.
	PopularItems []string `koanf:"popular_items"`

	// NewUserSessions is the session count below which a user counts as new.
	NewUserSessions int `koanf:"new_user_sessions"`

	// ReturningAfterHours is the absence after which a user counts as returning.
	ReturningAfterHours int `koanf:"returning_after_hours"`

	// CatalogFile optionally replaces the embedded demo catalog.
	CatalogFile string `koanf:"catalog_file"`

	// QueueSize bounds the ingestion queue; WorkerCount sets its partitions.
	QueueSize   int `koanf:"queue_size"`
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the interaction id deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxRecommendations caps GET /recommendations?limit.
	MaxRecommendations int `koanf:"max_recommendations"`

	// IngestRatePerSec and IngestBurst rate-limit interaction ingestion.
	IngestRatePerSec float64 `koanf:"ingest_rate_per_sec"`
	IngestBurst      int     `koanf:"ingest_burst"`

	// BreakerFailures consecutive write failures open the store breaker for BreakerCooldownSec.
	BreakerFailures    int `koanf:"breaker_failures"`
	BreakerCooldownSec int `koanf:"breaker_cooldown_sec"`
}

// New creates a Config populated with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:            "info",
		Addr:                ":9080",
		StoreBackend:        BackendMemory,
		DataDir:             "./data",
		ProfileKey:          "ai_user_profile",
		HistoryLimit:        20,
		InteractionLimit:    50,
		PopularItems:        []string{"restaurant-demo", "fitness-demo", "banking-demo"},
		NewUserSessions:     3,
		ReturningAfterHours: 24,
		QueueSize:           10_000,
		WorkerCount:         runtime.NumCPU() * 2,
		DedupeSize:          100_000,
		MaxRecommendations:  50,
		IngestRatePerSec:    500,
		IngestBurst:         1000,
		BreakerFailures:     5,
		BreakerCooldownSec:  30,
	}
}

// ReturningAfter is ReturningAfterHours as a duration.
func (c *Config) ReturningAfter() time.Duration {
	return time.Duration(c.ReturningAfterHours) * time.Hour
}

// BreakerCooldown is BreakerCooldownSec as a duration.
func (c *Config) BreakerCooldown() time.Duration {
	return time.Duration(c.BreakerCooldownSec) * time.Second
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.ProfileKey) == "":
		return fmt.Errorf("%w: profile_key must not be empty", ErrInvalidConfig)
	case c.HistoryLimit < 1:
		return fmt.Errorf("%w: history_limit must be positive", ErrInvalidConfig)
	case c.InteractionLimit < 1:
		return fmt.Errorf("%w: interaction_limit must be positive", ErrInvalidConfig)
	case c.MaxRecommendations < 1:
		return fmt.Errorf("%w: max_recommendations must be positive", ErrInvalidConfig)
	}
	switch c.StoreBackend {
	case BackendMemory, BackendBadger, BackendSQLite:
	default:
		return fmt.Errorf("%w: unknown store_backend %q", ErrInvalidConfig, c.StoreBackend)
	}
	if c.StoreBackend != BackendMemory && strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("%w: data_dir is required for %s", ErrInvalidConfig, c.StoreBackend)
	}
	return nil
}
