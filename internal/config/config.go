// Package config defines service configuration and its loading.
package config

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Store selects the persistence backend: memory or sqlite.
	Store string `koanf:"store"`

	// SQLitePath is the database file used by the sqlite backend.
	SQLitePath string `koanf:"sqlite_path"`

	// ShardCount configures the number of location shards in the memory store.
	ShardCount int `koanf:"shard_count"`

	// ConflictRetries bounds compare-and-set retries per star mutation.
	ConflictRetries int `koanf:"conflict_retries"`

	// AllianceShare and MissionShare are the default partner ratios.
	AllianceShare float64 `koanf:"alliance_share"`
	MissionShare  float64 `koanf:"mission_share"`

	// SweepIntervalMS sets how often expired effects are closed.
	SweepIntervalMS int `koanf:"sweep_interval_ms"`

	// FeedQueueSize and FeedWorkerCount size the change feed.
	FeedQueueSize   int `koanf:"feed_queue_size"`
	FeedWorkerCount int `koanf:"feed_worker_count"`

	// DedupeSize bounds the request id cache.
	DedupeSize int `koanf:"dedupe_size"`

	// RosterFile optionally seeds sessions, teams and locations at startup.
	RosterFile string `koanf:"roster_file"`

	// MaxLogLimit caps GET /logs?limit and MaxStandingsLimit caps standings.
	MaxLogLimit       int `koanf:"max_log_limit"`
	MaxStandingsLimit int `koanf:"max_standings_limit"`

	// MetricsEnabled turns metric recording on or off.
	MetricsEnabled bool `koanf:"metrics_enabled"`

	// MetricsRefreshMS sets how often system and feed gauges are refreshed.
	MetricsRefreshMS int `koanf:"metrics_refresh_ms"`

	// MetricsLabels are constant labels added to every metric. YAML only.
	MetricsLabels map[string]string `koanf:"metrics_labels"`
}

// New creates a Config with defaults. Context is accepted first by project
// convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:          "info",
		Addr:              ":9080",
		Store:             StoreMemory,
		SQLitePath:        "starboard.db",
		ShardCount:        16,
		ConflictRetries:   5,
		AllianceShare:     0.2,
		MissionShare:      1.0,
		SweepIntervalMS:   5_000,
		FeedQueueSize:     10_000,
		FeedWorkerCount:   runtime.NumCPU(),
		DedupeSize:        50_000,
		MaxLogLimit:       500,
		MaxStandingsLimit: 100,
		MetricsEnabled:    true,
		MetricsRefreshMS:  10_000,
	}
}

// SweepInterval returns SweepIntervalMS as a duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMS) * time.Millisecond
}

// MetricsRefreshInterval returns MetricsRefreshMS as a duration.
func (c *Config) MetricsRefreshInterval() time.Duration {
	return time.Duration(c.MetricsRefreshMS) * time.Millisecond
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.Store != StoreMemory && c.Store != StoreSQLite:
		return fmt.Errorf("%w: must be %q or %q, got %q", ErrUnknownStore, StoreMemory, StoreSQLite, c.Store)
	case c.Store == StoreSQLite && c.SQLitePath == "":
		return fmt.Errorf("%w: sqlite_path is required for the sqlite store", ErrInvalidConfig)
	case c.ShardCount < 1:
		return fmt.Errorf("%w: shard_count must be positive", ErrInvalidConfig)
	case c.ConflictRetries < 0:
		return fmt.Errorf("%w: conflict_retries must not be negative", ErrInvalidConfig)
	case !(c.AllianceShare > 0 && c.AllianceShare <= 1):
		return fmt.Errorf("%w: alliance_share must be in (0, 1], got %g", ErrShareRatio, c.AllianceShare)
	case !(c.MissionShare > 0 && c.MissionShare <= 1):
		return fmt.Errorf("%w: mission_share must be in (0, 1], got %g", ErrShareRatio, c.MissionShare)
	case c.SweepIntervalMS < 1:
		return fmt.Errorf("%w: sweep_interval_ms must be positive", ErrInvalidConfig)
	case c.FeedQueueSize < 1 || c.FeedWorkerCount < 1:
		return fmt.Errorf("%w: feed_queue_size and feed_worker_count must be positive", ErrInvalidConfig)
	case c.MaxLogLimit < 1 || c.MaxStandingsLimit < 1:
		return fmt.Errorf("%w: max_log_limit and max_standings_limit must be positive", ErrInvalidConfig)
	case c.MetricsRefreshMS < 1:
		return fmt.Errorf("%w: metrics_refresh_ms must be positive", ErrInvalidConfig)
	}
	return nil
}
