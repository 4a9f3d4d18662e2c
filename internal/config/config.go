// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers defaults, an optional YAML file and RECONCILE_* env vars.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Store drivers understood by the service.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Relationship index tie-break policies.
const (
	TieBreakFirst    = "first"
	TieBreakLowestID = "lowest_id"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// StoreDriver selects the entity store: memory, sqlite or postgres.
	StoreDriver string `koanf:"store_driver"`
	SQLitePath  string `koanf:"sqlite_path"`
	PostgresDSN string `koanf:"postgres_dsn"`

	// PageSize bounds every list call issued by the scanner.
	PageSize int `koanf:"page_size"`
	// SortKey is the stable sort key used for pagination. A job that rewrites
	// this field pages its own collection by id.
	SortKey string `koanf:"sort_key"`

	// MaxAttempts, BaseDelayMS and MaxDelayMS shape the throttling retry policy.
	MaxAttempts int `koanf:"max_attempts"`
	BaseDelayMS int `koanf:"base_delay_ms"`
	MaxDelayMS  int `koanf:"max_delay_ms"`

	// PaceEvery and PaceDelayMS insert a pause after every N processed records.
	PaceEvery   int `koanf:"pace_every"`
	PaceDelayMS int `koanf:"pace_delay_ms"`

	// SampleErrors caps the failure sample returned in job summaries.
	SampleErrors int `koanf:"sample_errors"`
	// ProgressEvery logs progress every N processed records (0 disables).
	ProgressEvery int `koanf:"progress_every"`

	// IndexTieBreak picks the duplicate key policy: first or lowest_id.
	IndexTieBreak string `koanf:"index_tie_break"`

	// AdminTokens lists bearer tokens granted the administrative capability.
	AdminTokens []string `koanf:"admin_tokens"`

	// WorkerCount and QueueSize size the asynchronous job pool.
	WorkerCount int `koanf:"worker_count"`
	QueueSize   int `koanf:"queue_size"`
	// JobSlots bounds how many independent jobs run-all executes at once.
	JobSlots int `koanf:"job_slots"`
	// DedupeSize bounds the idempotency key cache for async submissions.
	DedupeSize int `koanf:"dedupe_size"`

	// UnknownTeamSentinel is the placeholder team id removed by cleanup-unknown-team.
	UnknownTeamSentinel string `koanf:"unknown_team_sentinel"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		StoreDriver:         StoreMemory,
		SQLitePath:          "data/reconcile.db",
		PageSize:            5000,
		SortKey:             "id",
		MaxAttempts:         5,
		BaseDelayMS:         500,
		MaxDelayMS:          30_000,
		PaceEvery:           100,
		PaceDelayMS:         50,
		SampleErrors:        10,
		ProgressEvery:       1000,
		IndexTieBreak:       TieBreakFirst,
		WorkerCount:         runtime.NumCPU(),
		QueueSize:           64,
		JobSlots:            2,
		DedupeSize:          10_000,
		UnknownTeamSentinel: "unknown",
	}
}

// BaseDelay returns the first backoff delay.
func (c *Config) BaseDelay() time.Duration { return time.Duration(c.BaseDelayMS) * time.Millisecond }

// MaxDelay returns the backoff ceiling.
func (c *Config) MaxDelay() time.Duration { return time.Duration(c.MaxDelayMS) * time.Millisecond }

// PaceDelay returns the pause inserted every PaceEvery records.
func (c *Config) PaceDelay() time.Duration { return time.Duration(c.PaceDelayMS) * time.Millisecond }

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.PageSize <= 0:
		return fmt.Errorf("%w: page_size must be positive", ErrInvalidConfig)
	case c.MaxAttempts <= 0:
		return fmt.Errorf("%w: max_attempts must be positive", ErrInvalidConfig)
	case c.BaseDelayMS < 0 || c.MaxDelayMS < 0 || c.PaceDelayMS < 0:
		return fmt.Errorf("%w: delays must not be negative", ErrInvalidConfig)
	case c.SampleErrors < 0:
		return fmt.Errorf("%w: sample_errors must not be negative", ErrInvalidConfig)
	}

	switch c.StoreDriver {
	case StoreMemory:
	case StoreSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("%w: sqlite_path is required for the sqlite store", ErrInvalidConfig)
		}
	case StorePostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("%w: postgres_dsn is required for the postgres store", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: %w %q", ErrInvalidConfig, ErrUnknownStore, c.StoreDriver)
	}

	switch c.IndexTieBreak {
	case TieBreakFirst, TieBreakLowestID:
	default:
		return fmt.Errorf("%w: unknown index_tie_break %q", ErrInvalidConfig, c.IndexTieBreak)
	}
	return nil
}
