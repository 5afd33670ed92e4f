// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - Defaults live in New; Load layers file and env values on top.
//   - Validate is the single place that rejects unusable values.
//   - External errors are wrapped with this package's sentinel kinds.
package config

import (
	"fmt"
	"runtime"
	"strings"
)

// Backend identifiers for the job store and worker registry.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendNATS     = "nats"
	BackendRedis    = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// JobStore selects the job store backend: memory, postgres or nats.
	JobStore string `koanf:"job_store"`

	// WorkerRegistry selects the worker registry backend: memory or redis.
	WorkerRegistry string `koanf:"worker_registry"`

	// PostgresDSN is the connection string used when JobStore is postgres.
	PostgresDSN string `koanf:"postgres_dsn"`

	// RedisAddr and RedisDB configure the redis worker registry.
	RedisAddr string `koanf:"redis_addr"`
	RedisDB   int    `koanf:"redis_db"`

	// NATSURL and NATSBucket configure the JetStream KV job store.
	NATSURL    string `koanf:"nats_url"`
	NATSBucket string `koanf:"nats_bucket"`

	// AutoMatchMaxAttempts caps the ranked candidates tried per auto-match.
	AutoMatchMaxAttempts int `koanf:"auto_match_max_attempts"`

	// ReconcileQueueSize bounds the availability reconcile queue.
	ReconcileQueueSize int `koanf:"reconcile_queue_size"`

	// ReconcileWorkers sets the number of reconcile workers.
	ReconcileWorkers int `koanf:"reconcile_workers"`

	// ReconcileMaxAttempts caps retries of one availability repair.
	ReconcileMaxAttempts int `koanf:"reconcile_max_attempts"`

	// ReconcileDedupeSize bounds the set of pending reconcile keys.
	ReconcileDedupeSize int `koanf:"reconcile_dedupe_size"`

	// StoreRetryAttempts, StoreRetryBaseMS and StoreRetryMaxMS bound the
	// boundary retries after a store reports itself unavailable.
	StoreRetryAttempts int `koanf:"store_retry_attempts"`
	StoreRetryBaseMS   int `koanf:"store_retry_base_ms"`
	StoreRetryMaxMS    int `koanf:"store_retry_max_ms"`

	// MaxSuggestions caps GET /jobs/{id}/suggestions?limit.
	MaxSuggestions int `koanf:"max_suggestions"`

	// ScorePrecision is the number of decimals kept in performance scores.
	ScorePrecision int `koanf:"score_precision"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":9080",
		JobStore:             BackendMemory,
		WorkerRegistry:       BackendMemory,
		RedisAddr:            "localhost:6379",
		NATSURL:              "nats://127.0.0.1:4222",
		NATSBucket:           "movers-jobs",
		AutoMatchMaxAttempts: 5,
		ReconcileQueueSize:   10_000,
		ReconcileWorkers:     runtime.NumCPU(),
		ReconcileMaxAttempts: 8,
		ReconcileDedupeSize:  50_000,
		StoreRetryAttempts:   3,
		StoreRetryBaseMS:     20,
		StoreRetryMaxMS:      500,
		MaxSuggestions:       50,
		ScorePrecision:       4,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.AutoMatchMaxAttempts < 1:
		return fmt.Errorf("%w: auto_match_max_attempts must be >= 1", ErrInvalidConfig)
	case c.StoreRetryAttempts < 1:
		return fmt.Errorf("%w: store_retry_attempts must be >= 1", ErrInvalidConfig)
	case c.MaxSuggestions < 1:
		return fmt.Errorf("%w: max_suggestions must be >= 1", ErrInvalidConfig)
	case c.ScorePrecision < 0 || c.ScorePrecision > 10:
		return fmt.Errorf("%w: score_precision must be within 0..10", ErrInvalidConfig)
	}

	switch strings.ToLower(c.JobStore) {
	case BackendMemory:
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres_dsn is required for job_store=postgres", ErrInvalidConfig)
		}
	case BackendNATS:
		if c.NATSURL == "" || c.NATSBucket == "" {
			return fmt.Errorf("%w: nats_url and nats_bucket are required for job_store=nats", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown job_store %q", ErrInvalidConfig, c.JobStore)
	}

	switch strings.ToLower(c.WorkerRegistry) {
	case BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: redis_addr is required for worker_registry=redis", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown worker_registry %q", ErrInvalidConfig, c.WorkerRegistry)
	}
	return nil
}
