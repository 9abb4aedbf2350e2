// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) initializer to build a Config with defaults.
// - All functions accept context.Context as the first parameter.
// - External errors are wrapped with this package's sentinels.
package config

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DBPath is the SQLite database file. Empty keeps everything in memory.
	DBPath string `koanf:"db_path"`

	// WorkerCount sets the number of scoring workers.
	WorkerCount int `koanf:"worker_count"`

	// QueueSize bounds the scoring job queue.
	QueueSize int `koanf:"queue_size"`

	// ParallelThreshold is the batch size above which scoring fans out.
	ParallelThreshold int `koanf:"parallel_threshold"`

	// MaxFans, MaxAvgPlay and BasePrice scale the value index.
	MaxFans    float64 `koanf:"max_fans"`
	MaxAvgPlay float64 `koanf:"max_avg_play"`
	BasePrice  float64 `koanf:"base_price"`

	// RecommendationThreshold and RecommendationLimit are the defaults of
	// recommendation reports.
	RecommendationThreshold float64 `koanf:"recommendation_threshold"`
	RecommendationLimit     int     `koanf:"recommendation_limit"`

	// MaxListLimit caps page sizes of list endpoints.
	MaxListLimit int `koanf:"max_list_limit"`

	// MaxBatchFailures caps the failures listed by batch errors.
	MaxBatchFailures int `koanf:"max_batch_failures"`

	// RequestTimeoutMS bounds each HTTP request.
	RequestTimeoutMS int `koanf:"request_timeout_ms"`

	// RateLimitRPS and RateLimitBurst throttle mutating routes. A zero rate
	// disables throttling.
	RateLimitRPS   float64 `koanf:"rate_limit_rps"`
	RateLimitBurst int     `koanf:"rate_limit_burst"`

	// IdempotencySize and IdempotencyTTLMS size the Idempotency-Key cache.
	IdempotencySize  int `koanf:"idempotency_size"`
	IdempotencyTTLMS int `koanf:"idempotency_ttl_ms"`

	// PresetsFile optionally replaces the built-in weight presets (YAML).
	PresetsFile string `koanf:"presets_file"`

	// SeedProfiles stores every preset as a profile on first start.
	SeedProfiles bool `koanf:"seed_profiles"`
}

// New creates a Config with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:                "info",
		LogFormat:               "text",
		Addr:                    ":9080",
		WorkerCount:             runtime.NumCPU(),
		QueueSize:               4096,
		ParallelThreshold:       200,
		MaxFans:                 10_000_000,
		MaxAvgPlay:              1_000_000,
		BasePrice:               5_000,
		RecommendationThreshold: 70,
		RecommendationLimit:     10,
		MaxListLimit:            500,
		MaxBatchFailures:        20,
		RequestTimeoutMS:        30_000,
		RateLimitRPS:            50,
		RateLimitBurst:          100,
		IdempotencySize:         10_000,
		IdempotencyTTLMS:        600_000,
	}
}

// RequestTimeout returns RequestTimeoutMS as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// IdempotencyTTL returns IdempotencyTTLMS as a duration.
func (c *Config) IdempotencyTTL() time.Duration {
	return time.Duration(c.IdempotencyTTLMS) * time.Millisecond
}

// Validate reports the first setting the service cannot run with.
func (c *Config) Validate(_ context.Context) error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case !(c.MaxFans > 0):
		return fmt.Errorf("%w: max_fans must be positive", ErrInvalidScoring)
	case !(c.MaxAvgPlay > 0):
		return fmt.Errorf("%w: max_avg_play must be positive", ErrInvalidScoring)
	case !(c.BasePrice > 0):
		return fmt.Errorf("%w: base_price must be positive", ErrInvalidScoring)
	case c.RecommendationThreshold < 0 || c.RecommendationThreshold > 100:
		return fmt.Errorf("%w: recommendation_threshold must be within [0,100]", ErrInvalidScoring)
	case c.RateLimitRPS < 0 || c.RateLimitBurst < 0:
		return fmt.Errorf("%w: rate limit must not be negative", ErrInvalidConfig)
	case c.RequestTimeoutMS < 0:
		return fmt.Errorf("%w: request_timeout_ms must not be negative", ErrInvalidConfig)
	}
	return nil
}
