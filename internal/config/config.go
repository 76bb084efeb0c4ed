// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store drivers understood by the command layer.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	StoreDriver string `env:"STORE_DRIVER" envDefault:"memory"`
	StoreDSN    string `env:"STORE_DSN"`

	BatchCeiling   int `env:"BATCH_CEILING" envDefault:"500"`
	BatchThreshold int `env:"BATCH_THRESHOLD" envDefault:"450"`

	TokenSecret string        `env:"TOKEN_SECRET"`
	TokenTTL    time.Duration `env:"TOKEN_TTL" envDefault:"1h"`

	IdentityRPS   float64 `env:"IDENTITY_RPS" envDefault:"10"`
	IdentityBurst int     `env:"IDENTITY_BURST" envDefault:"5"`

	RedisAddr string        `env:"REDIS_ADDR"`
	LockTTL   time.Duration `env:"LOCK_TTL" envDefault:"10m"`

	DatasetPath string `env:"DATASET_PATH"`

	FeatureTrainingProgress bool `env:"FEATURE_TRAINING_PROGRESS" envDefault:"false"`
	FeatureCommunityPosts   bool `env:"FEATURE_COMMUNITY_POSTS" envDefault:"false"`

	LogMode  string `env:"LOG_MODE" envDefault:"dev"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	// GRPCAddr serves the gRPC health service; empty disables it.
	GRPCAddr string `env:"GRPC_ADDR" envDefault:":9090"`

	HTTPRatePerSec int `env:"HTTP_RATE_PER_SEC" envDefault:"5"`
	HTTPRateBurst  int `env:"HTTP_RATE_BURST" envDefault:"10"`
}

// Load parses DEMODATA_-prefixed environment variables and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "DEMODATA_"}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverMemory:
	case DriverPostgres, DriverSQLite:
		if c.StoreDSN == "" {
			return fmt.Errorf("config: STORE_DSN is required for driver %q", c.StoreDriver)
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.StoreDriver)
	}
	if c.BatchCeiling <= 0 {
		return errors.New("config: BATCH_CEILING must be positive")
	}
	if c.BatchThreshold <= 0 || c.BatchThreshold >= c.BatchCeiling {
		return fmt.Errorf("config: BATCH_THRESHOLD must be in (0, %d), got %d", c.BatchCeiling, c.BatchThreshold)
	}
	if c.IdentityRPS <= 0 || c.IdentityBurst <= 0 {
		return errors.New("config: identity rate limits must be positive")
	}
	if c.HTTPRatePerSec <= 0 || c.HTTPRateBurst <= 0 {
		return errors.New("config: HTTP rate limits must be positive")
	}
	return nil
}
