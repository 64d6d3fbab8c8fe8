// Copyright (c) 2025 AndeLabs. All Rights Reserved.

package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Load reads configuration from environment variables.
// It attempts to load from .env file first (for local development),
// then parses environment variables into the Config struct.
func Load() (*Config, error) {
	// In production the environment is injected directly; the .env file
	// only exists for local runs.
	if err := godotenv.Load(); err != nil {
		logrus.Warnf("no .env file found or error loading it: %v (this is normal in production)", err)
	} else {
		logrus.Infof("loaded environment variables from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config from environment: %w", err)
	}

	return cfg, nil
}

// Validate performs custom validation on the configuration.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP_PORT: %d (must be 1-65535)", c.HTTPPort)
	}
	if c.MetricsPort < 1 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid METRICS_PORT: %d (must be 1-65535)", c.MetricsPort)
	}

	switch c.StoreBackend {
	case "redis":
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required when STORE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("invalid STORE_BACKEND: %q (must be redis or postgres)", c.StoreBackend)
	}

	if c.RankIntervalSeconds < 1 {
		return fmt.Errorf("invalid RANK_INTERVAL_SECONDS: %d (must be positive)", c.RankIntervalSeconds)
	}
	if c.WSPushIntervalSeconds < 1 {
		return fmt.Errorf("invalid WS_PUSH_INTERVAL_SECONDS: %d (must be positive)", c.WSPushIntervalSeconds)
	}
	if c.HTTPRateLimit < 1 {
		return fmt.Errorf("invalid HTTP_RATE_LIMIT: %d (must be positive)", c.HTTPRateLimit)
	}
	if c.HTTPRateBurst < c.HTTPRateLimit {
		return fmt.Errorf("invalid HTTP_RATE_BURST: %d (must be >= HTTP_RATE_LIMIT)", c.HTTPRateBurst)
	}

	return nil
}
