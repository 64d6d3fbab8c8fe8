// Copyright (c) 2025 AndeLabs. All Rights Reserved.

package config

// Config holds all application configuration loaded from environment
// variables via github.com/caarlos0/env struct tags.
type Config struct {
	// Server configuration
	HTTPPort    int    `env:"HTTP_PORT" envDefault:"8000"`
	MetricsPort int    `env:"METRICS_PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"dev"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"FlowClickerEngine"`

	// Game configuration
	PolicyPath string `env:"POLICY_PATH" envDefault:"config/policy.yaml"`
	// GenesisTimestamp anchors the reward decay schedule. Zero means
	// "now" on first boot; once the global state exists in storage the
	// stored value wins.
	GenesisTimestamp uint64 `env:"GENESIS_TIMESTAMP" envDefault:"0"`

	// Storage configuration. STORE_BACKEND selects redis or postgres.
	StoreBackend      string `env:"STORE_BACKEND" envDefault:"redis"`
	RedisHost         string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort         string `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword     string `env:"REDIS_PASSWORD"`
	RedisMaxRetries   int    `env:"REDIS_MAX_RETRIES" envDefault:"5"`
	RedisRetryDelayMs int    `env:"REDIS_RETRY_DELAY_MS" envDefault:"1000"`
	PostgresDSN       string `env:"POSTGRES_DSN"`

	// Audit trail. Empty path disables it.
	AuditPath string `env:"AUDIT_PATH" envDefault:"data/audit"`

	// Background work intervals, in seconds.
	RankIntervalSeconds   int `env:"RANK_INTERVAL_SECONDS" envDefault:"15"`
	WSPushIntervalSeconds int `env:"WS_PUSH_INTERVAL_SECONDS" envDefault:"2"`

	// HTTP ingress throttle, requests per second with burst headroom.
	HTTPRateLimit int `env:"HTTP_RATE_LIMIT" envDefault:"500"`
	HTTPRateBurst int `env:"HTTP_RATE_BURST" envDefault:"1000"`

	// Telemetry configuration
	OtelEnabled     bool   `env:"OTEL_ENABLED" envDefault:"true"`
	OtelServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"flowclicker-engine"`
}
