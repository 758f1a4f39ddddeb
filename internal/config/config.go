// Package config defines the global configuration for the sagechat service.
// Configuration is loaded once at process initialization and is immutable
// thereafter, following 12-Factor principles: code and configuration are
// strictly separated, and no credential is ever embedded in source.
//
// Values are resolved from the OS environment, with a .env file as a
// development-time fallback. Any missing required value or invalid format
// fails the process immediately on startup.
package config

import (
	"time"

	"sagechat/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the specific config subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"sagechat-scheduler"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Sweep     SweepConfig
	Milestone MilestoneConfig
	Metrics   MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string        `envconfig:"PORT" default:"8080"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s"`
	CorsAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// RedisConfig holds the connection settings for the milestone mark store.
type RedisConfig struct {
	Addr     string       `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password SecretString `envconfig:"REDIS_PASSWORD"`
	DB       int          `envconfig:"REDIS_DB" default:"0"`
}

// SweepConfig holds settings for the due-message sweep: the static service
// key that authorizes the batch endpoint, and the endpoint URL the remote
// trigger client posts to.
type SweepConfig struct {
	ServiceKey  SecretString  `envconfig:"SWEEP_SERVICE_KEY" validate:"required,min=16"`
	EndpointURL string        `envconfig:"SWEEP_ENDPOINT_URL" validate:"omitempty,url"`
	LockTTL     time.Duration `envconfig:"SWEEP_LOCK_TTL" default:"5m"`
	HTTPTimeout time.Duration `envconfig:"SWEEP_HTTP_TIMEOUT" default:"30s"`
}

// MilestoneConfig holds settings for activation follow-up messages.
type MilestoneConfig struct {
	// MarkTTL bounds how long a sent-today mark lives in Redis. Anything
	// past two days can never suppress a send, since marks compare against
	// the current calendar date.
	MarkTTL time.Duration `envconfig:"MILESTONE_MARK_TTL" default:"48h"`
}

// MetricsConfig holds CloudWatch metric settings for the sweeper Lambda.
type MetricsConfig struct {
	Namespace string `envconfig:"METRIC_NAMESPACE" default:"SageChat"`
	Enabled   bool   `envconfig:"METRICS_ENABLED" default:"true"`
}
