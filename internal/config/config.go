package config

import (
	"errors"
	"time"
)

// Config represents the comment engine configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Backend     BackendConfig     `mapstructure:"backend"`
	Moderation  ModerationConfig  `mapstructure:"moderation"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Notify      NotifyConfig      `mapstructure:"notify"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig represents the HTTP boundary configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	FingerprintSalt string        `mapstructure:"fingerprint_salt"`
}

// BackendConfig selects and configures the storage backend
type BackendConfig struct {
	// Driver is one of: memory, redis, dynamodb, postgres, natskv
	Driver string `mapstructure:"driver"`

	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`

	Redis    RedisConfig    `mapstructure:"redis"`
	DynamoDB DynamoDBConfig `mapstructure:"dynamodb"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	NatsKV   NatsKVConfig   `mapstructure:"natskv"`
}

// RedisConfig represents the Redis backend configuration
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DynamoDBConfig represents the DynamoDB backend configuration
type DynamoDBConfig struct {
	Table  string `mapstructure:"table"`
	Region string `mapstructure:"region"`
}

// PostgresConfig represents the PostgreSQL backend configuration
type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MinConnections int    `mapstructure:"min_connections"`
}

// NatsKVConfig represents the NATS JetStream KV backend configuration
type NatsKVConfig struct {
	URL    string `mapstructure:"url"`
	Bucket string `mapstructure:"bucket"`
}

// ModerationConfig represents moderation defaults for new threads
type ModerationConfig struct {
	AutoApproveThreshold float64 `mapstructure:"auto_approve_threshold"`
	MaxBodyBytes         int     `mapstructure:"max_body_bytes"`
	PageSize             int     `mapstructure:"page_size"`
}

// RateLimitConfig represents the submission quota configuration
type RateLimitConfig struct {
	Window    time.Duration `mapstructure:"window"`
	Threshold int           `mapstructure:"threshold"`
}

// IdempotencyConfig represents idempotency key retention
type IdempotencyConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// NotifyConfig represents the moderation event dispatch configuration
type NotifyConfig struct {
	// Driver is one of: log, nats
	Driver  string `mapstructure:"driver"`
	NatsURL string `mapstructure:"nats_url"`
	Subject string `mapstructure:"subject"`
}

// MetricsConfig represents Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	if c.Server.FingerprintSalt == "" {
		return errors.New("server.fingerprint_salt is required")
	}
	switch c.Backend.Driver {
	case "memory":
	case "redis":
		if c.Backend.Redis.Host == "" {
			return errors.New("backend.redis.host is required")
		}
	case "dynamodb":
		if c.Backend.DynamoDB.Table == "" {
			return errors.New("backend.dynamodb.table is required")
		}
	case "postgres":
		if c.Backend.Postgres.Host == "" {
			return errors.New("backend.postgres.host is required")
		}
		if c.Backend.Postgres.Database == "" {
			return errors.New("backend.postgres.database is required")
		}
		if c.Backend.Postgres.User == "" {
			return errors.New("backend.postgres.user is required")
		}
	case "natskv":
		if c.Backend.NatsKV.URL == "" {
			return errors.New("backend.natskv.url is required")
		}
		if c.Backend.NatsKV.Bucket == "" {
			return errors.New("backend.natskv.bucket is required")
		}
	default:
		return errors.New("backend.driver must be one of: memory, redis, dynamodb, postgres, natskv")
	}
	if c.Moderation.AutoApproveThreshold < 0 || c.Moderation.AutoApproveThreshold > 1 {
		return errors.New("moderation.auto_approve_threshold must be in [0, 1]")
	}
	if c.RateLimit.Window <= 0 {
		return errors.New("rate_limit.window must be positive")
	}
	if c.RateLimit.Threshold <= 0 {
		return errors.New("rate_limit.threshold must be positive")
	}
	if c.Idempotency.TTL <= 0 {
		return errors.New("idempotency.ttl must be positive")
	}
	switch c.Notify.Driver {
	case "log":
	case "nats":
		if c.Notify.NatsURL == "" {
			return errors.New("notify.nats_url is required")
		}
	default:
		return errors.New("notify.driver must be one of: log, nats")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	return nil
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Backend: BackendConfig{
			Driver:         "memory",
			RetryAttempts:  3,
			RetryBaseDelay: 50 * time.Millisecond,
			Redis: RedisConfig{
				Host: "localhost",
				Port: 6379,
			},
			DynamoDB: DynamoDBConfig{
				Table: "commentable",
			},
			Postgres: PostgresConfig{
				Host:           "localhost",
				Port:           5432,
				Database:       "commentable",
				User:           "commentable",
				MaxConnections: 20,
				MinConnections: 2,
			},
			NatsKV: NatsKVConfig{
				URL:    "nats://localhost:4222",
				Bucket: "commentable",
			},
		},
		Moderation: ModerationConfig{
			AutoApproveThreshold: 0.3,
			MaxBodyBytes:         8192,
			PageSize:             100,
		},
		RateLimit: RateLimitConfig{
			Window:    time.Minute,
			Threshold: 5,
		},
		Idempotency: IdempotencyConfig{
			TTL: 24 * time.Hour,
		},
		Notify: NotifyConfig{
			Driver:  "log",
			Subject: "commentable.events",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
