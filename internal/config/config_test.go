package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Server.FingerprintSalt = "test-salt"
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidate_RequiresFingerprintSalt(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fingerprint_salt")
}

func TestValidate_RejectsUnknownDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Backend.Driver = "sqlite"
	assert.Error(t, cfg.Validate())
}

func TestValidate_DriverRequirements(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"redis host", func(c *Config) { c.Backend.Driver = "redis"; c.Backend.Redis.Host = "" }},
		{"dynamodb table", func(c *Config) { c.Backend.Driver = "dynamodb"; c.Backend.DynamoDB.Table = "" }},
		{"postgres host", func(c *Config) { c.Backend.Driver = "postgres"; c.Backend.Postgres.Host = "" }},
		{"postgres database", func(c *Config) { c.Backend.Driver = "postgres"; c.Backend.Postgres.Database = "" }},
		{"postgres user", func(c *Config) { c.Backend.Driver = "postgres"; c.Backend.Postgres.User = "" }},
		{"natskv url", func(c *Config) { c.Backend.Driver = "natskv"; c.Backend.NatsKV.URL = "" }},
		{"natskv bucket", func(c *Config) { c.Backend.Driver = "natskv"; c.Backend.NatsKV.Bucket = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_ModerationAndQuotaBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Moderation.AutoApproveThreshold = 1.5
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.RateLimit.Window = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.RateLimit.Threshold = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Idempotency.TTL = -time.Hour
	assert.Error(t, cfg.Validate())
}

func TestValidate_NotifyDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Notify.Driver = "nats"
	cfg.Notify.NatsURL = ""
	assert.Error(t, cfg.Validate())

	cfg.Notify.NatsURL = "nats://localhost:4222"
	assert.NoError(t, cfg.Validate())

	cfg.Notify.Driver = "smtp"
	assert.Error(t, cfg.Validate())
}

func TestValidate_FillsLoggingDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = ""
	cfg.Logging.Format = ""
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestDefaultConfig_RateLimitWindow(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 5, cfg.RateLimit.Threshold)
	assert.Equal(t, 24*time.Hour, cfg.Idempotency.TTL)
	assert.Equal(t, 0.3, cfg.Moderation.AutoApproveThreshold)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("BACKEND_DRIVER", "redis")
	t.Setenv("REDIS_HOST", "redis.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("FINGERPRINT_SALT", "env-salt")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	applyEnvironmentOverrides(cfg)

	assert.Equal(t, "redis", cfg.Backend.Driver)
	assert.Equal(t, "redis.internal", cfg.Backend.Redis.Host)
	assert.Equal(t, 6380, cfg.Backend.Redis.Port)
	assert.Equal(t, "env-salt", cfg.Server.FingerprintSalt)
	assert.Equal(t, "debug", cfg.Logging.Level)
}
