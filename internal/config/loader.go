package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/viper"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// Config file is optional; environment variables can carry everything
	if err := viper.ReadInConfig(); err == nil {
		if err := viper.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	applyEnvironmentOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyEnvironmentOverrides applies environment variable overrides to config
func applyEnvironmentOverrides(cfg *Config) {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if salt := os.Getenv("FINGERPRINT_SALT"); salt != "" {
		cfg.Server.FingerprintSalt = salt
	}

	if driver := os.Getenv("BACKEND_DRIVER"); driver != "" {
		cfg.Backend.Driver = driver
	}
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.Backend.Redis.Host = host
	}
	if port := os.Getenv("REDIS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Backend.Redis.Port = p
		}
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Backend.Redis.Password = password
	}
	if table := os.Getenv("DYNAMODB_TABLE"); table != "" {
		cfg.Backend.DynamoDB.Table = table
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.Backend.DynamoDB.Region = region
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		cfg.Backend.Postgres.Host = host
	}
	if port := os.Getenv("POSTGRES_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Backend.Postgres.Port = p
		}
	}
	if db := os.Getenv("POSTGRES_DATABASE"); db != "" {
		cfg.Backend.Postgres.Database = db
	}
	if user := os.Getenv("POSTGRES_USER"); user != "" {
		cfg.Backend.Postgres.User = user
	}
	if password := os.Getenv("POSTGRES_PASSWORD"); password != "" {
		cfg.Backend.Postgres.Password = password
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		cfg.Backend.NatsKV.URL = url
		cfg.Notify.NatsURL = url
	}
	if bucket := os.Getenv("NATS_BUCKET"); bucket != "" {
		cfg.Backend.NatsKV.Bucket = bucket
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
