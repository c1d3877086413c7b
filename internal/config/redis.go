package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

// RedisConfig locates the redis instance holding per-guild usage counters.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR, required"`
	Password string `env:"REDIS_PASSWORD"`

	// DB selects the logical database, so the counters can share an
	// instance with other tenants.
	DB int `env:"REDIS_DB, default=0"`
}

func NewRedisConfigFromEnv() (*RedisConfig, error) {
	var cfg RedisConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required")
	}
	return &cfg, nil
}
