package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

// PostgresConfig locates the database that backs guild settings.
type PostgresConfig struct {
	Host     string `env:"POSTGRES_HOST, required"`
	Port     string `env:"POSTGRES_PORT, default=5432"`
	Username string `env:"POSTGRES_USERNAME, required"`
	Password string `env:"POSTGRES_PASSWORD, required"`
	Database string `env:"POSTGRES_DATABASE, default=talkward"`
	SSLMode  string `env:"POSTGRES_SSLMODE, default=disable"`

	// PoolSize caps the pgx connection pool. Settings reads are cached per
	// session, so the pool stays small.
	PoolSize int `env:"POSTGRES_POOL_SIZE, default=4"`
}

func NewPostgresConfigFromEnv() (*PostgresConfig, error) {
	var cfg PostgresConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// DSN renders the pgx connection string, including the pool bound.
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&pool_max_conns=%d",
		c.Username,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
		c.SSLMode,
		c.PoolSize,
	)
}
