// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/iliyamo/account-service/internal/utils"
)

const (
	StorageMySQL  = "mysql"
	StorageMemory = "memory"
)

// Config holds all runtime configuration values. It is built once in main
// and handed to the components that need it.
type Config struct {
	Env           string `env:"APP_ENV" envDefault:"dev"`   // application environment (e.g. "dev", "prod")
	Port          string `env:"APP_PORT" envDefault:"3000"` // HTTP port to listen on
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"mysql"`

	DBUser    string `env:"DB_USER" envDefault:"root"`
	DBPass    string `env:"DB_PASS"` // empty allowed
	DBHost    string `env:"DB_HOST" envDefault:"127.0.0.1"`
	DBPort    string `env:"DB_PORT" envDefault:"3306"`
	DBName    string `env:"DB_NAME" envDefault:"accounts"`
	DBMigrate bool   `env:"DB_MIGRATE" envDefault:"true"` // apply embedded migrations at startup

	SecretToken           string `env:"SECRET_TOKEN,required,notEmpty"`             // signs access tokens
	ExpiresInToken        string `env:"EXPIRES_IN_TOKEN,required,notEmpty"`         // e.g. "15m", "1d"
	SecretRefreshToken    string `env:"SECRET_REFRESH_TOKEN,required,notEmpty"`     // signs refresh tokens
	ExpiresInRefreshToken string `env:"EXPIRES_IN_REFRESH_TOKEN,required,notEmpty"` // e.g. "30d", "12h"
	BcryptCost            int    `env:"BCRYPT_COST" envDefault:"10"`

	RabbitMQURL    string `env:"RABBITMQ_URL"` // empty disables event publishing
	NotifyConsumer bool   `env:"NOTIFY_CONSUMER" envDefault:"false"`
	NotifyLogDir   string `env:"NOTIFY_LOG_DIR" envDefault:"logs"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load parses Config from the process environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageMySQL, StorageMemory:
	default:
		return fmt.Errorf("config: unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if _, err := c.AccessTTL(); err != nil {
		return fmt.Errorf("config: EXPIRES_IN_TOKEN: %w", err)
	}
	if _, err := c.RefreshTTL(); err != nil {
		return fmt.Errorf("config: EXPIRES_IN_REFRESH_TOKEN: %w", err)
	}
	return nil
}

// AccessTTL is the access token lifetime.
func (c Config) AccessTTL() (time.Duration, error) { return utils.ParseExpiresIn(c.ExpiresInToken) }

// RefreshTTL is the refresh token (and session record) lifetime.
func (c Config) RefreshTTL() (time.Duration, error) {
	return utils.ParseExpiresIn(c.ExpiresInRefreshToken)
}

// MySQLDSN builds the go-sql-driver DSN for the configured database.
// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
// clientFoundRows=true makes UPDATE report matched rows
func (c Config) MySQLDSN() string {
	auth := c.DBUser
	if c.DBPass != "" {
		auth = fmt.Sprintf("%s:%s", c.DBUser, c.DBPass)
	}
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC&clientFoundRows=true",
		auth, c.DBHost, c.DBPort, c.DBName)
}
