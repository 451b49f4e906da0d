// Package config loads the identity service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds runtime settings for the identity service.
//
// JWTSecret signs every account token. It is required; the service refuses to
// start without it.
type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8090"`
	JWTSecret       string        `env:"JWT_SECRET,required"`
	StoreDriver     string        `env:"STORE_DRIVER" envDefault:"mongo"`
	MongoURI        string        `env:"MONGO_URI" envDefault:"mongodb://127.0.0.1:27017"`
	MongoDatabase   string        `env:"MONGO_DATABASE" envDefault:"tracker"`
	MongoCollection string        `env:"MONGO_COLLECTION" envDefault:"users"`
	DatabaseDSN     string        `env:"DATABASE_DSN"`
	StoreTimeout    time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	BcryptCost      int           `env:"BCRYPT_COST" envDefault:"10"`
	HashWorkers     int           `env:"HASH_WORKERS" envDefault:"0"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`
	AMQPURL         string        `env:"AMQP_URL"`
	AMQPExchange    string        `env:"AMQP_EXCHANGE" envDefault:"identity"`
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first when present; real environment variables
// take precedence over it.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("error parsing environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must not be empty")
	}

	switch c.StoreDriver {
	case DriverMongo, DriverMemory:
	case DriverPostgres:
		if c.DatabaseDSN == "" {
			return errors.New("DATABASE_DSN is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if c.StoreTimeout <= 0 {
		return errors.New("STORE_TIMEOUT must be positive")
	}
	return nil
}
