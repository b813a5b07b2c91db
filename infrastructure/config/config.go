// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"tradequest-go/domain/storage"
)

// Store backends accepted by STORE_BACKEND.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
)

// Config holds every setting read from the environment.
type Config struct {
	StoreBackend   string        `env:"STORE_BACKEND" envDefault:"memory"`
	StoreNamespace string        `env:"STORE_NAMESPACE" envDefault:"tradequest"`
	RedisURL       string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	MongoURI       string        `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase  string        `env:"MONGO_DATABASE" envDefault:"tradequest"`
	MongoTimeout   time.Duration `env:"MONGO_TIMEOUT" envDefault:"10s"`
	GameTurns      int           `env:"GAME_TURNS" envDefault:"20"`
	GameSeed       uint64        `env:"GAME_SEED" envDefault:"0"`
	StartingCash   float64       `env:"STARTING_CASH" envDefault:"10000"`
	Autopilot      bool          `env:"GAME_AUTOPILOT" envDefault:"true"`
	MetricsAddr    string        `env:"METRICS_ADDR"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON        bool          `env:"LOG_JSON" envDefault:"false"`
}

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values env tags cannot express.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendRedis, BackendMongo:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if err := storage.ValidateNamespace(c.StoreNamespace); err != nil {
		return fmt.Errorf("invalid STORE_NAMESPACE: %w", err)
	}
	if c.GameTurns <= 0 {
		return fmt.Errorf("GAME_TURNS must be positive, got %d", c.GameTurns)
	}
	if c.StartingCash <= 0 {
		return fmt.Errorf("STARTING_CASH must be positive, got %v", c.StartingCash)
	}
	return nil
}
