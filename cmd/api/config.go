package main

import (
	"log/slog"
	"time"

	"github.com/fastprodman/gamegateway/internal/config"
)

const (
	storePostgres = "postgres"
	storeRedis    = "redis"
	storeMemory   = "memory"
)

type apiConfig struct {
	Port            uint16        `env:"APP_PORT" default:"8080"`
	LogLevel        slog.Level    `env:"APP_LOG_LEVEL" default:"INFO"`
	ShutdownTimeout time.Duration `env:"APP_SHUTDOWN_TIMEOUT" default:"15s"`

	// StoreDriver selects the record store: postgres, redis or memory.
	StoreDriver    string        `env:"STORE_DRIVER" default:"postgres"`
	ProvidersFile  string        `env:"PROVIDERS_FILE" default:"providers.yaml"`
	AttemptTimeout time.Duration `env:"LAUNCH_ATTEMPT_TIMEOUT" default:"10s"`

	Postgres config.PostgresConfig
	Redis    config.RedisConfig
	Health   config.HealthConfig
	Cache    config.CacheConfig
}
