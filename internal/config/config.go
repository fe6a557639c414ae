// Package config defines the configuration for the RollCall realtime core.
// Configuration is loaded once at process initialization and is immutable
// thereafter; it follows 12-Factor principles by strictly separating code
// from configuration.
//
// Values are resolved from the OS environment, with an optional dotenv file
// consulted first for local development. Any missing required value or
// invalid format causes startup to fail immediately (fail fast).
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the top-level configuration struct. It is populated once during
// process initialization and never modified. Sub-components receive only the
// specific subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"rollcall-core"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server    ServerConfig
	Database  DatabaseConfig
	Cache     CacheConfig
	Realtime  RealtimeConfig
	Jobs      JobsConfig
	Scheduler SchedulerConfig
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// DatabaseConfig holds connection parameters for the relational data
// collaborator. The core only reads from it (subscriber resolution, job
// payload construction); schema ownership is external.
type DatabaseConfig struct {
	URL             string        `envconfig:"DATABASE_URL" validate:"required"`
	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
}

// CacheConfig holds the shared cache store connection and mirror tuning.
type CacheConfig struct {
	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	// MirrorTTL bounds staleness of the cross-process connection mirror.
	// Must exceed the heartbeat interval or live connections would expire
	// from the mirror between pings.
	MirrorTTL time.Duration `envconfig:"CACHE_MIRROR_TTL" default:"60s"`
	OpTimeout time.Duration `envconfig:"CACHE_OP_TIMEOUT" default:"2s"`
}

// RealtimeConfig tunes the push connection subsystem.
type RealtimeConfig struct {
	PingInterval time.Duration `envconfig:"RT_PING_INTERVAL" default:"15s"`
	ReapInterval time.Duration `envconfig:"RT_REAP_INTERVAL" default:"30s"`
	// StaleAfter is the eviction threshold for connections that stopped
	// acknowledging pings. Must be greater than PingInterval.
	StaleAfter   time.Duration `envconfig:"RT_STALE_AFTER" default:"30s"`
	WriteTimeout time.Duration `envconfig:"RT_WRITE_TIMEOUT" default:"5s"`
}

// JobsConfig tunes the priority job queue.
type JobsConfig struct {
	Workers     int `envconfig:"JOB_WORKERS" default:"4" validate:"min=1"`
	HistorySize int `envconfig:"JOB_HISTORY_SIZE" default:"100" validate:"min=0"`
}

// SchedulerConfig tunes the cron schedule service.
type SchedulerConfig struct {
	ScanInterval time.Duration `envconfig:"SCHED_SCAN_INTERVAL" default:"1s"`
}

// Load resolves the configuration from the environment. A `.env` file in the
// working directory is loaded first when present (local development only);
// real environment variables always win. The resulting struct is validated
// and cross-field invariants are checked before it is returned.
func Load() (*Config, error) {
	// Best-effort: absence of a dotenv file is the normal production case.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: processing environment: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	if err := cfg.checkInvariants(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// checkInvariants enforces cross-field constraints that struct tags cannot
// express.
func (c *Config) checkInvariants() error {
	if c.Realtime.StaleAfter <= c.Realtime.PingInterval {
		return fmt.Errorf("config: RT_STALE_AFTER (%s) must be greater than RT_PING_INTERVAL (%s)",
			c.Realtime.StaleAfter, c.Realtime.PingInterval)
	}
	if c.Cache.MirrorTTL <= c.Realtime.PingInterval {
		return fmt.Errorf("config: CACHE_MIRROR_TTL (%s) must be greater than RT_PING_INTERVAL (%s)",
			c.Cache.MirrorTTL, c.Realtime.PingInterval)
	}
	return nil
}
