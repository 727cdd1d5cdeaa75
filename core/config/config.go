// Package config provides environment-based configuration for srmgate.
//
// Configuration is loaded from environment variables using Viper, with
// defaults suitable for a single-node development setup.
//
// # Environment Variables
//
//   - LOG_LEVEL: Logging level (debug, info, warn, error). Default: info
//   - PORT: Admin HTTP server port. Default: 8080
//   - DB_TYPE: Database type (sqlite, postgres, mysql). Default: sqlite
//   - DSN: Database connection string. Default: srmgate.db
//   - SKIP_AUTO_MIGRATE: Skip automatic database migrations. Default: false
//   - RECORD_BACKEND: Where identity records live (gorm, redis, memory). Default: gorm
//   - REDIS_ADDR, REDIS_PREFIX: Redis record store. Default: localhost:6379, srmgate:record:
//   - IDENTITY_CODEC: Record encoding (principal, chain). Default: principal
//   - CACHE_SIZE, CACHE_TTL: Record value cache bounds. Default: 4096, 10m
//   - LOCK_STRIPES: Per-id lock table size. Default: 1024
//   - MAX_SALT_ATTEMPTS: Collision retries before giving up. Default: 64
//   - GC_INTERVAL: Period of the record collector, 0 disables it. Default: 15m
//   - GC_REFERENCES: Comma separated table.column list holding record ids
//   - GC_MIN_AGE: Records younger than this are never collected. Default: 1m
//   - CA_FILE: PEM file with trust anchors for certificate logins
//   - SESSION_SECRET, SESSION_TTL: Session token signing. Default: disabled, 12h
//   - TELEMETRY_ENABLED: Expose Prometheus metrics. Default: true
//
// # Example Usage
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Starting on port %d with %s records\n", cfg.Port, cfg.RecordBackend)
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	LogLevel        string `mapstructure:"LOG_LEVEL"`
	Port            int    `mapstructure:"PORT"`
	DBType          string `mapstructure:"DB_TYPE"` // sqlite, postgres, mysql
	DSN             string `mapstructure:"DSN"`
	SkipAutoMigrate bool   `mapstructure:"SKIP_AUTO_MIGRATE"`

	RecordBackend string `mapstructure:"RECORD_BACKEND"` // gorm, redis, memory
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPrefix   string `mapstructure:"REDIS_PREFIX"`

	IdentityCodec   string        `mapstructure:"IDENTITY_CODEC"` // principal, chain
	CacheSize       int           `mapstructure:"CACHE_SIZE"`
	CacheTTL        time.Duration `mapstructure:"CACHE_TTL"`
	LockStripes     int           `mapstructure:"LOCK_STRIPES"`
	MaxSaltAttempts int           `mapstructure:"MAX_SALT_ATTEMPTS"`

	GCInterval   time.Duration `mapstructure:"GC_INTERVAL"`
	GCReferences string        `mapstructure:"GC_REFERENCES"`
	GCMinAge     time.Duration `mapstructure:"GC_MIN_AGE"`

	CAFile        string        `mapstructure:"CA_FILE"`
	SessionSecret string        `mapstructure:"SESSION_SECRET"`
	SessionTTL    time.Duration `mapstructure:"SESSION_TTL"`

	TelemetryEnabled bool `mapstructure:"TELEMETRY_ENABLED"`
}

func LoadConfig() (*Config, error) {
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("PORT", 8080)
	viper.SetDefault("DB_TYPE", "sqlite")
	viper.SetDefault("DSN", "srmgate.db")
	viper.SetDefault("SKIP_AUTO_MIGRATE", false)
	viper.SetDefault("RECORD_BACKEND", "gorm")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PREFIX", "srmgate:record:")
	viper.SetDefault("IDENTITY_CODEC", "principal")
	viper.SetDefault("CACHE_SIZE", 4096)
	viper.SetDefault("CACHE_TTL", 10*time.Minute)
	viper.SetDefault("LOCK_STRIPES", 1024)
	viper.SetDefault("MAX_SALT_ATTEMPTS", 64)
	viper.SetDefault("GC_INTERVAL", 15*time.Minute)
	viper.SetDefault("GC_REFERENCES", "")
	viper.SetDefault("GC_MIN_AGE", time.Minute)
	viper.SetDefault("CA_FILE", "")
	viper.SetDefault("SESSION_SECRET", "")
	viper.SetDefault("SESSION_TTL", 12*time.Hour)
	viper.SetDefault("TELEMETRY_ENABLED", true)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.RecordBackend {
	case "gorm", "redis", "memory":
	default:
		return fmt.Errorf("config: RECORD_BACKEND must be gorm, redis or memory, got %q", c.RecordBackend)
	}
	switch c.IdentityCodec {
	case "principal", "chain":
	default:
		return fmt.Errorf("config: IDENTITY_CODEC must be principal or chain, got %q", c.IdentityCodec)
	}
	if c.MaxSaltAttempts < 1 {
		return fmt.Errorf("config: MAX_SALT_ATTEMPTS must be positive, got %d", c.MaxSaltAttempts)
	}
	if c.IdentityCodec == "chain" && c.CAFile == "" {
		return fmt.Errorf("config: IDENTITY_CODEC=chain needs CA_FILE")
	}
	return nil
}
