package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

// Config holds every process-level setting. Values come from the environment.
type Config struct {
	Addr string `env:"ADDR" envDefault:":8080"`

	// DBDriver is a database/sql driver name: "pgx" for Postgres, "sqlite3" for local runs.
	DBDriver string `env:"DB_DRIVER" envDefault:"pgx"`
	DBDSN    string `env:"DB_DSN,required"`

	JWTSecret  string        `env:"JWT_SECRET,required"`
	TokenTTL   time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	BcryptCost int           `env:"BCRYPT_COST" envDefault:"10"`

	// RedisAddr enables the user lookup cache when set.
	RedisAddr    string        `env:"REDIS_ADDR"`
	UserCacheTTL time.Duration `env:"USER_CACHE_TTL" envDefault:"10m"`

	// AllowedOrigins restricts websocket upgrades. Empty allows any origin.
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	Development bool `env:"DEVELOPMENT" envDefault:"false"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET must not be empty")
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("TOKEN_TTL must be positive, got %s", cfg.TokenTTL)
	}
	return cfg, nil
}

// CacheEnabled reports whether a Redis address was configured.
func (c *Config) CacheEnabled() bool {
	return c.RedisAddr != ""
}
