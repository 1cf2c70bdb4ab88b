package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                string        `mapstructure:"PORT"`
	Env                 string        `mapstructure:"ENV"`
	DatabaseURL         string        `mapstructure:"DATABASE_URL"`
	DBMaxConns          int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL            string        `mapstructure:"REDIS_URL"`
	DefaultOrg          string        `mapstructure:"DEFAULT_ORG"`
	CORSOrigins         []string      `mapstructure:"CORS_ORIGINS"`
	QueueMaxRetries     int           `mapstructure:"QUEUE_MAX_RETRIES"`
	QueueRetryBaseDelay time.Duration `mapstructure:"QUEUE_RETRY_BASE_DELAY"`
	DedupLockTTL        time.Duration `mapstructure:"DEDUP_LOCK_TTL"`
	LockBackend         string        `mapstructure:"LOCK_BACKEND"`
	RateLimitRPS        float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst      int           `mapstructure:"RATE_LIMIT_BURST"`
	MigrationsDir       string        `mapstructure:"MIGRATIONS_DIR"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DEFAULT_ORG", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("QUEUE_MAX_RETRIES", 3)
	v.SetDefault("QUEUE_RETRY_BASE_DELAY", "5s")
	v.SetDefault("DEDUP_LOCK_TTL", "30s")
	v.SetDefault("LOCK_BACKEND", "memory")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("MIGRATIONS_DIR", "migrations")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("REDIS_URL")
	v.BindEnv("DEFAULT_ORG")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("QUEUE_MAX_RETRIES")
	v.BindEnv("QUEUE_RETRY_BASE_DELAY")
	v.BindEnv("DEDUP_LOCK_TTL")
	v.BindEnv("LOCK_BACKEND")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("MIGRATIONS_DIR")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch c.LockBackend {
	case "memory":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when LOCK_BACKEND is \"redis\"")
		}
	default:
		return fmt.Errorf("LOCK_BACKEND must be \"memory\" or \"redis\", got %q", c.LockBackend)
	}

	if c.QueueMaxRetries < 1 {
		return fmt.Errorf("QUEUE_MAX_RETRIES must be at least 1, got %d", c.QueueMaxRetries)
	}
	if c.QueueRetryBaseDelay <= 0 {
		return fmt.Errorf("QUEUE_RETRY_BASE_DELAY must be positive, got %s", c.QueueRetryBaseDelay)
	}
	if c.DedupLockTTL <= 0 {
		return fmt.Errorf("DEDUP_LOCK_TTL must be positive, got %s", c.DedupLockTTL)
	}

	return nil
}
