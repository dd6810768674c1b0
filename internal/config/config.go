// Package config reads process settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/nadmax/nexdag/internal/alert"
	"github.com/nadmax/nexdag/internal/engine"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Port        string
	RedisAddr   string
	PostgresDSN string
	PlanFile    string
	MaxRetries  int
	TimeScale   float64
	RandomSeed  uint64
	Alert       alert.Config
}

// Load reads every setting, falling back to defaults for unset variables.
// Empty RedisAddr, PostgresDSN or PlanFile disable the matching feature.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getenv("PORT", "8080"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
		PlanFile:    os.Getenv("PLAN_FILE"),
		Alert: alert.Config{
			APIKey:      os.Getenv("EMAIL_API_KEY"),
			FromName:    getenv("FROM_NAME", "nexdag"),
			FromAddress: os.Getenv("FROM_ADDRESS"),
			To:          os.Getenv("ALERT_TO"),
		},
	}

	var err error
	if cfg.MaxRetries, err = intEnv("MAX_RETRIES", engine.DefaultMaxRetries); err != nil {
		return nil, err
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("%w: MAX_RETRIES must not be negative", ErrInvalidConfig)
	}

	if cfg.TimeScale, err = floatEnv("TIME_SCALE", 1.0); err != nil {
		return nil, err
	}
	if cfg.TimeScale < 0 {
		return nil, fmt.Errorf("%w: TIME_SCALE must not be negative", ErrInvalidConfig)
	}

	if cfg.RandomSeed, err = uintEnv("RANDOM_SEED", 0); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return ":" + c.Port
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
	}
	return n, nil
}

func floatEnv(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
	}
	return f, nil
}

func uintEnv(key string, fallback uint64) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
	}
	return n, nil
}
