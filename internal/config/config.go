package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the runtime configuration, sourced from the environment.
// A .env file in the working directory is loaded first when present;
// real environment variables win over it.
type Config struct {
	Addr          string
	PGDSN         string
	RedisURL      string
	AuthSecret    string
	Issuer        string
	AccessTTL     time.Duration
	RateBurst     int
	RatePerSecond int
	MaxBodyBytes  int64
	MigrationsDir string
	SeedsDir      string
}

// Load reads LINGUA_* variables. The signing secret is the only hard
// requirement; secrets never live in source or defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:          getEnv("LINGUA_ADDR", ":8080"),
		PGDSN:         os.Getenv("LINGUA_PG_DSN"),
		RedisURL:      os.Getenv("LINGUA_REDIS_URL"),
		AuthSecret:    os.Getenv("LINGUA_AUTH_SECRET"),
		Issuer:        getEnv("LINGUA_TOKEN_ISSUER", "lingua"),
		MigrationsDir: getEnv("LINGUA_MIGRATIONS_DIR", "migrations/sql"),
		SeedsDir:      getEnv("LINGUA_SEEDS_DIR", "migrations/seeds"),
	}
	if cfg.AuthSecret == "" {
		return Config{}, fmt.Errorf("LINGUA_AUTH_SECRET is required")
	}

	ttlMinutes, err := getEnvInt("LINGUA_ACCESS_TTL_MINUTES", 120)
	if err != nil {
		return Config{}, err
	}
	if ttlMinutes <= 0 {
		return Config{}, fmt.Errorf("LINGUA_ACCESS_TTL_MINUTES must be positive")
	}
	cfg.AccessTTL = time.Duration(ttlMinutes) * time.Minute

	if cfg.RateBurst, err = getEnvInt("LINGUA_RATE_BURST", 20); err != nil {
		return Config{}, err
	}
	if cfg.RatePerSecond, err = getEnvInt("LINGUA_RATE_PER_SECOND", 10); err != nil {
		return Config{}, err
	}
	maxBody, err := getEnvInt("LINGUA_MAX_BODY_BYTES", 1<<20)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxBodyBytes = int64(maxBody)

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}
