package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const defaultDSN = "host=localhost user=postgres password=postgres dbname=procurement port=5432 sslmode=disable"

type Config struct {
	HTTPPort    string
	DatabaseDSN string // "sqlite:<path>" selects SQLite, anything else is a Postgres DSN
	JWTSecret   string
	CORSOrigins string
	LogMode     string

	// Max mutations per store transaction.
	BatchChunkSize int
	// Orders with more items than this are split into "(Parte i/n)" orders.
	OrderSplitThreshold int

	RedisAddr    string // empty: in-process change bus
	RedisChannel string

	// Warnings collected while loading; main logs them once the logger exists.
	Warnings []string
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPPort:     getEnv("HTTP_PORT", "8080"),
		DatabaseDSN:  getEnv("DATABASE_DSN", defaultDSN),
		JWTSecret:    getEnv("JWT_SECRET", ""),
		CORSOrigins:  getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		LogMode:      getEnv("LOG_MODE", "development"),
		RedisAddr:    strings.TrimSpace(getEnv("REDIS_ADDR", "")),
		RedisChannel: getEnv("REDIS_CHANNEL", "procurement-changes"),
	}

	var err error
	if cfg.BatchChunkSize, err = getEnvInt("BATCH_CHUNK_SIZE", 500); err != nil {
		return nil, err
	}
	if cfg.OrderSplitThreshold, err = getEnvInt("ORDER_SPLIT_THRESHOLD", 500); err != nil {
		return nil, err
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if cfg.OrderSplitThreshold <= 0 {
		return nil, fmt.Errorf("ORDER_SPLIT_THRESHOLD must be positive, got %d", cfg.OrderSplitThreshold)
	}
	if cfg.DatabaseDSN == defaultDSN {
		cfg.Warnings = append(cfg.Warnings, "DATABASE_DSN is using the local default")
	}
	if cfg.CORSOrigins == "http://localhost:5173" {
		cfg.Warnings = append(cfg.Warnings, "CORS_ALLOWED_ORIGINS is using the local default")
	}
	if cfg.BatchChunkSize <= 0 {
		cfg.Warnings = append(cfg.Warnings, "BATCH_CHUNK_SIZE <= 0, batches are not chunked")
	}

	return cfg, nil
}

// UsesSQLite reports whether DatabaseDSN points at a SQLite file.
func (c *Config) UsesSQLite() bool {
	return strings.HasPrefix(c.DatabaseDSN, "sqlite:")
}

// SQLitePath strips the "sqlite:" prefix.
func (c *Config) SQLitePath() string {
	return strings.TrimPrefix(c.DatabaseDSN, "sqlite:")
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
