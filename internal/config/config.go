package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

const defaultJWTSecret = "dev-secret-change-in-production"

// Store backends.
const (
	StoreMemory = "memory"
	StoreMySQL  = "mysql"
	StoreRedis  = "redis"
)

var ErrDefaultSecret = errors.New("JWT_SECRET must be set in production environment")

type Config struct {
	Port string
	Env  string

	CredentialStore string
	DatabaseDSN     string

	SessionStore  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	StoreTimeout  time.Duration

	JWTSecret      string
	JWTIssuer      string
	AccessTokenTTL time.Duration
	ResetTokenTTL  time.Duration
	BcryptCost     int

	UserRateLimitMax    int64
	UserRateLimitWindow time.Duration
	IPRatePerSecond     float64
	IPRateBurst         int
}

// Load reads the configuration from the environment. Malformed values fall
// back to their defaults with a warning.
func Load() (Config, error) {
	cfg := Config{
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		CredentialStore: getEnv("CREDENTIAL_STORE", StoreMySQL),
		DatabaseDSN:     getEnv("DATABASE_DSN", "root:password@tcp(127.0.0.1:3306)/fingenius?parseTime=true"),

		SessionStore:  getEnv("SESSION_STORE", StoreRedis),
		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),
		RedisPrefix:   getEnv("REDIS_PREFIX", "fingenius:"),
		StoreTimeout:  getDuration("STORE_TIMEOUT", 3*time.Second),

		JWTSecret:      getEnv("JWT_SECRET", defaultJWTSecret),
		JWTIssuer:      getEnv("JWT_ISSUER", "fingenius"),
		AccessTokenTTL: getDuration("ACCESS_TOKEN_TTL", 7*24*time.Hour),
		ResetTokenTTL:  getDuration("RESET_TOKEN_TTL", time.Hour),
		BcryptCost:     getInt("BCRYPT_COST", 12),

		UserRateLimitMax:    int64(getInt("USER_RATE_LIMIT_MAX", 100)),
		UserRateLimitWindow: getDuration("USER_RATE_LIMIT_WINDOW", 15*time.Minute),
		IPRatePerSecond:     getFloat("IP_RATE_LIMIT_RPS", 5),
		IPRateBurst:         getInt("IP_RATE_LIMIT_BURST", 10),
	}

	if cfg.Env == "production" && cfg.JWTSecret == defaultJWTSecret {
		return cfg, ErrDefaultSecret
	}

	switch cfg.CredentialStore {
	case StoreMySQL, StoreMemory:
	default:
		return cfg, fmt.Errorf("unknown CREDENTIAL_STORE %q", cfg.CredentialStore)
	}
	switch cfg.SessionStore {
	case StoreRedis, StoreMemory:
	default:
		return cfg, fmt.Errorf("unknown SESSION_STORE %q", cfg.SessionStore)
	}

	return cfg, nil
}

// IsProduction reports whether the service runs in production.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", v)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("invalid number in environment, using default", "key", key, "value", v)
		return fallback
	}
	return f
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", v)
		return fallback
	}
	return d
}
