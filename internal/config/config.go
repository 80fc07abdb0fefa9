// Package config loads the server configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is read once at startup and treated as immutable.
type Config struct {
	// Server
	Addr            string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration

	// Storage
	StoreDriver  string
	DatabaseDSN  string
	SQLitePath   string
	StoreTimeout time.Duration

	// Redis user cache; empty address disables it.
	RedisAddr    string
	UserCacheTTL time.Duration

	// Auth
	JWTSecret string

	// Chat
	Rooms          []string
	MaxMessageSize int64
	RatePerSecond  float64
	RateBurst      int

	// Logging
	LogLevel string
}

// Load reads the configuration from environment variables. Every missing
// required variable is reported in a single error.
func Load() (*Config, error) {
	cfg := &Config{
		Addr:            getEnvString("SERVER_ADDR", ":8080"),
		AllowedOrigins:  getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:8080"}),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		StoreDriver:     strings.ToLower(getEnvString("STORE_DRIVER", DriverPostgres)),
		DatabaseDSN:     os.Getenv("DB_DSN"),
		SQLitePath:      getEnvString("SQLITE_PATH", "chat.db"),
		StoreTimeout:    getEnvDuration("STORE_TIMEOUT", 5*time.Second),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		UserCacheTTL:    getEnvDuration("USER_CACHE_TTL", 5*time.Minute),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		Rooms:           getEnvList("ROOMS", nil),
		MaxMessageSize:  getEnvInt64("MAX_MESSAGE_SIZE", 4096),
		RatePerSecond:   getEnvFloat("RATE_LIMIT_PER_SEC", 5),
		RateBurst:       getEnvInt("RATE_LIMIT_BURST", 10),
		LogLevel:        getEnvString("LOG_LEVEL", "info"),
	}

	var missing []string
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	switch cfg.StoreDriver {
	case DriverPostgres:
		if cfg.DatabaseDSN == "" {
			missing = append(missing, "DB_DSN")
		}
	case DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}

	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil || i <= 0 {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
