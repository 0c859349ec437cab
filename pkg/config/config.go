// Package config loads the importer's runtime configuration from the
// environment, with .env support for local development.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Importer ImporterConfig
	Profiles ProfileStoreConfig
	Logging  LoggingConfig
	Metrics  MetricsConfig
}

type ImporterConfig struct {
	// DefaultAccountID is used when the CLI caller gives no account.
	DefaultAccountID string
	// MaxFileSizeBytes bounds uploads read into memory.
	MaxFileSizeBytes int64
}

type ProfileStoreConfig struct {
	// Backend is "sqlite" or "memory".
	Backend string
	// Path is the sqlite database location.
	Path string
}

type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or text
}

type MetricsConfig struct {
	Enabled bool
	Port    int
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Importer: ImporterConfig{
			DefaultAccountID: getEnv("IMPORTER_ACCOUNT_ID", ""),
			MaxFileSizeBytes: getEnvAsInt64("IMPORTER_MAX_FILE_SIZE", 25<<20),
		},
		Profiles: ProfileStoreConfig{
			Backend: getEnv("PROFILE_STORE", "sqlite"),
			Path:    getEnv("PROFILE_DB_PATH", "profiles.db"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvAsBool("METRICS_ENABLED", false),
			Port:    getEnvAsInt("METRICS_PORT", 9090),
		},
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, err := strconv.ParseInt(os.Getenv(key), 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}
