// Package config loads application configuration from environment variables
// with command-line flag overrides. All fields have sensible defaults.
package config

import (
	"os"
	"path/filepath"
	"strconv"
)

// Version is set at build time via -ldflags
// Default "dev" is used for development builds
var Version = "dev"

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Port is the HTTP server listen port (default: 3092)
	Port string

	// LogLevel controls logging verbosity: "debug", "info", "warn", "error" (default: "info")
	LogLevel string

	// DataDir is the directory for persistent data (database, logs)
	// Default: /config in Docker, ./config locally
	DataDir string

	// DatabasePath is the SQLite database file path (default: <DataDir>/lendarr.db)
	DatabasePath string

	// LogDir is the directory for log files (default: <DataDir>/logs)
	LogDir string

	// DueSoonThresholdDays is the "due soon" lookahead in days (default: 2)
	DueSoonThresholdDays int

	// SweepCron is an optional cron expression for the background lifecycle
	// sweep. Empty disables it; lazy, read-triggered evaluation is the
	// primary mechanism either way.
	SweepCron string
}

// Global singleton
var cfg *Config

// Load reads configuration from environment variables with sensible defaults.
// Should be called once at application startup.
func Load() *Config {
	dataDir := getEnvOrDefault("LENDARR_DATA_DIR", "")
	if dataDir == "" {
		if info, err := os.Stat("/config"); err == nil && info.IsDir() {
			dataDir = "/config"
		} else if cwd, err := os.Getwd(); err == nil {
			dataDir = filepath.Join(cwd, "config")
		} else {
			dataDir = "./config"
		}
	}
	if absDataDir, err := filepath.Abs(dataDir); err == nil {
		dataDir = absDataDir
	}
	_ = os.MkdirAll(dataDir, 0755)

	cfg = &Config{
		Port:                 getEnvOrDefault("LENDARR_PORT", "3092"),
		LogLevel:             getEnvOrDefault("LENDARR_LOG_LEVEL", "info"),
		DataDir:              dataDir,
		DatabasePath:         getEnvOrDefault("LENDARR_DATABASE_PATH", filepath.Join(dataDir, "lendarr.db")),
		LogDir:               getEnvOrDefault("LENDARR_LOG_DIR", filepath.Join(dataDir, "logs")),
		DueSoonThresholdDays: getEnvIntOrDefault("LENDARR_DUE_SOON_DAYS", 2),
		SweepCron:            getEnvOrDefault("LENDARR_SWEEP_CRON", ""),
	}
	return cfg
}

// FlagOverrides carries command-line flag values that take precedence over
// environment variables. Nil or zero-valued fields mean "not set".
type FlagOverrides struct {
	Port                 *string
	LogLevel             *string
	DataDir              *string
	DatabasePath         *string
	DueSoonThresholdDays *int
	SweepCron            *string
}

// ApplyFlags overlays flag values onto the loaded configuration.
func ApplyFlags(f FlagOverrides) {
	if cfg == nil {
		Load()
	}
	if f.Port != nil && *f.Port != "" {
		cfg.Port = *f.Port
	}
	if f.LogLevel != nil && *f.LogLevel != "" {
		cfg.LogLevel = *f.LogLevel
	}
	if f.DataDir != nil && *f.DataDir != "" {
		cfg.DataDir = *f.DataDir
		cfg.DatabasePath = filepath.Join(cfg.DataDir, "lendarr.db")
		cfg.LogDir = filepath.Join(cfg.DataDir, "logs")
	}
	if f.DatabasePath != nil && *f.DatabasePath != "" {
		cfg.DatabasePath = *f.DatabasePath
	}
	if f.DueSoonThresholdDays != nil && *f.DueSoonThresholdDays >= 0 {
		cfg.DueSoonThresholdDays = *f.DueSoonThresholdDays
	}
	if f.SweepCron != nil && *f.SweepCron != "" {
		cfg.SweepCron = *f.SweepCron
	}
}

// Get returns the loaded configuration, loading defaults if needed.
func Get() *Config {
	if cfg == nil {
		return Load()
	}
	return cfg
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
