package config

import (
	"os"
	"strconv"
)

// Config holds the process-level configuration.
// Note: user-facing settings (vault path, whisper model, LLM endpoint, ...)
// live in the settings table and are editable at runtime; only values needed
// before the database is open belong here.
type Config struct {
	Environment string
	Port        string

	// DatabasePath is the sqlite file the store opens (WAL mode).
	DatabasePath string

	// Worker tuning. Zero values fall back to the worker defaults
	// (1s tick, 5 minute heartbeat threshold).
	WorkerTickSeconds     int
	HeartbeatStaleMinutes int
}

func Load() *Config {
	return &Config{
		Environment:           getEnv("ENVIRONMENT", "development"),
		Port:                  getEnv("PORT", "8787"),
		DatabasePath:          getEnv("JOURNAL_DB_PATH", "whisper-journal.db"),
		WorkerTickSeconds:     getEnvInt("WORKER_TICK_SECONDS", 0),
		HeartbeatStaleMinutes: getEnvInt("HEARTBEAT_STALE_MINUTES", 0),
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
