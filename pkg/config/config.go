// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the settings shared by the feed server and the watcher CLI.
type Config struct {
	// APIBaseURL is the REST base used for persisted updates and cached
	// collections, e.g. http://localhost:8000/api.
	APIBaseURL string
	// StreamBaseURL optionally overrides where WebSocket subscriptions go.
	// Empty means derive the stream endpoint from APIBaseURL.
	StreamBaseURL string
	// FetchLimit is the page size for persisted update fetches.
	FetchLimit int

	// HTTPPort is the feed server's listen port.
	HTTPPort string
	// DatabaseURL is the PostgreSQL DSN for the update log. Empty selects
	// the in-memory store.
	DatabaseURL string
	// WriteTimeout bounds each WebSocket broadcast write.
	WriteTimeout time.Duration
}

// LoadFromEnv reads configuration from environment variables, applying
// defaults for anything unset.
func LoadFromEnv() (Config, error) {
	fetchLimit, err := strconv.Atoi(getEnvOrDefault("MATCH_UPDATE_FETCH_LIMIT", "50"))
	if err != nil || fetchLimit <= 0 {
		return Config{}, fmt.Errorf("invalid MATCH_UPDATE_FETCH_LIMIT: %q", os.Getenv("MATCH_UPDATE_FETCH_LIMIT"))
	}

	writeTimeout, err := time.ParseDuration(getEnvOrDefault("MATCH_WS_WRITE_TIMEOUT", "10s"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid MATCH_WS_WRITE_TIMEOUT: %w", err)
	}

	return Config{
		APIBaseURL:    getEnvOrDefault("MATCH_API_BASE_URL", "http://localhost:8000/api"),
		StreamBaseURL: os.Getenv("MATCH_WS_BASE_URL"),
		FetchLimit:    fetchLimit,
		HTTPPort:      getEnvOrDefault("HTTP_PORT", "8000"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		WriteTimeout:  writeTimeout,
	}, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
