// Package config loads RadioCalico configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Defaults applied when the environment is silent.
const (
	DefaultPort         = "3000"
	DefaultDatabaseURL  = "radiocalico.db"
	DefaultStreamURL    = "https://d3d4yli4hf5bmh.cloudfront.net/hls/live.m3u8"
	DefaultMetadataURL  = "https://d3d4yli4hf5bmh.cloudfront.net/metadatav2.json"
	DefaultAPIBaseURL   = "http://localhost:3000"
	DefaultPollInterval = 30 * time.Second
)

// Config holds the settings shared by the server and the client.
type Config struct {
	// Addr is the listen address for the rating server.
	Addr string

	// DatabaseURL selects the storage backend: postgres:// URLs use the
	// pooled PostgreSQL store, everything else is a SQLite path.
	DatabaseURL string

	// StreamURL is the live HLS playlist.
	StreamURL string

	// MetadataURL is the now-playing snapshot endpoint.
	MetadataURL string

	// APIBaseURL is where the client reaches the rating server.
	APIBaseURL string

	// PollInterval is the metadata polling cadence.
	PollInterval time.Duration
}

// Load reads configuration from the environment, after loading a .env
// file when one is present.
func Load() (*Config, error) {
	// Missing .env is the normal case outside development.
	_ = godotenv.Load()

	cfg := &Config{
		Addr:         ":" + envOr("PORT", DefaultPort),
		DatabaseURL:  envOr("DATABASE_URL", DefaultDatabaseURL),
		StreamURL:    envOr("STREAM_URL", DefaultStreamURL),
		MetadataURL:  envOr("METADATA_URL", DefaultMetadataURL),
		APIBaseURL:   envOr("API_BASE_URL", DefaultAPIBaseURL),
		PollInterval: DefaultPollInterval,
	}

	if v := os.Getenv("POLL_INTERVAL_SECONDS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			return nil, fmt.Errorf("invalid POLL_INTERVAL_SECONDS %q", v)
		}
		cfg.PollInterval = time.Duration(secs) * time.Second
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
