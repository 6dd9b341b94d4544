package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Addr != ":"+DefaultPort {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.DatabaseURL != DefaultDatabaseURL {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.PollInterval != DefaultPollInterval {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("DATABASE_URL", "postgres://localhost/radiocalico")
	t.Setenv("POLL_INTERVAL_SECONDS", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q, want :8080", cfg.Addr)
	}
	if cfg.DatabaseURL != "postgres://localhost/radiocalico" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v, want 5s", cfg.PollInterval)
	}
}

func TestLoadRejectsBadInterval(t *testing.T) {
	t.Setenv("POLL_INTERVAL_SECONDS", "zero")

	if _, err := Load(); err == nil {
		t.Error("Load accepted a non-numeric poll interval")
	}
}
