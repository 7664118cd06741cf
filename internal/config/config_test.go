package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 7700 {
		t.Fatalf("port = %d, want 7700", cfg.Server.Port)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("log level = %q, want info", cfg.Log.Level)
	}
	if cfg.Cursor.DefaultChunkSize != 1000 {
		t.Fatalf("chunk size = %d, want 1000", cfg.Cursor.DefaultChunkSize)
	}
	if cfg.Cursor.DefaultMaxIdle != 300*time.Second {
		t.Fatalf("max idle = %v, want 5m", cfg.Cursor.DefaultMaxIdle)
	}
	if cfg.Cursor.SweepSchedule == "" {
		t.Fatal("sweep schedule must default to a cron expression")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("QUIVER_SERVER_PORT", "9200")
	t.Setenv("QUIVER_CURSOR_DEFAULT_CHUNK_SIZE", "50")
	t.Setenv("QUIVER_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9200 {
		t.Fatalf("port = %d, want the env override 9200", cfg.Server.Port)
	}
	if cfg.Cursor.DefaultChunkSize != 50 {
		t.Fatalf("chunk size = %d, want the env override 50", cfg.Cursor.DefaultChunkSize)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("log level = %q, want debug", cfg.Log.Level)
	}
}

func TestRejectsNonPositiveCursorSettings(t *testing.T) {
	t.Setenv("QUIVER_CURSOR_DEFAULT_CHUNK_SIZE", "0")
	if _, err := Load(); err == nil {
		t.Fatal("zero chunk size must be rejected")
	}

	t.Setenv("QUIVER_CURSOR_DEFAULT_CHUNK_SIZE", "100")
	t.Setenv("QUIVER_CURSOR_DEFAULT_MAX_IDLE_MS", "-5")
	if _, err := Load(); err == nil {
		t.Fatal("negative max idle must be rejected")
	}
}
