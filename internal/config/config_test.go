package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SLOT_BACKEND", "")
	t.Setenv("HEARTBEAT_INTERVAL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HeartbeatInterval != 15*time.Second {
		t.Fatalf("expected 15s heartbeat, got %s", cfg.HeartbeatInterval)
	}
	if cfg.DriftTolerance != 5 || cfg.SubmitMaxAttempts != 3 || cfg.SubmitInitialBackoff != time.Second {
		t.Fatalf("unexpected submission defaults: %+v", cfg)
	}
	if cfg.SlotBackend != SlotBackendFile {
		t.Fatalf("expected file slot backend, got %s", cfg.SlotBackend)
	}
}

func TestLoadDurationAcceptsSeconds(t *testing.T) {
	t.Setenv("HEARTBEAT_INTERVAL", "30")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HeartbeatInterval != 30*time.Second {
		t.Fatalf("expected 30s, got %s", cfg.HeartbeatInterval)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("SLOT_BACKEND", "floppy")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestLoadYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portal.yaml")
	body := "tab_id: kiosk-7\nslot_backend: memory\nheartbeat_interval: 10s\nallowed_origins:\n  - http://exam.local\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TabID != "kiosk-7" || cfg.SlotBackend != SlotBackendMemory {
		t.Fatalf("overlay not applied: %+v", cfg)
	}
	if cfg.HeartbeatInterval != 10*time.Second {
		t.Fatalf("expected 10s heartbeat, got %s", cfg.HeartbeatInterval)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "http://exam.local" {
		t.Fatalf("unexpected origins: %v", cfg.AllowedOrigins)
	}
}
