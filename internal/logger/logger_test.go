package logger

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewWritesJSONWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, Options{Level: "info", Format: "auto", App: "portal", TabID: "tab-7"})

	log.Info().Str("component", "test").Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["component"] != "test" || entry["message"] != "hello" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["app"] != "portal" || entry["tab_id"] != "tab-7" {
		t.Fatalf("missing process fields: %v", entry)
	}
}

func TestNewOmitsEmptyProcessFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, Options{Format: "json"})

	log.Info().Msg("bare")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := entry["tab_id"]; ok {
		t.Fatalf("tab_id should be absent: %v", entry)
	}
}

func TestNewFallsBackToInfoLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, Options{Level: "not-a-level", Format: "json"})

	log.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected debug to be filtered, got %q", buf.String())
	}
}
