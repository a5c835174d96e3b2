package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/session"
)

func exerciseSlot(t *testing.T, slot session.Slot) {
	t.Helper()
	ctx := context.Background()

	data, err := slot.Read(ctx)
	if err != nil || data != nil {
		t.Fatalf("expected empty slot, got %q, %v", data, err)
	}

	payload := []byte(`{"version":1,"state":{"token":"abc"}}`)
	if err := slot.Write(ctx, payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err = slot.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Fatalf("expected %s, got %s", payload, data)
	}

	if err := slot.Remove(ctx); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := slot.Remove(ctx); err != nil {
		t.Fatalf("second remove: %v", err)
	}
	data, err = slot.Read(ctx)
	if err != nil || data != nil {
		t.Fatalf("expected empty slot after remove, got %q, %v", data, err)
	}
}

func TestMemorySlot(t *testing.T) {
	exerciseSlot(t, NewMemorySlot())
}

func TestFileSlot(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	slot, err := NewFileSlot(dir, config.SlotKey.ExamSessionFile("tab-1"))
	if err != nil {
		t.Fatalf("new file slot: %v", err)
	}
	exerciseSlot(t, slot)

	if err := slot.Write(context.Background(), []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "exam-session-tab-1.json" {
		t.Fatalf("expected only the slot file, got %v", entries)
	}
}

func TestRedisSlot(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	key := config.SlotKey.ExamSessionSlot("tab-1")
	slot := NewRedisSlot(client, key, time.Hour)
	exerciseSlot(t, slot)

	if err := slot.Write(context.Background(), []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !mr.Exists("portal:tab:tab-1:exam_session") {
		t.Fatalf("expected redis key to be set")
	}
	if ttl := mr.TTL(key); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %v", ttl)
	}

	mr.FastForward(2 * time.Hour)
	data, err := slot.Read(context.Background())
	if err != nil || data != nil {
		t.Fatalf("expected expired slot to read empty, got %q, %v", data, err)
	}
}

func TestStoreSurvivesRestartOnFileSlot(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	slot, _ := NewFileSlot(dir, "s.json")
	first := session.NewStore(slot, zerolog.Nop())
	_ = first.Rehydrate(ctx)
	first.SetToken("abc")

	again, _ := NewFileSlot(dir, "s.json")
	second := session.NewStore(again, zerolog.Nop())
	if err := second.Rehydrate(ctx); err != nil {
		t.Fatalf("rehydrate: %v", err)
	}
	if second.Token() != "abc" {
		t.Fatalf("expected token abc after restart, got %q", second.Token())
	}
}

func TestOpenMemoryAndFile(t *testing.T) {
	for _, backend := range []string{config.SlotBackendMemory, config.SlotBackendFile} {
		cfg := &config.Config{SlotBackend: backend, SlotDir: t.TempDir(), TabID: "t"}
		b, err := Open(context.Background(), cfg, zerolog.Nop())
		if err != nil {
			t.Fatalf("open %s: %v", backend, err)
		}
		exerciseSlot(t, b.Slot)
		b.Close()
	}

	if _, err := Open(context.Background(), &config.Config{SlotBackend: "floppy"}, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestOpenRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	cfg := &config.Config{
		SlotBackend: config.SlotBackendRedis,
		RedisURL:    "redis://" + mr.Addr() + "/0",
		TabID:       "t",
	}
	b, err := Open(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("open redis: %v", err)
	}
	defer b.Close()
	exerciseSlot(t, b.Slot)
}
