package storage

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Needs a disposable database; set DATABASE_URL to run it.
func TestPostgresSlot(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}

	mg, err := NewMigrator(url)
	if err != nil {
		t.Fatalf("new migrator: %v", err)
	}
	defer mg.Close()
	if err := mg.Up(); err != nil {
		t.Fatalf("migrate up: %v", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	defer pool.Close()

	slot := NewPostgresSlot(pool, "test-"+uuid.NewString())
	t.Cleanup(func() { _ = slot.Remove(context.Background()) })
	exerciseSlot(t, slot)

	// A second write replaces the row rather than adding one.
	if err := slot.Write(ctx, []byte(`{"v":1}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := slot.Write(ctx, []byte(`{"v":2}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	data, err := slot.Read(ctx)
	if err != nil || string(data) != `{"v":2}` {
		t.Fatalf("expected overwritten payload, got %q, %v", data, err)
	}
}
