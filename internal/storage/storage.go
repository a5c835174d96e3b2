// Package storage provides the durable slot backends that hold a tab's
// serialized exam session.
package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/database"
	"github.com/stemsi/exstem-portal/internal/session"
)

// Backend is an opened slot together with the connections it owns.
type Backend struct {
	Slot session.Slot
	Name string

	rdb  *redis.Client
	pool *pgxpool.Pool
}

// Close releases any connection held by the backend.
func (b *Backend) Close() {
	if b.rdb != nil {
		_ = b.rdb.Close()
	}
	if b.pool != nil {
		b.pool.Close()
	}
}

// Open builds the slot selected by cfg.SlotBackend for cfg.TabID.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Backend, error) {
	log = log.With().Str("component", "storage").Str("backend", cfg.SlotBackend).Logger()

	switch cfg.SlotBackend {
	case config.SlotBackendMemory:
		return &Backend{Slot: NewMemorySlot(), Name: cfg.SlotBackend}, nil

	case config.SlotBackendFile:
		slot, err := NewFileSlot(cfg.SlotDir, config.SlotKey.ExamSessionFile(cfg.TabID))
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", slot.Path()).Msg("Using file session slot")
		return &Backend{Slot: slot, Name: cfg.SlotBackend}, nil

	case config.SlotBackendRedis:
		rdb, err := database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		slot := NewRedisSlot(rdb, config.SlotKey.ExamSessionSlot(cfg.TabID), cfg.SlotTTL)
		return &Backend{Slot: slot, Name: cfg.SlotBackend, rdb: rdb}, nil

	case config.SlotBackendPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		slot := NewPostgresSlot(pool, config.SlotKey.ExamSessionSlot(cfg.TabID))
		return &Backend{Slot: slot, Name: cfg.SlotBackend, pool: pool}, nil
	}

	return nil, fmt.Errorf("unknown slot backend %q", cfg.SlotBackend)
}
