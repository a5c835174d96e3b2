package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSlot stores the session as one row of session_slots. The table is
// created by the embedded migrations (see Migrate).
type PostgresSlot struct {
	pool *pgxpool.Pool
	key  string
}

func NewPostgresSlot(pool *pgxpool.Pool, key string) *PostgresSlot {
	return &PostgresSlot{pool: pool, key: key}
}

func (p *PostgresSlot) Read(ctx context.Context) ([]byte, error) {
	var payload []byte
	err := p.pool.QueryRow(ctx,
		`SELECT payload FROM session_slots WHERE slot_key = $1`,
		p.key,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select session slot: %w", err)
	}
	return payload, nil
}

func (p *PostgresSlot) Write(ctx context.Context, data []byte) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO session_slots (slot_key, payload)
		 VALUES ($1, $2)
		 ON CONFLICT (slot_key) DO UPDATE
		 SET payload = EXCLUDED.payload, updated_at = NOW()`,
		p.key, data,
	)
	if err != nil {
		return fmt.Errorf("upsert session slot: %w", err)
	}
	return nil
}

func (p *PostgresSlot) Remove(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM session_slots WHERE slot_key = $1`, p.key); err != nil {
		return fmt.Errorf("delete session slot: %w", err)
	}
	return nil
}
