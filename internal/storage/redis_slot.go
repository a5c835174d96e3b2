package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSlot stores the session under a single key. Every write refreshes the
// TTL so an abandoned tab eventually stops being resumable.
type RedisSlot struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// NewRedisSlot returns a slot at key. A zero ttl keeps the key forever.
func NewRedisSlot(rdb *redis.Client, key string, ttl time.Duration) *RedisSlot {
	return &RedisSlot{rdb: rdb, key: key, ttl: ttl}
}

func (r *RedisSlot) Read(ctx context.Context) ([]byte, error) {
	data, err := r.rdb.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", r.key, err)
	}
	return data, nil
}

func (r *RedisSlot) Write(ctx context.Context, data []byte) error {
	if err := r.rdb.Set(ctx, r.key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	return nil
}

func (r *RedisSlot) Remove(ctx context.Context) error {
	if err := r.rdb.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", r.key, err)
	}
	return nil
}
