package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyPrefix = "bloodbank:idem:"
	// DefaultIdempotencyTTL is how long a claimed key blocks replays.
	DefaultIdempotencyTTL = 24 * time.Hour
)

// RedisAdapter keeps idempotency keys in Redis so that retries landing on
// different server instances are still recognised.
type RedisAdapter struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisAdapter(client *redis.Client, ttl time.Duration) *RedisAdapter {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &RedisAdapter{client: client, ttl: ttl}
}

func (r *RedisAdapter) Claim(ctx context.Context, key string) (bool, error) {
	claimed, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, time.Now().Unix(), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim idempotency key: %w", err)
	}
	return claimed, nil
}

func (r *RedisAdapter) Release(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, idempotencyKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

func (r *RedisAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
