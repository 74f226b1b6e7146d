package storage

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisAdapter_ClaimAndRelease(t *testing.T) {
	client := redisClient(t)
	ctx := context.Background()
	adapter := NewRedisAdapter(client, time.Hour)

	const key = "test:claim-release"
	client.Del(ctx, idempotencyKeyPrefix+key)
	t.Cleanup(func() { client.Del(context.Background(), idempotencyKeyPrefix+key) })

	claimed, err := adapter.Claim(ctx, key)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = adapter.Claim(ctx, key)
	require.NoError(t, err)
	assert.False(t, claimed, "replayed key must not be claimable")

	ttl := client.TTL(ctx, idempotencyKeyPrefix+key).Val()
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Hour)

	require.NoError(t, adapter.Release(ctx, key))
	claimed, err = adapter.Claim(ctx, key)
	require.NoError(t, err)
	assert.True(t, claimed, "released key is claimable again")
}

func TestRedisAdapter_ConcurrentClaims(t *testing.T) {
	client := redisClient(t)
	ctx := context.Background()
	adapter := NewRedisAdapter(client, 0)

	const key = "test:concurrent-claim"
	client.Del(ctx, idempotencyKeyPrefix+key)
	t.Cleanup(func() { client.Del(context.Background(), idempotencyKeyPrefix+key) })

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := adapter.Claim(ctx, key)
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			if claimed {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestMemoryCache_ExpiryAndRelease(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	claimed, _ := cache.Claim(ctx, "k")
	require.True(t, claimed)
	claimed, _ = cache.Claim(ctx, "k")
	require.False(t, claimed)

	now = now.Add(2 * time.Minute)
	claimed, _ = cache.Claim(ctx, "k")
	assert.True(t, claimed, "expired key is claimable")

	require.NoError(t, cache.Release(ctx, "k"))
	claimed, _ = cache.Claim(ctx, "k")
	assert.True(t, claimed, "released key is claimable")
}
