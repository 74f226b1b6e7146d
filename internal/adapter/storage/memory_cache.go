package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is the single-process stand-in for RedisAdapter.
type MemoryCache struct {
	mu   sync.Mutex
	keys map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &MemoryCache{
		keys: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (c *MemoryCache) Claim(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if expires, ok := c.keys[key]; ok && now.Before(expires) {
		return false, nil
	}
	c.keys[key] = now.Add(c.ttl)
	return true, nil
}

func (c *MemoryCache) Release(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.keys, key)
	c.mu.Unlock()
	return nil
}
