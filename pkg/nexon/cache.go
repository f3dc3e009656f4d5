package nexon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/imodoye94/gapjunction-engine-sub001/pkg/ir"
)

// MemoryCache is the default process-lifetime cache tier. Entries are
// immutable after insert, so a plain RWMutex map is enough; no cross-key
// locking is needed.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*ir.Template
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]*ir.Template)}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) (*ir.Template, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.entries[key]
	return t, ok, nil
}

// Put implements Cache. First write wins; a re-insert of an immutable entry
// is a no-op rather than an error.
func (c *MemoryCache) Put(_ context.Context, key string, t *ir.Template) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		c.entries[key] = t
	}
	return nil
}

// Len reports the number of cached templates.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

const redisKeyPrefix = "nexon:"

// RedisCache shares resolved templates across compiler replicas. Values are
// canonical template JSON; entries never expire because a template at a
// pinned version never changes.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) (*ir.Template, bool, error) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("nexon: redis get %s: %w", key, err)
	}
	var t ir.Template
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, false, fmt.Errorf("nexon: redis entry %s corrupt: %w", key, err)
	}
	return &t, true, nil
}

// Put implements Cache. SetNX keeps the first insert authoritative.
func (c *RedisCache) Put(ctx context.Context, key string, t *ir.Template) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("nexon: encoding template %s: %w", key, err)
	}
	if err := c.client.SetNX(ctx, redisKeyPrefix+key, raw, 0).Err(); err != nil {
		return fmt.Errorf("nexon: redis put %s: %w", key, err)
	}
	return nil
}
