package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by Cache.Get when no fresh entry exists.
var ErrCacheMiss = errors.New("catalog: cache miss")

// Cache stores serialized catalog lists.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisCache keeps catalog lists in Redis.
type RedisCache struct {
	redis  *redis.Client
	prefix string
}

// NewRedisCache creates a Redis-backed cache. Keys are namespaced by prefix.
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "catalog"
	}
	return &RedisCache{redis: client, prefix: prefix}
}

func (c *RedisCache) key(k string) string {
	return fmt.Sprintf("%s:%s", c.prefix, k)
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.redis.Get(ctx, c.key(key)).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: redis get: %w", err)
	}
	return data, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.redis.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("catalog: redis set: %w", err)
	}
	return nil
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// MemoryCache is an in-process Cache used when Redis is not configured.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if !entry.expires.IsZero() && !c.now().Before(entry.expires) {
		delete(c.entries, key)
		return nil, ErrCacheMiss
	}
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expires = c.now().Add(ttl)
	}
	c.entries[key] = entry
	return nil
}
