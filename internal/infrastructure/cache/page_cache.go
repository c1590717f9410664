package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPageKeyPrefix = "page:"

// InMemoryPageCache keeps response bodies in process memory
type InMemoryPageCache struct {
	m *ttlMap
}

// NewInMemoryPageCache creates a new in-memory page cache
func NewInMemoryPageCache() *InMemoryPageCache {
	return &InMemoryPageCache{m: newTTLMap()}
}

// Get returns the cached body for key
func (c *InMemoryPageCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := c.m.get(key)
	return v, ok, nil
}

// Set stores body for ttl
func (c *InMemoryPageCache) Set(_ context.Context, key string, body []byte, ttl time.Duration) error {
	c.m.set(key, body, ttl)
	return nil
}

// Close stops the cleanup goroutine
func (c *InMemoryPageCache) Close() error {
	c.m.close()
	return nil
}

// RedisPageCache keeps response bodies in Redis so every instance shares them
type RedisPageCache struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisPageCache creates a page cache over an existing client
func NewRedisPageCache(client *redis.Client, keyPrefix string) *RedisPageCache {
	if keyPrefix == "" {
		keyPrefix = defaultPageKeyPrefix
	}
	return &RedisPageCache{client: client, keyPrefix: keyPrefix}
}

// Get returns the cached body for key
func (c *RedisPageCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	body, err := c.client.Get(ctx, c.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read page cache: %w", err)
	}
	return body, true, nil
}

// Set stores body for ttl
func (c *RedisPageCache) Set(ctx context.Context, key string, body []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.keyPrefix+key, body, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write page cache: %w", err)
	}
	return nil
}

// Close is a no-op; the client is owned by the dedup store
func (c *RedisPageCache) Close() error {
	return nil
}
