package tenant

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCache stores tenant records in Redis as JSON, letting multiple
// application instances share one resolution cache. Redis failures degrade
// to cache misses; the registry and loader remain the source of truth.
type redisCache struct {
	client    *redis.Client
	keyPrefix string
}

// RedisCacheOption configures a Redis-backed cache.
type RedisCacheOption func(*redisCache)

// WithKeyPrefix overrides the default "tenant:" key prefix.
func WithKeyPrefix(prefix string) RedisCacheOption {
	return func(c *redisCache) {
		if prefix != "" {
			c.keyPrefix = prefix
		}
	}
}

// NewRedisCache creates a cache over an existing Redis client. The caller
// owns the client; Close here is a no-op on the connection.
func NewRedisCache(client *redis.Client, opts ...RedisCacheOption) Cache {
	c := &redisCache{client: client, keyPrefix: "tenant:"}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *redisCache) Get(ctx context.Context, key string) (*Tenant, bool) {
	raw, err := c.client.Get(ctx, c.keyPrefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	var t Tenant
	if err := json.Unmarshal(raw, &t); err != nil {
		// Corrupt payload: drop it so the next lookup repopulates.
		c.client.Del(ctx, c.keyPrefix+key)
		return nil, false
	}
	return &t, true
}

func (c *redisCache) Set(ctx context.Context, key string, t *Tenant, ttl time.Duration) {
	raw, err := json.Marshal(t)
	if err != nil {
		return
	}
	c.client.Set(ctx, c.keyPrefix+key, raw, ttl)
}

func (c *redisCache) Delete(ctx context.Context, key string) {
	c.client.Del(ctx, c.keyPrefix+key)
}

func (c *redisCache) Close() error {
	return nil
}
