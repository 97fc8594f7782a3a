package dedup

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "webhook:dedup:"

// RedisCache shares the dedup window between instances. Expiry is delegated
// to Redis key TTLs, so Prune has nothing to do and there is no size bound.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultRedisPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) Prune(_ context.Context) error {
	return nil
}

func (c *RedisCache) Has(ctx context.Context, id string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(id)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *RedisCache) Record(ctx context.Context, id string, receivedAt time.Time) error {
	if strings.TrimSpace(id) == "" {
		return nil
	}
	return c.client.Set(ctx, c.key(id), receivedAt.UnixMilli(), c.ttl).Err()
}

func (c *RedisCache) Forget(ctx context.Context, id string) error {
	return c.client.Del(ctx, c.key(id)).Err()
}

func (c *RedisCache) key(id string) string {
	return c.prefix + strings.TrimSpace(id)
}

var _ Cache = (*RedisCache)(nil)
