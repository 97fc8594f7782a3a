package dedup

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const isolatedDedupTestRedisDB = 13

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	host := os.Getenv("CACHE_HOST")
	if host == "" {
		host = "localhost"
	}
	port := os.Getenv("CACHE_PORT")
	if port == "" {
		port = "6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: os.Getenv("CACHE_PASSWORD"),
		DB:       isolatedDedupTestRedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	_, err := client.Ping(ctx).Result()
	cancel()
	if err != nil {
		_ = client.Close()
		t.Skipf("Skipping Redis-dependent test: no reachable Redis endpoint (%v)", err)
	}

	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})
	return client
}

func TestRedisCacheRoundTrip(t *testing.T) {
	client := newTestRedisClient(t)
	ctx := context.Background()
	c := NewRedisCache(client, "test:dedup:", time.Minute)

	ok, err := c.Has(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Record(ctx, "evt_1", time.Now()))
	ok, err = c.Has(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, ok)

	ttl, err := client.TTL(ctx, "test:dedup:evt_1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)

	require.NoError(t, c.Prune(ctx))
	require.NoError(t, c.Forget(ctx, "evt_1"))
	ok, err = c.Has(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewRedisCacheDefaults(t *testing.T) {
	c := NewRedisCache(nil, " ", 0)
	assert.Equal(t, defaultRedisPrefix, c.prefix)
	assert.Equal(t, DefaultTTL, c.ttl)
	assert.Equal(t, defaultRedisPrefix+"evt", c.key(" evt "))
}
