package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var client *redis.Client

type Config struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// SetupCache initializes the shared Redis client and checks connectivity.
// The client is kept even when the ping fails; go-redis reconnects lazily.
func SetupCache(ctx context.Context, cfg Config) (*redis.Client, error) {
	port := cfg.Port
	if port == "" {
		port = "6379"
	}
	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", client.Options().Addr).Msg("could not connect to redis")
		return client, err
	}
	log.Info().Str("addr", client.Options().Addr).Msg("connected to redis")
	return client, nil
}

// GetClient returns the Redis client instance, nil before SetupCache.
func GetClient() *redis.Client {
	return client
}

// Close releases the shared client.
func Close() error {
	if client == nil {
		return nil
	}
	err := client.Close()
	client = nil
	return err
}
