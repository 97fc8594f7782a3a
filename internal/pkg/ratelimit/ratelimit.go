// Package ratelimit throttles public endpoints per client IP, sharing
// counters through Redis when a cache is configured.
package ratelimit

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"
	goredis "github.com/redis/go-redis/v9"
)

// storageDatabase keeps limiter keys apart from the dedup keys in DB 0.
const storageDatabase = 1

type Config struct {
	Max        int
	Expiration time.Duration
	// Storage is nil for in-process counters.
	Storage fiber.Storage
	// KeyGenerator defaults to the client IP.
	KeyGenerator func(c *fiber.Ctx) string
}

// NewStorage derives a fiber storage from the shared Redis client settings.
func NewStorage(client *goredis.Client) fiber.Storage {
	if client == nil {
		return nil
	}
	host := "localhost"
	port := 6379
	opts := client.Options()
	if h, p, err := net.SplitHostPort(opts.Addr); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: opts.Password,
		Database: storageDatabase,
		Reset:    false,
	})
}

// New returns the limiter middleware answering 429 with a JSON body.
func New(cfg Config) fiber.Handler {
	if cfg.Max <= 0 {
		cfg.Max = 5
	}
	if cfg.Expiration <= 0 {
		cfg.Expiration = time.Minute
	}
	keyGen := cfg.KeyGenerator
	if keyGen == nil {
		keyGen = func(c *fiber.Ctx) string { return c.IP() }
	}
	return limiter.New(limiter.Config{
		Max:          cfg.Max,
		Expiration:   cfg.Expiration,
		Storage:      cfg.Storage,
		KeyGenerator: keyGen,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later",
			})
		},
	})
}
