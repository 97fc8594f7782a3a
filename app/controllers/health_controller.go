package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tcdynamics/workflowai/internal/pkg/database"
)

const healthTimeout = 2 * time.Second

type HealthController struct {
	db    *gorm.DB
	cache *redis.Client
}

// NewHealthController checks db and, when non-nil, the redis client.
func NewHealthController(db *gorm.DB, cache *redis.Client) *HealthController {
	return &HealthController{db: db, cache: cache}
}

func (h *HealthController) HandleHealthz(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
	defer cancel()

	checks := fiber.Map{}
	healthy := true
	if err := database.Ping(ctx, h.db); err != nil {
		log.Warn().Err(err).Msg("health check: database unreachable")
		checks["database"] = "unavailable"
		healthy = false
	} else {
		checks["database"] = "ok"
	}
	if h.cache != nil {
		if err := h.cache.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("health check: redis unreachable")
			checks["cache"] = "unavailable"
			healthy = false
		} else {
			checks["cache"] = "ok"
		}
	}

	if !healthy {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable", "checks": checks})
	}
	return c.JSON(fiber.Map{"status": "ok", "checks": checks})
}
