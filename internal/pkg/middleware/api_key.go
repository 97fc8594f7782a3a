package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/tcdynamics/workflowai/app/models"
	"github.com/tcdynamics/workflowai/app/repository"
)

const (
	// LocalOwnerExternalID holds the external id of the authenticated key owner.
	LocalOwnerExternalID = "API_KEY_OWNER"
	// LocalAPIKeyID holds the id of the key that authenticated the request.
	LocalAPIKeyID = "API_KEY_ID"
)

// APIKeyAuthMiddleware authenticates requests carrying a dashboard API key header.
func APIKeyAuthMiddleware(keys repository.APIKeyRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := extractAPIKeyFromHeader(c)
		if apiKey == "" {
			return unauthorized(c, "Missing API key")
		}
		if !models.LooksLikeAPIKey(apiKey) {
			return unauthorized(c, "Invalid API key")
		}

		key, err := keys.GetActiveByHash(c.UserContext(), models.HashAPIKey(apiKey))
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return unauthorized(c, "Invalid API key")
			}
			log.Error().Err(err).Msg("api key lookup failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "API key verification failed"})
		}

		// Refresh last-used timestamp best-effort.
		if err := keys.TouchLastUsed(context.WithoutCancel(c.UserContext()), key.ID, time.Now()); err != nil {
			log.Warn().Err(err).Uint("api_key_id", key.ID).Msg("failed to update api key usage timestamp")
		}

		c.Locals(LocalOwnerExternalID, key.OwnerExternalID)
		c.Locals(LocalAPIKeyID, key.ID)
		return c.Next()
	}
}

// OwnerExternalID returns the key owner stored by APIKeyAuthMiddleware.
func OwnerExternalID(c *fiber.Ctx) string {
	owner, _ := c.Locals(LocalOwnerExternalID).(string)
	return owner
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-API-Key"))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
