package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tcdynamics/workflowai/app/models"
	"github.com/tcdynamics/workflowai/app/repository"
	"github.com/tcdynamics/workflowai/internal/pkg/billing"
	"github.com/tcdynamics/workflowai/internal/pkg/middleware"
)

var requestValidator = validator.New(validator.WithRequiredStructEnabled())

// SubscriberReader looks up the billing state of one identity.
type SubscriberReader interface {
	GetSubscriber(ctx context.Context, externalID string) (*models.Subscriber, error)
}

type createAPIKeyRequest struct {
	OwnerExternalID string `json:"owner_external_id" validate:"required,max=191"`
	Name            string `json:"name" validate:"required,max=100"`
}

type APIKeyController struct {
	keys        repository.APIKeyRepository
	subscribers SubscriberReader
	Now         func() time.Time
}

func NewAPIKeyController(keys repository.APIKeyRepository, subscribers SubscriberReader) *APIKeyController {
	return &APIKeyController{keys: keys, subscribers: subscribers, Now: time.Now}
}

// HandleCreateAPIKey issues a key. The raw secret is only returned here.
func (a *APIKeyController) HandleCreateAPIKey(c *fiber.Ctx) error {
	var req createAPIKeyRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Request body could not be parsed")
	}
	req.OwnerExternalID = strings.TrimSpace(req.OwnerExternalID)
	req.Name = strings.TrimSpace(req.Name)
	if err := requestValidator.Struct(req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "validation_failed", "owner_external_id and name are required")
	}

	key, raw, err := models.NewAPIKey(req.OwnerExternalID, req.Name)
	if err != nil {
		log.Error().Err(err).Msg("api key generation failed")
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to generate API key")
	}
	if err := a.keys.Create(c.UserContext(), key); err != nil {
		log.Error().Err(err).Str("external_id", key.OwnerExternalID).Msg("api key store failed")
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to store API key")
	}

	log.Info().Uint("api_key_id", key.ID).Str("external_id", key.OwnerExternalID).Msg("api key issued")
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":                key.ID,
		"owner_external_id": key.OwnerExternalID,
		"name":              key.Name,
		"key":               raw,
		"key_prefix":        key.KeyPrefix,
		"created_at":        formatTime(key.CreatedAt),
	})
}

func (a *APIKeyController) HandleListAPIKeys(c *fiber.Ctx) error {
	owner := strings.TrimSpace(c.Query("owner"))
	if owner == "" {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "owner query parameter is required")
	}
	keys, err := a.keys.ListByOwner(c.UserContext(), owner)
	if err != nil {
		log.Error().Err(err).Str("external_id", owner).Msg("api key listing failed")
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load API keys")
	}

	out := make([]fiber.Map, 0, len(keys))
	for _, k := range keys {
		out = append(out, fiber.Map{
			"id":           k.ID,
			"name":         k.Name,
			"key_prefix":   k.KeyPrefix,
			"active":       k.IsActive(),
			"created_at":   formatTime(k.CreatedAt),
			"last_used_at": formatTimePtr(k.LastUsedAt),
			"revoked_at":   formatTimePtr(k.RevokedAt),
		})
	}
	return c.JSON(fiber.Map{"owner_external_id": owner, "keys": out})
}

func (a *APIKeyController) HandleRevokeAPIKey(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Invalid key id")
	}
	if err := a.keys.Revoke(c.UserContext(), uint(id), a.Now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "API key not found")
		}
		log.Error().Err(err).Int("api_key_id", id).Msg("api key revoke failed")
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to revoke API key")
	}
	log.Info().Int("api_key_id", id).Msg("api key revoked")
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleGetSubscription returns the billing state of the key owner.
func (a *APIKeyController) HandleGetSubscription(c *fiber.Ctx) error {
	owner := middleware.OwnerExternalID(c)
	if owner == "" {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}
	sub, err := a.subscribers.GetSubscriber(c.UserContext(), owner)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, billing.ErrSubscriberNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "No subscription for this account")
		}
		log.Error().Err(err).Str("external_id", owner).Msg("subscriber lookup failed")
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load subscription")
	}
	return c.JSON(fiber.Map{
		"external_id":     sub.ExternalID,
		"plan":            sub.Plan,
		"status":          sub.SubscriptionStatus,
		"has_access":      sub.HasAccess(),
		"subscription_id": sub.PolarSubscriptionID,
		"updated_at":      formatTime(sub.UpdatedAt),
	})
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}
