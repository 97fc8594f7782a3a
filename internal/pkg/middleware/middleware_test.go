package middleware

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcdynamics/workflowai/app/models"
	"github.com/tcdynamics/workflowai/app/repository"
	"github.com/tcdynamics/workflowai/internal/pkg/database"
)

const testAdminToken = "0123456789abcdef0123456789abcdef"

func TestAdminTokenAuth(t *testing.T) {
	app := fiber.New()
	app.Get("/admin", AdminTokenAuth(testAdminToken), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", fiber.StatusUnauthorized},
		{"wrong token", "Bearer nope", fiber.StatusUnauthorized},
		{"wrong scheme", "Basic " + testAdminToken, fiber.StatusUnauthorized},
		{"valid", "Bearer " + testAdminToken, fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestAdminTokenAuthDisabled(t *testing.T) {
	app := fiber.New()
	app.Get("/admin", AdminTokenAuth("  "), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	req := httptest.NewRequest(fiber.MethodGet, "/admin", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer ")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestAPIKeyAuthMiddleware(t *testing.T) {
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	keys := repository.NewAPIKeyRepository(db)

	key, raw, err := models.NewAPIKey("user_42", "ci")
	require.NoError(t, err)
	require.NoError(t, keys.Create(context.Background(), key))

	app := fiber.New()
	app.Get("/me", APIKeyAuthMiddleware(keys), func(c *fiber.Ctx) error {
		return c.SendString(OwnerExternalID(c))
	})

	t.Run("missing", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/me", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("unknown key", func(t *testing.T) {
		req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
		req.Header.Set("X-API-Key", "wfai_doesnotexistatall")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	for _, header := range []string{"X-API-Key", fiber.HeaderAuthorization} {
		t.Run("valid via "+header, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
			if header == fiber.HeaderAuthorization {
				req.Header.Set(header, "Bearer "+raw)
			} else {
				req.Header.Set(header, raw)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		})
	}

	stored, err := keys.GetByID(context.Background(), key.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastUsedAt)

	require.NoError(t, keys.Revoke(context.Background(), key.ID, *stored.LastUsedAt))
	req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
	req.Header.Set("X-API-Key", raw)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
