package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/tcdynamics/workflowai/internal/pkg/constants"
	"github.com/tcdynamics/workflowai/internal/pkg/middleware"
)

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group(constants.APIRoute, cors.New(cors.Config{
		AllowOrigins: h.deps.CORSAllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-API-Key",
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "WorkFlowAI API",
		})
	})

	// Public forms
	formLimiter := h.deps.FormLimiter
	if formLimiter == nil {
		formLimiter = func(c *fiber.Ctx) error { return c.Next() }
	}
	api.Post("/contact", formLimiter, h.deps.Forms.HandleContact)
	api.Post("/demo-request", formLimiter, h.deps.Forms.HandleDemoRequest)

	// Dashboard key management
	dashboard := api.Group("/dashboard", middleware.AdminTokenAuth(h.deps.AdminToken))
	dashboard.Post("/keys", h.deps.APIKeys.HandleCreateAPIKey)
	dashboard.Get("/keys", h.deps.APIKeys.HandleListAPIKeys)
	dashboard.Delete("/keys/:id", h.deps.APIKeys.HandleRevokeAPIKey)

	// API v1 routes
	v1 := api.Group("/v1", middleware.APIKeyAuthMiddleware(h.deps.APIKeyRepository))
	v1.Get("/subscription", h.deps.APIKeys.HandleGetSubscription)
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
