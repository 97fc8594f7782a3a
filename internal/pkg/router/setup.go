package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tcdynamics/workflowai/app/controllers"
	"github.com/tcdynamics/workflowai/app/repository"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies carries the wired controllers and the route-level settings.
type Dependencies struct {
	Webhooks *controllers.WebhookController
	Forms    *controllers.FormController
	APIKeys  *controllers.APIKeyController
	Health   *controllers.HealthController

	APIKeyRepository repository.APIKeyRepository
	AdminToken       string
	MetricsUser      string
	MetricsPassword  string
	CORSAllowOrigins string
	// FormLimiter guards the public form endpoints. Nil disables limiting.
	FormLimiter fiber.Handler
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// Operational and webhook routes first; they must not pass through the
	// API group middleware.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
