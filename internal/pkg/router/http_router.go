package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tcdynamics/workflowai/internal/pkg/constants"
)

type HttpRouter struct {
	deps Dependencies
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	h.registerWebhookRoutes(app)
	h.registerOpsRoutes(app)
}

func NewHttpRouter(deps Dependencies) *HttpRouter {
	return &HttpRouter{deps: deps}
}

// Provider webhooks carry their own signature verification. They are
// registered for every method so that the processor answers 405 itself.
func (h HttpRouter) registerWebhookRoutes(app *fiber.App) {
	app.All(constants.LegacyPolarWebhookRoute, h.deps.Webhooks.HandlePolarWebhook)
	app.All(constants.PolarWebhookRoute, h.deps.Webhooks.HandlePolarWebhook)
	app.All(constants.StripeWebhookRoute, h.deps.Webhooks.HandleStripeWebhook)
}

func (h HttpRouter) registerOpsRoutes(app *fiber.App) {
	app.Get(constants.HealthRoute, h.deps.Health.HandleHealthz)

	metricsHandler := adaptor.HTTPHandler(promhttp.Handler())
	if h.deps.MetricsUser == "" {
		app.Get(constants.MetricsRoute, metricsHandler)
		return
	}

	// fiber metrics
	auth := basicauth.New(basicauth.Config{
		Users: map[string]string{
			h.deps.MetricsUser: h.deps.MetricsPassword,
		},
	})
	app.Get(constants.MetricsRoute, auth, metricsHandler)
	app.Get(constants.MonitorRoute, auth, monitor.New(monitor.Config{Title: "WorkFlowAI Monitor"}))
}
