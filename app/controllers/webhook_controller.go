package controllers

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/tcdynamics/workflowai/internal/pkg/billing"
	"github.com/tcdynamics/workflowai/internal/pkg/stripeconnect"
)

// PolarWebhookProcessor processes one Polar delivery.
type PolarWebhookProcessor interface {
	Process(ctx context.Context, method string, payload []byte, headers http.Header) billing.Outcome
}

// StripeWebhookProcessor processes one Stripe Connect delivery.
type StripeWebhookProcessor interface {
	Process(ctx context.Context, method string, payload []byte, signature string) billing.Outcome
}

type WebhookController struct {
	polar  PolarWebhookProcessor
	stripe StripeWebhookProcessor
}

func NewWebhookController(polar PolarWebhookProcessor, stripe StripeWebhookProcessor) *WebhookController {
	return &WebhookController{polar: polar, stripe: stripe}
}

// HandlePolarWebhook is registered for every method; the processor owns the
// method check so that non-POST requests get the same JSON error shape.
func (w *WebhookController) HandlePolarWebhook(c *fiber.Ctx) error {
	out := w.polar.Process(c.UserContext(), c.Method(), requestBody(c), requestHeaders(c))
	return writeOutcome(c, out)
}

func (w *WebhookController) HandleStripeWebhook(c *fiber.Ctx) error {
	if w.stripe == nil {
		return jsonError(c, fiber.StatusNotFound, "not_found", "Stripe webhooks are not enabled")
	}
	out := w.stripe.Process(c.UserContext(), c.Method(), requestBody(c), c.Get(stripeconnect.SignatureHeader))
	return writeOutcome(c, out)
}

func writeOutcome(c *fiber.Ctx, out billing.Outcome) error {
	if out.Status == fiber.StatusMethodNotAllowed {
		c.Set(fiber.HeaderAllow, fiber.MethodPost)
	}
	return c.Status(out.Status).JSON(out.Body)
}
