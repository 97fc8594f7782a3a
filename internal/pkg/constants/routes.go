package constants

// Top-level route constants
const (
	PolarWebhookRoute       = "/webhooks/polar"
	LegacyPolarWebhookRoute = "/webhook"
	StripeWebhookRoute      = "/webhooks/stripe"
	HealthRoute             = "/healthz"
	MetricsRoute            = "/metrics"
	MonitorRoute            = "/monitor"
	APIRoute                = "/api"
)
