package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "workflowai"

var (
	// WebhookRequestsTotal counts webhook deliveries by provider, event type and HTTP status.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "webhook_requests_total",
		Help:      "Total billing webhook requests by provider, event type and HTTP status.",
	}, []string{"provider", "event_type", "status"})

	// WebhookDuration tracks webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "webhook_duration_seconds",
		Help:      "Billing webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider"})

	// WebhookReplaysTotal counts deliveries recognised as replays, by the layer that caught them.
	WebhookReplaysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "webhook_replays_total",
		Help:      "Webhook deliveries short-circuited as replays, by dedup layer.",
	}, []string{"provider", "layer"})

	// LedgerErrorsTotal counts swallowed failures of the durable webhook ledger.
	LedgerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "ledger_errors_total",
		Help:      "Durable webhook ledger failures by operation.",
	}, []string{"operation"})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "mail",
		Name:      "notifications_total",
		Help:      "Outbound notification mails by kind and result.",
	}, []string{"kind", "result"})

	FormSubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "forms",
		Name:      "submissions_total",
		Help:      "Public form submissions by form and result.",
	}, []string{"form", "result"})

	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "processed_total",
		Help:      "Background jobs by type and outcome.",
	}, []string{"type", "result"})
)
