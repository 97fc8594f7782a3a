package billing

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tcdynamics/workflowai/app/models"
	"github.com/tcdynamics/workflowai/internal/pkg/dedup"
	"github.com/tcdynamics/workflowai/internal/pkg/metrics"
	"github.com/tcdynamics/workflowai/internal/pkg/polar"
)

const (
	msgMethodNotAllowed  = "Method not allowed"
	msgSecretMissing     = "Webhook secret not configured"
	msgInvalidSignature  = "Invalid signature"
	msgInvalidPayload    = "Invalid webhook payload"
	msgProcessingFailure = "Webhook processing failed"
)

// EventDispatcher applies a verified event.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event *polar.Event) error
}

// WebhookProcessor runs one Polar delivery through verification, the dedup
// layers and the dispatcher. It is independent of the HTTP framework.
type WebhookProcessor struct {
	verifier   *polar.Verifier
	cache      dedup.Cache
	ledger     Ledger
	dispatcher EventDispatcher
	Now        func() time.Time
}

// NewWebhookProcessor wires the pipeline. ledger may be nil when no database
// is configured, in which case only the cache guards against replays.
func NewWebhookProcessor(verifier *polar.Verifier, cache dedup.Cache, ledger Ledger, dispatcher EventDispatcher) *WebhookProcessor {
	return &WebhookProcessor{
		verifier:   verifier,
		cache:      cache,
		ledger:     ledger,
		dispatcher: dispatcher,
		Now:        time.Now,
	}
}

// Process handles one delivery. payload must be the raw request body.
func (p *WebhookProcessor) Process(ctx context.Context, method string, payload []byte, headers http.Header) (out Outcome) {
	start := time.Now()
	eventType := "unknown"
	defer func() {
		metrics.WebhookRequestsTotal.WithLabelValues(models.WebhookProviderPolar, eventType, strconv.Itoa(out.Status)).Inc()
		metrics.WebhookDuration.WithLabelValues(models.WebhookProviderPolar).Observe(time.Since(start).Seconds())
	}()

	if method != http.MethodPost {
		return errorOutcome(http.StatusMethodNotAllowed, msgMethodNotAllowed)
	}
	if !p.verifier.Configured() {
		log.Error().Err(ErrWebhookSecretMissing).Msg("polar webhook rejected")
		return errorOutcome(http.StatusInternalServerError, msgSecretMissing)
	}

	event, err := p.verifier.Verify(payload, headers)
	if err != nil {
		if errors.Is(err, polar.ErrInvalidSignature) {
			log.Warn().Err(err).Msg("polar webhook signature rejected")
			return errorOutcome(http.StatusForbidden, msgInvalidSignature)
		}
		log.Warn().Err(err).Msg("polar webhook payload rejected")
		return errorOutcome(http.StatusBadRequest, msgInvalidPayload)
	}
	eventType = string(event.Type)
	logger := log.With().Str("event_id", event.ID).Str("type", eventType).Logger()

	seen, err := p.cache.Has(ctx, event.ID)
	if err != nil {
		logger.Warn().Err(err).Msg("dedup cache lookup failed")
	}
	if seen {
		metrics.WebhookReplaysTotal.WithLabelValues(models.WebhookProviderPolar, "cache").Inc()
		logger.Info().Msg("polar webhook replay (cache)")
		return replayOutcome(eventType)
	}

	claimed := p.claim(ctx, event, payload)
	if !claimed {
		metrics.WebhookReplaysTotal.WithLabelValues(models.WebhookProviderPolar, "ledger").Inc()
		logger.Info().Msg("polar webhook replay (ledger)")
		return replayOutcome(eventType)
	}

	if err := p.cache.Record(ctx, event.ID, p.now()); err != nil {
		logger.Warn().Err(err).Msg("dedup cache record failed")
	}

	if err := p.dispatcher.Dispatch(ctx, event); err != nil {
		logger.Error().Err(err).Msg("polar webhook dispatch failed")
		if ferr := p.cache.Forget(ctx, event.ID); ferr != nil {
			logger.Warn().Err(ferr).Msg("dedup cache rollback failed")
		}
		if p.ledger != nil {
			if ferr := p.ledger.FailWebhookEvent(ctx, models.WebhookProviderPolar, event.ID, err); ferr != nil {
				metrics.LedgerErrorsTotal.WithLabelValues("fail").Inc()
				logger.Warn().Err(ferr).Msg("webhook ledger failure mark failed")
			}
		}
		return errorOutcome(http.StatusInternalServerError, msgProcessingFailure)
	}

	if p.ledger != nil {
		if err := p.ledger.CompleteWebhookEvent(ctx, models.WebhookProviderPolar, event.ID); err != nil {
			metrics.LedgerErrorsTotal.WithLabelValues("complete").Inc()
			logger.Warn().Err(err).Msg("webhook ledger completion failed")
		}
	}
	return Outcome{Status: http.StatusAccepted, Body: WebhookResponse{Received: true, Type: eventType}}
}

// claim reports whether processing should continue. Ledger failures are
// swallowed so that the cache verdict alone decides.
func (p *WebhookProcessor) claim(ctx context.Context, event *polar.Event, payload []byte) bool {
	if p.ledger == nil {
		return true
	}
	claimed, err := p.ledger.ClaimWebhookEvent(ctx, &models.WebhookEvent{
		Provider:        models.WebhookProviderPolar,
		ProviderEventID: event.ID,
		EventType:       string(event.Type),
		PayloadJSON:     string(payload),
	})
	if err != nil {
		metrics.LedgerErrorsTotal.WithLabelValues("claim").Inc()
		log.Warn().Err(err).Str("event_id", event.ID).Msg("webhook ledger unavailable, continuing on cache verdict")
		return true
	}
	return claimed
}

func (p *WebhookProcessor) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func replayOutcome(eventType string) Outcome {
	return Outcome{Status: http.StatusOK, Body: WebhookResponse{Received: true, Type: eventType, Replay: true}}
}

func errorOutcome(status int, msg string) Outcome {
	return Outcome{Status: status, Body: WebhookResponse{Error: msg}}
}
