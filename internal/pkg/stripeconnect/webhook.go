// Package stripeconnect keeps connected Stripe accounts in sync with the
// platform from Connect webhooks.
package stripeconnect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/tcdynamics/workflowai/app/models"
	"github.com/tcdynamics/workflowai/internal/pkg/billing"
	"github.com/tcdynamics/workflowai/internal/pkg/mail"
	"github.com/tcdynamics/workflowai/internal/pkg/metrics"
)

// SignatureHeader carries the Stripe webhook signature.
const SignatureHeader = "Stripe-Signature"

// MetadataExternalID links a connected account to the platform user.
const MetadataExternalID = "external_id"

// AccountStore persists connected account state.
type AccountStore interface {
	UpsertConnectedAccount(ctx context.Context, account *models.ConnectedAccount) error
	MarkConnectedAccountDeauthorized(ctx context.Context, stripeAccountID string, at time.Time) (*models.ConnectedAccount, error)
}

// Processor verifies and applies Stripe Connect webhook deliveries.
type Processor struct {
	secret string
	store  AccountStore
	ledger billing.Ledger
	sender mail.Sender
	from   string
	to     string
	Now    func() time.Time
}

type Option func(*Processor)

// WithNotifications mails deauthorizations to the operations inbox.
func WithNotifications(sender mail.Sender, from, to string) Option {
	return func(p *Processor) {
		p.sender = sender
		p.from = strings.TrimSpace(from)
		p.to = strings.TrimSpace(to)
	}
}

func NewProcessor(secret string, store AccountStore, ledger billing.Ledger, opts ...Option) *Processor {
	p := &Processor{
		secret: strings.TrimSpace(secret),
		store:  store,
		ledger: ledger,
		Now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process handles one delivery. payload must be the raw request body.
func (p *Processor) Process(ctx context.Context, method string, payload []byte, signature string) (out billing.Outcome) {
	start := time.Now()
	eventType := "unknown"
	defer func() {
		metrics.WebhookRequestsTotal.WithLabelValues(models.WebhookProviderStripe, eventType, strconv.Itoa(out.Status)).Inc()
		metrics.WebhookDuration.WithLabelValues(models.WebhookProviderStripe).Observe(time.Since(start).Seconds())
	}()

	if method != http.MethodPost {
		return errorOutcome(http.StatusMethodNotAllowed, "Method not allowed")
	}
	if p.secret == "" {
		log.Error().Msg("stripe webhook rejected: STRIPE_WEBHOOK_SECRET not configured")
		return errorOutcome(http.StatusInternalServerError, "Webhook secret not configured")
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, p.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			log.Warn().Err(err).Msg("stripe webhook signature rejected")
			return errorOutcome(http.StatusForbidden, "Invalid signature")
		}
		log.Warn().Err(err).Msg("stripe webhook payload rejected")
		return errorOutcome(http.StatusBadRequest, "Invalid webhook payload")
	}
	eventType = string(event.Type)
	logger := log.With().Str("event_id", event.ID).Str("type", eventType).Str("provider", models.WebhookProviderStripe).Logger()

	if !p.claim(ctx, &event, payload) {
		metrics.WebhookReplaysTotal.WithLabelValues(models.WebhookProviderStripe, "ledger").Inc()
		logger.Info().Msg("stripe webhook replay")
		return billing.Outcome{Status: http.StatusOK, Body: billing.WebhookResponse{Received: true, Type: eventType, Replay: true}}
	}

	if err := p.handleEvent(ctx, &event); err != nil {
		logger.Error().Err(err).Msg("stripe webhook processing failed")
		if p.ledger != nil {
			if ferr := p.ledger.FailWebhookEvent(ctx, models.WebhookProviderStripe, event.ID, err); ferr != nil {
				metrics.LedgerErrorsTotal.WithLabelValues("fail").Inc()
				logger.Warn().Err(ferr).Msg("webhook ledger failure mark failed")
			}
		}
		return errorOutcome(http.StatusInternalServerError, "Webhook processing failed")
	}

	if p.ledger != nil {
		if err := p.ledger.CompleteWebhookEvent(ctx, models.WebhookProviderStripe, event.ID); err != nil {
			metrics.LedgerErrorsTotal.WithLabelValues("complete").Inc()
			logger.Warn().Err(err).Msg("webhook ledger completion failed")
		}
	}
	return billing.Outcome{Status: http.StatusOK, Body: billing.WebhookResponse{Received: true, Type: eventType}}
}

func (p *Processor) handleEvent(ctx context.Context, event *stripelib.Event) error {
	switch event.Type {
	case stripelib.EventTypeAccountUpdated:
		var acct stripelib.Account
		if err := json.Unmarshal(event.Data.Raw, &acct); err != nil {
			return fmt.Errorf("decode account: %w", err)
		}
		return p.syncAccount(ctx, &acct)

	case stripelib.EventTypeAccountApplicationDeauthorized:
		accountID := strings.TrimSpace(event.Account)
		if accountID == "" {
			return errors.New("deauthorization event without account")
		}
		account, err := p.store.MarkConnectedAccountDeauthorized(ctx, accountID, p.now())
		if err != nil {
			return fmt.Errorf("mark %s deauthorized: %w", accountID, err)
		}
		log.Info().Str("stripe_account_id", accountID).Str("external_id", account.ExternalID).Msg("stripe account disconnected")
		p.notify(ctx, account)
		return nil

	default:
		log.Info().
			Str("type", string(event.Type)).
			Str("event_id", event.ID).
			Msg("stripe webhook ignored, unhandled type")
		return nil
	}
}

func (p *Processor) syncAccount(ctx context.Context, acct *stripelib.Account) error {
	if strings.TrimSpace(acct.ID) == "" {
		return errors.New("account.updated without account id")
	}
	account := &models.ConnectedAccount{
		StripeAccountID:  acct.ID,
		ExternalID:       strings.TrimSpace(acct.Metadata[MetadataExternalID]),
		Email:            acct.Email,
		ChargesEnabled:   acct.ChargesEnabled,
		PayoutsEnabled:   acct.PayoutsEnabled,
		DetailsSubmitted: acct.DetailsSubmitted,
	}
	if err := p.store.UpsertConnectedAccount(ctx, account); err != nil {
		return fmt.Errorf("upsert account %s: %w", acct.ID, err)
	}
	log.Info().
		Str("stripe_account_id", account.StripeAccountID).
		Bool("onboarded", account.IsOnboarded()).
		Msg("stripe account synced")
	return nil
}

func (p *Processor) claim(ctx context.Context, event *stripelib.Event, payload []byte) bool {
	if p.ledger == nil {
		return true
	}
	claimed, err := p.ledger.ClaimWebhookEvent(ctx, &models.WebhookEvent{
		Provider:        models.WebhookProviderStripe,
		ProviderEventID: event.ID,
		EventType:       string(event.Type),
		PayloadJSON:     string(payload),
	})
	if err != nil {
		metrics.LedgerErrorsTotal.WithLabelValues("claim").Inc()
		log.Warn().Err(err).Str("event_id", event.ID).Msg("webhook ledger unavailable, processing anyway")
		return true
	}
	return claimed
}

func (p *Processor) notify(ctx context.Context, account *models.ConnectedAccount) {
	if p.sender == nil || p.to == "" {
		return
	}
	html, err := mail.Render(mail.TemplateConnectedAccountOK, account)
	if err == nil {
		err = p.sender.Send(ctx, mail.Message{
			From:    p.from,
			To:      p.to,
			Subject: "[WorkFlowAI] Stripe account " + account.StripeAccountID + " disconnected",
			HTML:    html,
		})
	}
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues("stripe_account", "failed").Inc()
		log.Warn().Err(err).Str("stripe_account_id", account.StripeAccountID).Msg("stripe account notification failed")
		return
	}
	metrics.NotificationsTotal.WithLabelValues("stripe_account", "sent").Inc()
}

func (p *Processor) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

func errorOutcome(status int, msg string) billing.Outcome {
	return billing.Outcome{Status: status, Body: billing.WebhookResponse{Error: msg}}
}
