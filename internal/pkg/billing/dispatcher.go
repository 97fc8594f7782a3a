package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tcdynamics/workflowai/app/models"
	"github.com/tcdynamics/workflowai/internal/pkg/metrics"
	"github.com/tcdynamics/workflowai/internal/pkg/polar"
)

// SubscriberStore is the subset of Repository the dispatcher mutates.
type SubscriberStore interface {
	UpsertSubscriber(ctx context.Context, in SubscriberUpdate) (*models.Subscriber, error)
	RevokeSubscription(ctx context.Context, externalID string) (*models.Subscriber, error)
}

// Dispatcher routes verified Polar events to subscriber mutations and
// notifications. It holds no per-event state.
type Dispatcher struct {
	store    SubscriberStore
	plans    *PlanResolver
	notifier Notifier
	Now      func() time.Time
}

func NewDispatcher(store SubscriberStore, plans *PlanResolver, notifier Notifier) *Dispatcher {
	return &Dispatcher{store: store, plans: plans, notifier: notifier, Now: time.Now}
}

// Dispatch applies event. A returned error means the event must be retried.
func (d *Dispatcher) Dispatch(ctx context.Context, event *polar.Event) error {
	logger := log.With().Str("event_id", event.ID).Str("type", string(event.Type)).Logger()

	switch p := event.Payload.(type) {
	case polar.CheckoutUpdated:
		return d.handleCheckout(ctx, logger, event, p.Checkout)
	case polar.SubscriptionCreated:
		return d.applySubscription(ctx, logger, event, subscriptionInput(p.Subscription))
	case polar.SubscriptionUpdated:
		return d.applySubscription(ctx, logger, event, subscriptionInput(p.Subscription))
	case polar.SubscriptionUncanceled:
		return d.applySubscription(ctx, logger, event, subscriptionInput(p.Subscription))
	case polar.SubscriptionRevoked:
		return d.revoke(ctx, logger, event, p.Subscription)
	case polar.OrderPaid:
		d.notify(ctx, logger, Notification{
			EventID:        event.ID,
			EventType:      string(event.Type),
			ExternalID:     strings.TrimSpace(p.Order.Customer.ExternalID),
			Email:          p.Order.Customer.Email,
			Status:         p.Order.Status,
			SubscriptionID: p.Order.SubscriptionID,
			Amount:         p.Order.TotalAmount,
			Currency:       p.Order.Currency,
		})
		return nil
	case polar.CustomerStateChanged:
		logger.Info().
			Str("external_id", p.Customer.ExternalID).
			Int("active_subscriptions", len(p.Customer.ActiveSubscriptions)).
			Msg("customer state changed")
		return nil
	case polar.Unhandled:
		logger.Info().Msg("unhandled polar event type")
		return nil
	default:
		logger.Warn().Msgf("no dispatch branch for payload %T", p)
		return nil
	}
}

// subscriptionUpsert carries the resolved fields of one upsert path.
type subscriptionUpsert struct {
	externalID     string
	email          string
	status         string
	customerID     string
	subscriptionID string
	productID      string
	metadata       []map[string]any
}

func subscriptionInput(s polar.Subscription) subscriptionUpsert {
	return subscriptionUpsert{
		externalID:     s.ExternalID(),
		email:          s.Customer.Email,
		status:         s.Status,
		customerID:     s.ResolvedCustomerID(),
		subscriptionID: strings.TrimSpace(s.ID),
		productID:      s.ResolvedProductID(),
		metadata:       []map[string]any{s.Metadata},
	}
}

func (d *Dispatcher) handleCheckout(ctx context.Context, logger zerolog.Logger, event *polar.Event, c polar.Checkout) error {
	if !strings.EqualFold(c.Status, polar.CheckoutStatusSucceeded) || c.Subscription == nil {
		logger.Debug().Str("checkout_status", c.Status).Msg("checkout without completed subscription, skipping")
		return nil
	}
	in := subscriptionInput(*c.Subscription)
	if in.externalID == "" {
		in.externalID = strings.TrimSpace(c.CustomerExternalID)
	}
	if in.email == "" {
		in.email = c.CustomerEmail
	}
	if in.customerID == "" {
		in.customerID = strings.TrimSpace(c.CustomerID)
	}
	if in.subscriptionID == "" {
		in.subscriptionID = strings.TrimSpace(c.SubscriptionID)
	}
	if in.productID == "" {
		in.productID = strings.TrimSpace(c.ProductID)
	}
	in.metadata = append(in.metadata, c.Metadata)
	return d.applySubscription(ctx, logger, event, in)
}

func (d *Dispatcher) applySubscription(ctx context.Context, logger zerolog.Logger, event *polar.Event, in subscriptionUpsert) error {
	if in.externalID == "" {
		logger.Warn().Str("subscription_id", in.subscriptionID).Msg("subscription event without customer external id, skipping")
		return nil
	}
	plan := d.plans.Resolve(in.productID, in.metadata...)
	sub, err := d.store.UpsertSubscriber(ctx, SubscriberUpdate{
		ExternalID:          in.externalID,
		Plan:                plan,
		SubscriptionStatus:  normalizeStatus(in.status),
		PolarCustomerID:     in.customerID,
		PolarSubscriptionID: in.subscriptionID,
	})
	if err != nil {
		return fmt.Errorf("upsert subscriber %s: %w", in.externalID, err)
	}
	logger.Info().
		Str("external_id", sub.ExternalID).
		Str("plan", sub.Plan).
		Str("status", sub.SubscriptionStatus).
		Msg("subscriber updated")

	d.notify(ctx, logger, Notification{
		EventID:        event.ID,
		EventType:      string(event.Type),
		ExternalID:     sub.ExternalID,
		Email:          in.email,
		Plan:           sub.Plan,
		Status:         sub.SubscriptionStatus,
		SubscriptionID: sub.PolarSubscriptionID,
	})
	return nil
}

func (d *Dispatcher) revoke(ctx context.Context, logger zerolog.Logger, event *polar.Event, s polar.Subscription) error {
	externalID := s.ExternalID()
	if externalID == "" {
		return fmt.Errorf("revoke subscription %s: %w", s.ID, ErrMissingIdentity)
	}
	sub, err := d.store.RevokeSubscription(ctx, externalID)
	if err != nil {
		return fmt.Errorf("revoke subscription %s for %s: %w", s.ID, externalID, err)
	}
	logger.Info().Str("external_id", externalID).Str("subscription_id", s.ID).Msg("subscription revoked")

	d.notify(ctx, logger, Notification{
		EventID:        event.ID,
		EventType:      string(event.Type),
		ExternalID:     externalID,
		Email:          s.Customer.Email,
		Plan:           sub.Plan,
		Status:         sub.SubscriptionStatus,
		SubscriptionID: s.ID,
	})
	return nil
}

// notify is best effort: failures are logged and never returned.
func (d *Dispatcher) notify(ctx context.Context, logger zerolog.Logger, n Notification) {
	if d.notifier == nil {
		return
	}
	if n.OccurredAt.IsZero() {
		n.OccurredAt = d.now()
	}
	if err := d.notifier.NotifyBillingEvent(ctx, n); err != nil {
		metrics.NotificationsTotal.WithLabelValues("billing", "failed").Inc()
		logger.Warn().Err(err).Msg("billing notification failed")
		return
	}
	metrics.NotificationsTotal.WithLabelValues("billing", "sent").Inc()
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
