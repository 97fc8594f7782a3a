package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tcdynamics/workflowai/app/models"
)

// DefaultClaimLease is how long a processing claim blocks redeliveries before
// another instance may take the event over.
const DefaultClaimLease = 5 * time.Minute

const maxProcessingErrorLength = 2000

// Repository provides DB operations used by the billing webhook pipeline.
type Repository interface {
	Ledger
	UpsertSubscriber(ctx context.Context, in SubscriberUpdate) (*models.Subscriber, error)
	RevokeSubscription(ctx context.Context, externalID string) (*models.Subscriber, error)
	GetSubscriber(ctx context.Context, externalID string) (*models.Subscriber, error)
	UpsertConnectedAccount(ctx context.Context, account *models.ConnectedAccount) error
	MarkConnectedAccountDeauthorized(ctx context.Context, stripeAccountID string, at time.Time) (*models.ConnectedAccount, error)
}

// Ledger is the durable idempotency record of received webhook events.
type Ledger interface {
	// ClaimWebhookEvent records the event and reports whether this caller
	// owns processing. False means the id was already processed or is being
	// processed under a live lease.
	ClaimWebhookEvent(ctx context.Context, event *models.WebhookEvent) (bool, error)
	CompleteWebhookEvent(ctx context.Context, provider, eventID string) error
	FailWebhookEvent(ctx context.Context, provider, eventID string, cause error) error
}

type gormRepository struct {
	db    *gorm.DB
	lease time.Duration
	now   func() time.Time
}

// RepositoryOption configures the GORM repository.
type RepositoryOption func(*gormRepository)

// WithClaimLease overrides DefaultClaimLease.
func WithClaimLease(d time.Duration) RepositoryOption {
	return func(r *gormRepository) {
		if d > 0 {
			r.lease = d
		}
	}
}

// WithClock injects the time source used for ledger timestamps.
func WithClock(now func() time.Time) RepositoryOption {
	return func(r *gormRepository) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB, opts ...RepositoryOption) Repository {
	r := &gormRepository{db: db, lease: DefaultClaimLease, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *gormRepository) UpsertSubscriber(ctx context.Context, in SubscriberUpdate) (*models.Subscriber, error) {
	externalID := strings.TrimSpace(in.ExternalID)
	if externalID == "" {
		return nil, ErrMissingIdentity
	}
	now := r.now().UTC()
	sub := &models.Subscriber{
		ExternalID:          externalID,
		Plan:                in.Plan,
		SubscriptionStatus:  in.SubscriptionStatus,
		PolarCustomerID:     in.PolarCustomerID,
		PolarSubscriptionID: in.PolarSubscriptionID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"plan",
			"subscription_status",
			"polar_customer_id",
			"polar_subscription_id",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return nil, err
	}

	// Reload so ID and created_at reflect the stored row after upsert.
	var stored models.Subscriber
	if err := db.Where("external_id = ?", externalID).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *gormRepository) RevokeSubscription(ctx context.Context, externalID string) (*models.Subscriber, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, ErrMissingIdentity
	}
	var sub models.Subscriber
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("external_id = ?", externalID).First(&sub).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSubscriberNotFound
			}
			return err
		}
		now := r.now().UTC()
		if err := tx.Model(&models.Subscriber{}).Where("id = ?", sub.ID).Updates(map[string]any{
			"polar_subscription_id": "",
			"subscription_status":   models.SubscriptionStatusCanceled,
			"updated_at":            now,
		}).Error; err != nil {
			return err
		}
		sub.PolarSubscriptionID = ""
		sub.SubscriptionStatus = models.SubscriptionStatusCanceled
		sub.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) GetSubscriber(ctx context.Context, externalID string) (*models.Subscriber, error) {
	var sub models.Subscriber
	if err := r.db.WithContext(ctx).Where("external_id = ?", strings.TrimSpace(externalID)).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) ClaimWebhookEvent(ctx context.Context, event *models.WebhookEvent) (bool, error) {
	now := r.now().UTC()
	event.Provider = strings.ToLower(strings.TrimSpace(event.Provider))
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	if event.Provider == "" || event.ProviderEventID == "" {
		return false, errors.New("provider and provider_event_id are required")
	}
	event.Status = models.WebhookStatusProcessing
	event.Attempts = 1
	event.CreatedAt = now
	event.UpdatedAt = now

	db := r.db.WithContext(ctx)
	tx := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, tx.Error
	}
	if tx.RowsAffected > 0 {
		return true, nil
	}

	// The row exists. Take it over only if the previous attempt failed or
	// its processing lease ran out.
	tx = db.Model(&models.WebhookEvent{}).
		Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		Where("status = ? OR (status = ? AND updated_at < ?)",
			models.WebhookStatusFailed, models.WebhookStatusProcessing, now.Add(-r.lease)).
		Updates(map[string]any{
			"status":           models.WebhookStatusProcessing,
			"attempts":         gorm.Expr("attempts + 1"),
			"event_type":       event.EventType,
			"payload_json":     event.PayloadJSON,
			"processing_error": "",
			"updated_at":       now,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) CompleteWebhookEvent(ctx context.Context, provider, eventID string) error {
	now := r.now().UTC()
	return r.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("provider = ? AND provider_event_id = ?", provider, eventID).
		Updates(map[string]any{
			"status":           models.WebhookStatusProcessed,
			"processed_at":     &now,
			"processing_error": "",
			"updated_at":       now,
		}).Error
}

func (r *gormRepository) FailWebhookEvent(ctx context.Context, provider, eventID string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	if len(msg) > maxProcessingErrorLength {
		msg = msg[:maxProcessingErrorLength]
	}
	return r.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("provider = ? AND provider_event_id = ?", provider, eventID).
		Updates(map[string]any{
			"status":           models.WebhookStatusFailed,
			"processing_error": msg,
			"updated_at":       r.now().UTC(),
		}).Error
}

func (r *gormRepository) UpsertConnectedAccount(ctx context.Context, account *models.ConnectedAccount) error {
	now := r.now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now
	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "stripe_account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"external_id",
			"email",
			"charges_enabled",
			"payouts_enabled",
			"details_submitted",
			"updated_at",
		}),
	}).Create(account).Error; err != nil {
		return err
	}
	var stored models.ConnectedAccount
	if err := db.Where("stripe_account_id = ?", account.StripeAccountID).First(&stored).Error; err != nil {
		return err
	}
	*account = stored
	return nil
}

func (r *gormRepository) MarkConnectedAccountDeauthorized(ctx context.Context, stripeAccountID string, at time.Time) (*models.ConnectedAccount, error) {
	at = at.UTC()
	account := &models.ConnectedAccount{
		StripeAccountID: strings.TrimSpace(stripeAccountID),
		DisconnectedAt:  &at,
		CreatedAt:       at,
		UpdatedAt:       at,
	}
	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "stripe_account_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"disconnected_at": at,
			"charges_enabled": false,
			"payouts_enabled": false,
			"updated_at":      at,
		}),
	}).Create(account).Error; err != nil {
		return nil, err
	}
	var stored models.ConnectedAccount
	if err := db.Where("stripe_account_id = ?", account.StripeAccountID).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}
