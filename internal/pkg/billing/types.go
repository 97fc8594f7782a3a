package billing

import (
	"errors"
	"time"
)

var (
	// ErrMissingIdentity reports an event without customer.external_id.
	ErrMissingIdentity = errors.New("billing: event carries no customer external id")
	// ErrSubscriberNotFound reports a revocation that matches no local subscriber.
	ErrSubscriberNotFound = errors.New("billing: no subscriber for external id")
	// ErrWebhookSecretMissing reports a request received without a configured secret.
	ErrWebhookSecretMissing = errors.New("billing: webhook secret not configured")
)

// SubscriberUpdate is the provider-agnostic shape written by every upsert path.
type SubscriberUpdate struct {
	ExternalID          string
	Plan                string
	SubscriptionStatus  string
	PolarCustomerID     string
	PolarSubscriptionID string
}

// Notification describes one processed billing event for the operations inbox.
type Notification struct {
	EventID        string
	EventType      string
	ExternalID     string
	Email          string
	Plan           string
	Status         string
	SubscriptionID string
	Amount         int64
	Currency       string
	OccurredAt     time.Time
}

// WebhookResponse is the JSON body returned to the billing provider.
type WebhookResponse struct {
	Received bool   `json:"received,omitempty"`
	Type     string `json:"type,omitempty"`
	Replay   bool   `json:"replay,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Outcome is the framework-neutral result of processing one delivery.
type Outcome struct {
	Status int
	Body   WebhookResponse
}
