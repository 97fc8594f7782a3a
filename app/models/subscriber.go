package models

import "time"

const (
	SubscriptionStatusActive     = "active"
	SubscriptionStatusTrialing   = "trialing"
	SubscriptionStatusPastDue    = "past_due"
	SubscriptionStatusCanceled   = "canceled"
	SubscriptionStatusIncomplete = "incomplete"
	SubscriptionStatusUnpaid     = "unpaid"
)

// Subscriber is the local view of one end customer, keyed by the identity the
// frontend passes to Polar as customer external id.
type Subscriber struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	ExternalID          string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_subscribers_external_id" json:"external_id"`
	Plan                string    `gorm:"type:varchar(50);not null;default:'starter';index" json:"plan"`
	SubscriptionStatus  string    `gorm:"type:varchar(32);not null;default:'';index" json:"subscription_status"`
	PolarCustomerID     string    `gorm:"type:varchar(191);not null;default:''" json:"polar_customer_id"`
	PolarSubscriptionID string    `gorm:"type:varchar(191);not null;default:'';index" json:"polar_subscription_id"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// HasAccess reports whether the stored status grants product access.
func (s *Subscriber) HasAccess() bool {
	if s == nil {
		return false
	}
	switch s.SubscriptionStatus {
	case SubscriptionStatusActive, SubscriptionStatusTrialing, SubscriptionStatusPastDue:
		return true
	default:
		return false
	}
}
