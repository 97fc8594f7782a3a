package models

import "time"

// ConnectedAccount mirrors a Stripe Connect account onboarded through the dashboard.
type ConnectedAccount struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	StripeAccountID  string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_connected_accounts_stripe_id" json:"stripe_account_id"`
	ExternalID       string     `gorm:"type:varchar(191);not null;default:'';index" json:"external_id"`
	Email            string     `gorm:"type:varchar(200);not null;default:''" json:"email"`
	ChargesEnabled   bool       `gorm:"not null;default:false" json:"charges_enabled"`
	PayoutsEnabled   bool       `gorm:"not null;default:false" json:"payouts_enabled"`
	DetailsSubmitted bool       `gorm:"not null;default:false" json:"details_submitted"`
	DisconnectedAt   *time.Time `gorm:"type:timestamp;default:null" json:"disconnected_at,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsOnboarded reports whether Stripe allows charges and payouts for the account.
func (a *ConnectedAccount) IsOnboarded() bool {
	return a != nil && a.DisconnectedAt == nil && a.ChargesEnabled && a.PayoutsEnabled
}
