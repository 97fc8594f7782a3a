package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const (
	apiKeyPrefix        = "wfai_"
	apiKeyDisplayLength = 13
)

var apiKeyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// APIKey grants programmatic access to the dashboard API for one subscriber
// identity. Only the SHA-256 hash of the secret is stored.
type APIKey struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	OwnerExternalID string     `gorm:"type:varchar(191);not null;index" json:"owner_external_id"`
	Name            string     `gorm:"type:varchar(100);not null" json:"name"`
	KeyHash         string     `gorm:"type:char(64);not null;uniqueIndex" json:"-"`
	KeyPrefix       string     `gorm:"type:varchar(20);not null" json:"key_prefix"`
	LastUsedAt      *time.Time `gorm:"type:timestamp;default:null" json:"last_used_at"`
	RevokedAt       *time.Time `gorm:"type:timestamp;default:null;index" json:"revoked_at"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsActive reports whether the key can still authenticate requests.
func (k *APIKey) IsActive() bool {
	return k != nil && k.KeyHash != "" && k.RevokedAt == nil
}

// NewAPIKey generates key material for owner and returns the model together
// with the raw secret. The raw secret is never stored.
func NewAPIKey(ownerExternalID, name string) (*APIKey, string, error) {
	rawKey, err := generateAPIKey()
	if err != nil {
		return nil, "", err
	}
	return &APIKey{
		OwnerExternalID: strings.TrimSpace(ownerExternalID),
		Name:            strings.TrimSpace(name),
		KeyHash:         HashAPIKey(rawKey),
		KeyPrefix:       rawKey[:apiKeyDisplayLength],
	}, rawKey, nil
}

// Revoke marks the key as revoked without deleting the record.
func (k *APIKey) Revoke(now time.Time) {
	k.RevokedAt = &now
}

// HashAPIKey returns the SHA-256 hash for the provided API key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}

// LooksLikeAPIKey is a cheap shape check run before any database lookup.
func LooksLikeAPIKey(raw string) bool {
	raw = strings.TrimSpace(raw)
	return strings.HasPrefix(raw, apiKeyPrefix) && len(raw) > apiKeyDisplayLength
}

func generateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("api key generation failed: %w", err)
	}
	return apiKeyPrefix + strings.ToLower(apiKeyEncoding.EncodeToString(b)), nil
}
