package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tcdynamics/workflowai/app/models"
)

type apiKeyRepository struct {
	db *gorm.DB
}

// NewAPIKeyRepository creates a new API key repository instance
func NewAPIKeyRepository(db *gorm.DB) APIKeyRepository {
	return &apiKeyRepository{db: db}
}

func (r *apiKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	return r.db.WithContext(ctx).Create(key).Error
}

func (r *apiKeyRepository) GetByID(ctx context.Context, id uint) (*models.APIKey, error) {
	var key models.APIKey
	if err := r.db.WithContext(ctx).First(&key, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &key, nil
}

// GetActiveByHash resolves a presented key; revoked keys are not found.
func (r *apiKeyRepository) GetActiveByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	var key models.APIKey
	err := r.db.WithContext(ctx).
		Where("key_hash = ? AND revoked_at IS NULL", hash).
		First(&key).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &key, nil
}

func (r *apiKeyRepository) ListByOwner(ctx context.Context, ownerExternalID string) ([]models.APIKey, error) {
	var keys []models.APIKey
	err := r.db.WithContext(ctx).
		Where("owner_external_id = ?", ownerExternalID).
		Order("created_at DESC, id DESC").
		Find(&keys).Error
	return keys, err
}

// Revoke marks a key revoked. Revoking twice keeps the first timestamp.
func (r *apiKeyRepository) Revoke(ctx context.Context, id uint, at time.Time) error {
	key, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if key.RevokedAt != nil {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.APIKey{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Updates(map[string]any{"revoked_at": at.UTC()}).Error
}

func (r *apiKeyRepository) TouchLastUsed(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.APIKey{}).
		Where("id = ?", id).
		UpdateColumn("last_used_at", at.UTC()).Error
}
