package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tcdynamics/workflowai/app/models"
)

// ErrNotFound is returned for lookups that match no row.
var ErrNotFound = errors.New("record not found")

// SubmissionRepository persists public form submissions
type SubmissionRepository interface {
	CreateContactMessage(ctx context.Context, msg *models.ContactMessage) error
	CreateDemoRequest(ctx context.Context, req *models.DemoRequest) error
	ListContactMessages(ctx context.Context, offset, limit int) ([]models.ContactMessage, error)
	ListDemoRequests(ctx context.Context, offset, limit int) ([]models.DemoRequest, error)
}

// APIKeyRepository defines the interface for dashboard API key operations
type APIKeyRepository interface {
	Create(ctx context.Context, key *models.APIKey) error
	GetByID(ctx context.Context, id uint) (*models.APIKey, error)
	GetActiveByHash(ctx context.Context, hash string) (*models.APIKey, error)
	ListByOwner(ctx context.Context, ownerExternalID string) ([]models.APIKey, error)
	Revoke(ctx context.Context, id uint, at time.Time) error
	TouchLastUsed(ctx context.Context, id uint, at time.Time) error
}

// Repositories holds all repository instances
type Repositories struct {
	Submission SubmissionRepository
	APIKey     APIKeyRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Submission: NewSubmissionRepository(db),
		APIKey:     NewAPIKeyRepository(db),
	}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
