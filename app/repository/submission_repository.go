package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/tcdynamics/workflowai/app/models"
)

const maxListLimit = 100

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository creates a new submission repository instance
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) CreateContactMessage(ctx context.Context, msg *models.ContactMessage) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *submissionRepository) CreateDemoRequest(ctx context.Context, req *models.DemoRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

// ListContactMessages returns the newest messages first
func (r *submissionRepository) ListContactMessages(ctx context.Context, offset, limit int) ([]models.ContactMessage, error) {
	var msgs []models.ContactMessage
	err := r.db.WithContext(ctx).Order("created_at DESC, id DESC").
		Offset(offset).Limit(clampLimit(limit)).Find(&msgs).Error
	return msgs, err
}

// ListDemoRequests returns the newest requests first
func (r *submissionRepository) ListDemoRequests(ctx context.Context, offset, limit int) ([]models.DemoRequest, error) {
	var reqs []models.DemoRequest
	err := r.db.WithContext(ctx).Order("created_at DESC, id DESC").
		Offset(offset).Limit(clampLimit(limit)).Find(&reqs).Error
	return reqs, err
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
