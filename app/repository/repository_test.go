package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tcdynamics/workflowai/app/models"
	"github.com/tcdynamics/workflowai/internal/pkg/database"
)

func newTestRepositories(t *testing.T) (*Repositories, *gorm.DB) {
	t.Helper()
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewFactory(db).GetRepositories(), db
}

func TestFactoryReturnsSingletons(t *testing.T) {
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	f := NewFactory(db)
	assert.Same(t, f.GetRepositories(), f.GetRepositories())
	assert.Same(t, f.GetRepositories().Submission, f.GetSubmissionRepository())
	assert.Same(t, f.GetRepositories().APIKey, f.GetAPIKeyRepository())
}

func TestSubmissionRepository(t *testing.T) {
	repos, _ := newTestRepositories(t)
	ctx := context.Background()

	msg := &models.ContactMessage{Name: "Ada", Email: "ada@example.com", Message: "Hello there, team!"}
	require.NoError(t, repos.Submission.CreateContactMessage(ctx, msg))
	assert.NotZero(t, msg.ID)
	assert.Len(t, msg.PublicID, 36)

	second := &models.ContactMessage{Name: "Bob", Email: "bob@example.com", Message: "Second message here"}
	require.NoError(t, repos.Submission.CreateContactMessage(ctx, second))

	msgs, err := repos.Submission.ListContactMessages(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.NotEqual(t, msgs[0].PublicID, msgs[1].PublicID)

	demo := &models.DemoRequest{Name: "Grace", Email: "grace@example.com", Company: "Navy"}
	require.NoError(t, repos.Submission.CreateDemoRequest(ctx, demo))
	reqs, err := repos.Submission.ListDemoRequests(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, demo.PublicID, reqs[0].PublicID)
}

func TestAPIKeyRepository(t *testing.T) {
	repos, _ := newTestRepositories(t)
	ctx := context.Background()

	key, raw, err := models.NewAPIKey("user_42", "ci")
	require.NoError(t, err)
	require.NoError(t, repos.APIKey.Create(ctx, key))

	found, err := repos.APIKey.GetActiveByHash(ctx, models.HashAPIKey(raw))
	require.NoError(t, err)
	assert.Equal(t, key.ID, found.ID)

	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repos.APIKey.TouchLastUsed(ctx, key.ID, now))
	found, err = repos.APIKey.GetByID(ctx, key.ID)
	require.NoError(t, err)
	require.NotNil(t, found.LastUsedAt)
	assert.True(t, found.LastUsedAt.Equal(now))

	keys, err := repos.APIKey.ListByOwner(ctx, "user_42")
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	require.NoError(t, repos.APIKey.Revoke(ctx, key.ID, now))
	require.NoError(t, repos.APIKey.Revoke(ctx, key.ID, now.Add(time.Hour)))
	_, err = repos.APIKey.GetActiveByHash(ctx, models.HashAPIKey(raw))
	assert.ErrorIs(t, err, ErrNotFound)

	found, err = repos.APIKey.GetByID(ctx, key.ID)
	require.NoError(t, err)
	require.NotNil(t, found.RevokedAt)
	assert.True(t, found.RevokedAt.Equal(now))

	assert.ErrorIs(t, repos.APIKey.Revoke(ctx, 9999, now), ErrNotFound)
	_, err = repos.APIKey.GetByID(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}
