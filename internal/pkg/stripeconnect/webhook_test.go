package stripeconnect

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"

	"github.com/tcdynamics/workflowai/app/models"
	"github.com/tcdynamics/workflowai/internal/pkg/billing"
	"github.com/tcdynamics/workflowai/internal/pkg/database"
	"github.com/tcdynamics/workflowai/internal/pkg/mail"
)

const testSecret = "whsec_test_connect"

const accountUpdated = `{
	"id": "evt_acct_1",
	"object": "event",
	"type": "account.updated",
	"data": {"object": {
		"id": "acct_1",
		"object": "account",
		"email": "owner@example.com",
		"charges_enabled": true,
		"payouts_enabled": true,
		"details_submitted": true,
		"metadata": {"external_id": "user_7"}
	}}
}`

const accountDeauthorized = `{
	"id": "evt_deauth_1",
	"object": "event",
	"type": "account.application.deauthorized",
	"account": "acct_1",
	"data": {"object": {"id": "ca_app", "object": "application"}}
}`

func sign(payload string, secret string) ([]byte, string) {
	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return signed.Payload, signed.Header
}

type captureSender struct {
	messages []mail.Message
}

func (c *captureSender) Send(_ context.Context, msg mail.Message) error {
	c.messages = append(c.messages, msg)
	return nil
}

func newTestProcessor(t *testing.T, secret string) (*Processor, billing.Repository, *captureSender) {
	t.Helper()
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	repo := billing.NewRepository(db)
	sender := &captureSender{}
	return NewProcessor(secret, repo, repo, WithNotifications(sender, "noreply@workflowai.test", "ops@workflowai.test")), repo, sender
}

func TestProcessAccountUpdated(t *testing.T) {
	p, repo, _ := newTestProcessor(t, testSecret)
	ctx := context.Background()

	payload, sig := sign(accountUpdated, testSecret)
	out := p.Process(ctx, http.MethodPost, payload, sig)
	require.Equal(t, http.StatusOK, out.Status)
	assert.Equal(t, billing.WebhookResponse{Received: true, Type: "account.updated"}, out.Body)

	out = p.Process(ctx, http.MethodPost, payload, sig)
	assert.Equal(t, http.StatusOK, out.Status)
	assert.True(t, out.Body.Replay)

	deauth, err := repo.MarkConnectedAccountDeauthorized(ctx, "acct_1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "user_7", deauth.ExternalID)
	assert.Equal(t, "owner@example.com", deauth.Email)
	assert.True(t, deauth.DetailsSubmitted)
}

func TestProcessAccountDeauthorized(t *testing.T) {
	p, repo, sender := newTestProcessor(t, testSecret)
	ctx := context.Background()

	payload, sig := sign(accountUpdated, testSecret)
	require.Equal(t, http.StatusOK, p.Process(ctx, http.MethodPost, payload, sig).Status)

	payload, sig = sign(accountDeauthorized, testSecret)
	out := p.Process(ctx, http.MethodPost, payload, sig)
	require.Equal(t, http.StatusOK, out.Status)
	assert.Equal(t, "account.application.deauthorized", out.Body.Type)

	require.Len(t, sender.messages, 1)
	assert.Equal(t, "ops@workflowai.test", sender.messages[0].To)
	assert.Contains(t, sender.messages[0].Subject, "acct_1")

	again := &models.ConnectedAccount{StripeAccountID: "acct_1", ExternalID: "user_7"}
	require.NoError(t, repo.UpsertConnectedAccount(ctx, again))
	assert.NotNil(t, again.DisconnectedAt)
	assert.False(t, again.IsOnboarded())
}

func TestProcessUnhandledType(t *testing.T) {
	p, _, sender := newTestProcessor(t, testSecret)
	payload, sig := sign(`{"id":"evt_x","object":"event","type":"payout.paid","data":{"object":{"id":"po_1"}}}`, testSecret)

	out := p.Process(context.Background(), http.MethodPost, payload, sig)
	assert.Equal(t, http.StatusOK, out.Status)
	assert.Equal(t, "payout.paid", out.Body.Type)
	assert.Empty(t, sender.messages)
}

func TestProcessRejections(t *testing.T) {
	t.Run("method", func(t *testing.T) {
		p, _, _ := newTestProcessor(t, testSecret)
		assert.Equal(t, http.StatusMethodNotAllowed, p.Process(context.Background(), http.MethodGet, nil, "").Status)
	})

	t.Run("not configured", func(t *testing.T) {
		p, _, _ := newTestProcessor(t, " ")
		payload, sig := sign(accountUpdated, testSecret)
		assert.Equal(t, http.StatusInternalServerError, p.Process(context.Background(), http.MethodPost, payload, sig).Status)
	})

	t.Run("wrong secret", func(t *testing.T) {
		p, _, _ := newTestProcessor(t, testSecret)
		payload, sig := sign(accountUpdated, "whsec_other")
		out := p.Process(context.Background(), http.MethodPost, payload, sig)
		assert.Equal(t, http.StatusForbidden, out.Status)
		assert.Equal(t, "Invalid signature", out.Body.Error)
	})

	t.Run("missing header", func(t *testing.T) {
		p, _, _ := newTestProcessor(t, testSecret)
		out := p.Process(context.Background(), http.MethodPost, []byte(accountUpdated), "")
		assert.Equal(t, http.StatusForbidden, out.Status)
	})

	t.Run("signed garbage", func(t *testing.T) {
		p, _, _ := newTestProcessor(t, testSecret)
		payload, sig := sign(`not json`, testSecret)
		out := p.Process(context.Background(), http.MethodPost, payload, sig)
		assert.Equal(t, http.StatusBadRequest, out.Status)
	})
}

type failingStore struct{}

func (failingStore) UpsertConnectedAccount(context.Context, *models.ConnectedAccount) error {
	return errors.New("db down")
}

func (failingStore) MarkConnectedAccountDeauthorized(context.Context, string, time.Time) (*models.ConnectedAccount, error) {
	return nil, errors.New("db down")
}

func TestProcessStoreFailureIsRetryable(t *testing.T) {
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	ledger := billing.NewRepository(db)
	ctx := context.Background()

	p := NewProcessor(testSecret, failingStore{}, ledger)
	payload, sig := sign(accountUpdated, testSecret)
	assert.Equal(t, http.StatusInternalServerError, p.Process(ctx, http.MethodPost, payload, sig).Status)

	p = NewProcessor(testSecret, ledger, ledger)
	out := p.Process(ctx, http.MethodPost, payload, sig)
	assert.Equal(t, http.StatusOK, out.Status)
	assert.False(t, out.Body.Replay)
}
