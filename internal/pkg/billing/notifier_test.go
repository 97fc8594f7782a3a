package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcdynamics/workflowai/internal/pkg/mail"
)

type recordingSender struct {
	messages []mail.Message
}

func (r *recordingSender) Send(_ context.Context, msg mail.Message) error {
	r.messages = append(r.messages, msg)
	return nil
}

func TestMailNotifier(t *testing.T) {
	sender := &recordingSender{}
	n := NewMailNotifier(sender, "billing@workflowai.test", " ops@workflowai.test ")

	err := n.NotifyBillingEvent(context.Background(), Notification{
		EventID:    "evt_1",
		EventType:  "subscription.created",
		ExternalID: "user_42",
		Plan:       PlanProfessional,
		Status:     "active",
		OccurredAt: time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, sender.messages, 1)

	msg := sender.messages[0]
	assert.Equal(t, "ops@workflowai.test", msg.To)
	assert.Equal(t, "billing@workflowai.test", msg.From)
	assert.Equal(t, "[WorkFlowAI] subscription.created for user_42", msg.Subject)
	assert.Contains(t, msg.HTML, "professional")
	assert.Contains(t, msg.HTML, "evt_1")
}

func TestMailNotifierWithoutRecipient(t *testing.T) {
	sender := &recordingSender{}
	n := NewMailNotifier(sender, "", "")
	require.NoError(t, n.NotifyBillingEvent(context.Background(), Notification{EventType: "order.paid"}))
	assert.Empty(t, sender.messages)
}
