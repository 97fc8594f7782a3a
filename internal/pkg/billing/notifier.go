package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/tcdynamics/workflowai/internal/pkg/mail"
)

// Notifier delivers operational notifications about processed billing events.
type Notifier interface {
	NotifyBillingEvent(ctx context.Context, n Notification) error
}

// MailNotifier emails billing notifications to a fixed operations address.
type MailNotifier struct {
	sender mail.Sender
	from   string
	to     string
}

// NewMailNotifier returns a notifier that is a no-op while to is empty.
func NewMailNotifier(sender mail.Sender, from, to string) *MailNotifier {
	return &MailNotifier{sender: sender, from: strings.TrimSpace(from), to: strings.TrimSpace(to)}
}

func (m *MailNotifier) NotifyBillingEvent(ctx context.Context, n Notification) error {
	if m.to == "" || m.sender == nil {
		return nil
	}
	html, err := mail.Render(mail.TemplateBillingEvent, n)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("[WorkFlowAI] %s", n.EventType)
	if n.ExternalID != "" {
		subject += " for " + n.ExternalID
	}
	return m.sender.Send(ctx, mail.Message{
		From:    m.from,
		To:      m.to,
		Subject: subject,
		HTML:    html,
	})
}
