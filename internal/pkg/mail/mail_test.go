package mail

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPSenderSend(t *testing.T) {
	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotMsg  string
		gotAuth smtp.Auth
	)
	s := NewSMTPSender(SMTPConfig{Host: "mail.local", Port: "587", Username: "u", Password: "p", Sender: "billing@workflowai.test"})
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo, gotMsg = addr, a, from, to, string(msg)
		return nil
	}

	err := s.Send(context.Background(), Message{To: "ops@workflowai.test", Subject: "Hello\r\nBcc: evil@x", HTML: "<p>hi</p>"})
	require.NoError(t, err)

	assert.Equal(t, "mail.local:587", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, "billing@workflowai.test", gotFrom)
	assert.Equal(t, []string{"ops@workflowai.test"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: HelloBcc: evil@x\r\n")
	assert.Contains(t, gotMsg, "Content-Type: text/html; charset=UTF-8")
	assert.True(t, strings.HasSuffix(gotMsg, "<p>hi</p>"))
}

func TestSMTPSenderPlainTextAndErrors(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "mail.local", Port: "25"})
	assert.Equal(t, "no-reply@localhost", s.DefaultFrom())

	var gotMsg string
	s.sendMail = func(_ string, a smtp.Auth, _ string, _ []string, msg []byte) error {
		assert.Nil(t, a)
		gotMsg = string(msg)
		return errors.New("connection refused")
	}

	err := s.Send(context.Background(), Message{To: "a@b.c", Subject: "s", Text: "plain"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mail.local:25")
	assert.Contains(t, gotMsg, "Content-Type: text/plain")

	assert.ErrorIs(t, s.Send(context.Background(), Message{To: " "}), ErrNoRecipient)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Send(ctx, Message{To: "a@b.c"}), context.Canceled)
}

func TestLogSender(t *testing.T) {
	assert.NoError(t, LogSender{}.Send(context.Background(), Message{To: "a@b.c", Subject: "s"}))
}

func TestRenderTemplates(t *testing.T) {
	html, err := Render(TemplateBillingEvent, map[string]any{
		"EventID":        "evt_1",
		"EventType":      "order.paid",
		"ExternalID":     "user_42",
		"Email":          "",
		"Plan":           "professional",
		"Status":         "",
		"SubscriptionID": "sub_1",
		"Amount":         int64(4900),
		"Currency":       "eur",
		"OccurredAt":     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Contains(t, html, "order.paid")
	assert.Contains(t, html, "49.00 EUR")
	assert.Contains(t, html, "2026-03-01 10:00 UTC")
	assert.Contains(t, html, "WorkFlowAI")

	html, err = Render(TemplateContactTeam, map[string]any{
		"Name": "<script>", "Email": "a@b.c", "Company": "", "Phone": "", "Message": "hello", "PublicID": "abc",
	})
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "&lt;script&gt;")

	_, err = Render("missing.html", nil)
	assert.Error(t, err)
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "49.00 EUR", formatMoney(4900, "eur"))
	assert.Equal(t, "0.05 USD", formatMoney(5, "usd"))
	assert.Equal(t, "-1.50 USD", formatMoney(-150, "usd"))
}
