package mail

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog/log"
)

// Sender sends transactional emails.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Message represents an email to send.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
	Text    string
}

var ErrNoRecipient = errors.New("mail: no recipient")

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Sender   string
}

// SMTPSender sends emails via SMTP.
type SMTPSender struct {
	cfg      SMTPConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.Sender == "" {
		cfg.Sender = "no-reply@localhost"
		log.Warn().Str("sender", cfg.Sender).Msg("SMTP_SENDER not set, using default sender")
	}
	return &SMTPSender{cfg: cfg, sendMail: smtp.SendMail}
}

// DefaultFrom is the configured envelope sender.
func (s *SMTPSender) DefaultFrom() string {
	return s.cfg.Sender
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to := sanitizeHeader(msg.To)
	if to == "" {
		return ErrNoRecipient
	}
	from := sanitizeHeader(msg.From)
	if from == "" {
		from = s.cfg.Sender
	}

	var auth smtp.Auth
	if s.cfg.Username != "" && s.cfg.Password != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port)
	if err := s.sendMail(addr, auth, from, []string{to}, buildMessage(from, to, msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", addr, err)
	}
	log.Debug().Str("addr", addr).Str("subject", msg.Subject).Msg("email sent")
	return nil
}

func buildMessage(from, to string, msg Message) []byte {
	contentType := "text/html"
	body := msg.HTML
	if body == "" {
		contentType = "text/plain"
		body = msg.Text
	}
	return []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", from, to, sanitizeHeader(msg.Subject)) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: " + contentType + "; charset=UTF-8\r\n\r\n" +
			body,
	)
}

func sanitizeHeader(v string) string {
	v = strings.ReplaceAll(v, "\r", "")
	v = strings.ReplaceAll(v, "\n", "")
	return strings.TrimSpace(v)
}

// LogSender logs emails instead of sending them. Used when no SMTP host is configured.
type LogSender struct{}

func (LogSender) Send(_ context.Context, msg Message) error {
	log.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("email not sent: no SMTP host configured")
	return nil
}

var (
	_ Sender = (*SMTPSender)(nil)
	_ Sender = LogSender{}
)
