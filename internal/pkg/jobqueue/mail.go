package jobqueue

import (
	"context"
	"fmt"
	"strings"

	"github.com/tcdynamics/workflowai/internal/pkg/mail"
)

// MailSender defers delivery to the queue so that SMTP outages are retried
// instead of dropped.
type MailSender struct {
	queue *Queue
}

func NewMailSender(q *Queue) *MailSender {
	return &MailSender{queue: q}
}

func (s *MailSender) Send(ctx context.Context, msg mail.Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return mail.ErrNoRecipient
	}
	_, err := s.queue.Enqueue(ctx, JobTypeSendMail, msg)
	return err
}

// MailDeliveryHandler sends queued messages with sender.
func MailDeliveryHandler(sender mail.Sender) Handler {
	return func(ctx context.Context, job *Job) error {
		var msg mail.Message
		if err := job.Decode(&msg); err != nil {
			return fmt.Errorf("decode mail job: %w", err)
		}
		return sender.Send(ctx, msg)
	}
}

var _ mail.Sender = (*MailSender)(nil)
