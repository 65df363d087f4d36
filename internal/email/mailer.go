package email

import (
	"context"
	"fmt"
)

// Mailer composes messages and hands the raw MIME bytes to a Sender.
type Mailer struct {
	sender Sender
	from   string
}

// NewMailer creates a Mailer that uses from when a message has no From address.
func NewMailer(sender Sender, from string) *Mailer {
	return &Mailer{sender: sender, from: from}
}

// Send composes and delivers msg.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.From == "" {
		msg.From = m.from
	}
	raw, err := Compose(msg)
	if err != nil {
		return err
	}
	if err := m.sender.Send(ctx, msg.To, msg.Subject, raw); err != nil {
		return fmt.Errorf("send %q: %w", msg.Subject, err)
	}
	return nil
}
