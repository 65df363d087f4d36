// Package dispatch turns a validated run request into batches and sends
// every batch over email and WhatsApp under one shared concurrency limit.
package dispatch

import (
	"context"

	"github.com/PabloIxcamparij/SEGIREC-Server/internal/email"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/records"
)

// Channel names a delivery channel.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)

// Item is one recipient ready to be sent: its contact details plus the
// values its templates are rendered with.
type Item struct {
	Contact  records.Contact
	Bindings map[string]any
}

// Outcome is the result of one channel send for one item.
type Outcome struct {
	Channel   Channel `json:"channel"`
	Recipient string  `json:"recipient"`
	OK        bool    `json:"ok"`
	Error     string  `json:"error,omitempty"`
}

// ItemResult holds the per-channel outcomes for one item. A nil outcome means
// the channel was not attempted (no address, or WhatsApp disabled for the run).
type ItemResult struct {
	Item     Item
	Email    *Outcome
	WhatsApp *Outcome
}

// Content is a rendered email.
type Content struct {
	Subject string
	HTML    string
}

// TemplateResolver renders the email for one item. runSubject is the
// caller-supplied subject, empty unless the run provided one.
type TemplateResolver interface {
	Resolve(ctx context.Context, category records.Category, item Item, runSubject string) (Content, error)
}

// Mailer delivers a composed email.
type Mailer interface {
	Send(ctx context.Context, msg email.Message) error
}

// WhatsAppSender sends a template message to a normalized phone number and
// returns the provider message id.
type WhatsAppSender interface {
	SendTemplate(ctx context.Context, phone, template string, data map[string]any) (string, error)
}
