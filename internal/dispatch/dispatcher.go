package dispatch

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/PabloIxcamparij/SEGIREC-Server/internal/email"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/logging"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/records"
)

var errWhatsAppDisabled = errors.New("whatsapp transport not configured")

// BatchOptions are the run-level settings every send in a batch shares.
type BatchOptions struct {
	Category     records.Category
	SendWhatsApp bool
	// Subject is the run subject; only massive runs carry one.
	Subject string
	// WhatsAppTemplate is the provider template name.
	WhatsAppTemplate string
}

// BatchDispatcher sends one batch and reports an outcome per item.
type BatchDispatcher interface {
	DispatchBatch(ctx context.Context, batch []Item, opts BatchOptions) []ItemResult
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// Concurrency caps in-flight sends across both channels and all batches.
	Concurrency   int
	EmailRetry    RetryPolicy
	WhatsAppRetry RetryPolicy
	// NormalizePhone turns a raw phone into the form the WhatsApp transport expects.
	NormalizePhone func(string) (string, error)
}

// Dispatcher runs the sends of a batch concurrently under a single limiter.
type Dispatcher struct {
	mailer   Mailer
	whatsApp WhatsAppSender
	resolver TemplateResolver
	limiter  *semaphore.Weighted
	cfg      DispatcherConfig
}

// NewDispatcher creates a Dispatcher. whatsApp may be nil, in which case
// WhatsApp sends fail without being attempted.
func NewDispatcher(mailer Mailer, whatsApp WhatsAppSender, resolver TemplateResolver, cfg DispatcherConfig) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.NormalizePhone == nil {
		cfg.NormalizePhone = func(s string) (string, error) { return s, nil }
	}
	return &Dispatcher{
		mailer:   mailer,
		whatsApp: whatsApp,
		resolver: resolver,
		limiter:  semaphore.NewWeighted(int64(cfg.Concurrency)),
		cfg:      cfg,
	}
}

// DispatchBatch waits for every send of the batch to settle; a failing send
// never cancels its siblings. Results are in batch order.
func (d *Dispatcher) DispatchBatch(ctx context.Context, batch []Item, opts BatchOptions) []ItemResult {
	results := make([]ItemResult, len(batch))

	var g errgroup.Group
	for i, item := range batch {
		results[i].Item = item
		if item.Contact.Correo != "" {
			g.Go(func() error {
				out := d.sendEmail(ctx, item, opts)
				results[i].Email = &out
				return nil
			})
		}
		if opts.SendWhatsApp && item.Contact.Telefono != "" {
			g.Go(func() error {
				out := d.sendWhatsApp(ctx, item, opts)
				results[i].WhatsApp = &out
				return nil
			})
		}
	}
	_ = g.Wait()

	return results
}

func (d *Dispatcher) sendEmail(ctx context.Context, item Item, opts BatchOptions) (out Outcome) {
	out = Outcome{Channel: ChannelEmail, Recipient: item.Contact.Correo}
	defer recoverOutcome(&out)

	err := d.limited(ctx, d.cfg.EmailRetry, func(ctx context.Context) error {
		content, err := d.resolver.Resolve(ctx, opts.Category, item, opts.Subject)
		if err != nil {
			return fmt.Errorf("render template: %w", err)
		}
		return d.mailer.Send(ctx, email.Message{
			To:      []string{item.Contact.Correo},
			Subject: content.Subject,
			HTML:    content.HTML,
		})
	})
	if err != nil {
		log.WithFields(log.Fields{"to": logging.RedactEmail(item.Contact.Correo), "cedula": item.Contact.Cedula}).
			Warnf("Email send failed: %v", err)
		out.Error = err.Error()
		return out
	}
	out.OK = true
	return out
}

func (d *Dispatcher) sendWhatsApp(ctx context.Context, item Item, opts BatchOptions) (out Outcome) {
	out = Outcome{Channel: ChannelWhatsApp, Recipient: item.Contact.Telefono}
	defer recoverOutcome(&out)

	if d.whatsApp == nil {
		out.Error = errWhatsAppDisabled.Error()
		return out
	}
	phone, err := d.cfg.NormalizePhone(item.Contact.Telefono)
	if err != nil {
		out.Error = err.Error()
		return out
	}

	err = d.limited(ctx, d.cfg.WhatsAppRetry, func(ctx context.Context) error {
		_, err := d.whatsApp.SendTemplate(ctx, phone, opts.WhatsAppTemplate, item.Bindings)
		return err
	})
	if err != nil {
		log.WithFields(log.Fields{"to": logging.RedactPhone(phone), "cedula": item.Contact.Cedula}).
			Warnf("WhatsApp send failed: %v", err)
		out.Error = err.Error()
		return out
	}
	out.OK = true
	return out
}

// limited holds one limiter slot for each attempt and releases it while
// waiting out the backoff.
func (d *Dispatcher) limited(ctx context.Context, p RetryPolicy, op func(ctx context.Context) error) error {
	return Retry(ctx, p, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.limiter.Acquire(ctx, 1); err != nil {
			return err
		}
		defer d.limiter.Release(1)
		return op(ctx)
	})
}

func recoverOutcome(out *Outcome) {
	if r := recover(); r != nil {
		log.Errorf("Recovered panic in %s send to %s: %v", out.Channel, out.Recipient, r)
		out.OK = false
		out.Error = fmt.Sprintf("panic: %v", r)
	}
}
