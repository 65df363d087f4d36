package email

import (
	"context"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"github.com/PabloIxcamparij/SEGIREC-Server/internal/config"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/logging"
)

// Sender defines the interface for sending emails.
// The rawMessage parameter should contain the full email message, including headers and body, properly formatted.
type Sender interface {
	Send(ctx context.Context, to []string, subject string, rawMessage []byte) error
}

// rawMessage lets already encoded bytes go through a gomail connection.
type rawMessage []byte

func (m rawMessage) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(m)
	return int64(n), err
}

// SMTPSender delivers raw messages over SMTP (STARTTLS on 587, SSL on 465)
// and keeps up to poolSize idle connections open between sends.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
	idle   chan gomail.SendCloser
}

// NewSMTPSender creates a new SMTPSender.
// It returns Sender so we can easily swap implementations (e.g., for testing).
func NewSMTPSender(cfg *config.Config, poolSize int) Sender {
	if cfg.SmtpHost == "" {
		log.Warn("SMTP host not configured, using logging email sender.")
		return &LoggingSender{from: cfg.SmtpFromAddress}
	}
	if poolSize <= 0 {
		poolSize = 1
	}
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.SmtpHost, cfg.SmtpPort, cfg.SmtpUsername, cfg.SmtpPassword),
		from:   cfg.SmtpFromAddress,
		idle:   make(chan gomail.SendCloser, poolSize),
	}
}

// Send sends an email using a pooled SMTP connection.
// A pooled connection that fails is discarded and the send is tried once on a fresh one.
func (s *SMTPSender) Send(ctx context.Context, to []string, subject string, raw []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	conn, pooled, err := s.acquire()
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	err = conn.Send(s.from, to, rawMessage(raw))
	if err != nil && pooled {
		_ = conn.Close()
		conn, err = s.dialer.Dial()
		if err != nil {
			return fmt.Errorf("smtp dial: %w", err)
		}
		err = conn.Send(s.from, to, rawMessage(raw))
	}
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp error: %w", err)
	}
	s.release(conn)

	log.Debugf("Email sent via SMTP to %s (Subject: %s)", redactAll(to), subject)
	return nil
}

func (s *SMTPSender) acquire() (gomail.SendCloser, bool, error) {
	select {
	case c := <-s.idle:
		return c, true, nil
	default:
	}
	c, err := s.dialer.Dial()
	return c, false, err
}

func (s *SMTPSender) release(c gomail.SendCloser) {
	select {
	case s.idle <- c:
	default:
		_ = c.Close()
	}
}

// Close closes every idle pooled connection.
func (s *SMTPSender) Close() {
	for {
		select {
		case c := <-s.idle:
			_ = c.Close()
		default:
			return
		}
	}
}

// LoggingSender only logs what would have been sent.
// Used in development or when no transport is configured.
type LoggingSender struct {
	from string
}

// NewLoggingSender creates a LoggingSender.
func NewLoggingSender(from string) *LoggingSender {
	return &LoggingSender{from: from}
}

// Send logs the email details instead of sending.
func (s *LoggingSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	log.WithFields(log.Fields{
		"to":      redactAll(to),
		"from":    s.from,
		"subject": subject,
		"bytes":   len(rawMessage),
	}).Info("Email logged (not sent)")
	log.Debug(string(rawMessage))
	return nil
}

func redactAll(to []string) []string {
	out := make([]string, len(to))
	for i, addr := range to {
		out[i] = logging.RedactEmail(addr)
	}
	return out
}
