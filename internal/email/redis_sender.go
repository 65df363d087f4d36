package email

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Kinds of mail the system sends, used to key mock emails so tests can find them.
const (
	KindPriorityCode = "priority_code"
	KindRunStarted   = "run_started"
	KindRunReport    = "run_report"
	KindNotification = "notification"
)

// Subject prefixes recognised by KindForSubject.
const (
	SubjectPriorityCode = "[Sistema] Código de prioridad"
	SubjectRunStarted   = "[Sistema] Proceso de envío de mensajes iniciado"
	SubjectRunReport    = "[Sistema] Reporte Final"
)

// KindForSubject classifies an outgoing email by its subject.
func KindForSubject(subject string) string {
	switch {
	case strings.HasPrefix(subject, SubjectPriorityCode):
		return KindPriorityCode
	case strings.HasPrefix(subject, SubjectRunStarted):
		return KindRunStarted
	case strings.HasPrefix(subject, SubjectRunReport):
		return KindRunReport
	default:
		return KindNotification
	}
}

// MockEmailKey is the Redis key a RedisSender stores mail under.
func MockEmailKey(to, kind string) string {
	return fmt.Sprintf("mockemail:%s:%s", to, kind)
}

// StoredEmail is the JSON document a RedisSender writes.
type StoredEmail struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	SentAt  string `json:"sent_at"`
	Kind    string `json:"kind"`
}

// RedisSender implements the Sender interface by storing emails in Redis
type RedisSender struct {
	client *redis.Client
	from   string
	ttl    time.Duration
}

// NewRedisSender creates a new RedisSender
func NewRedisSender(client *redis.Client, from string) Sender {
	return &RedisSender{
		client: client,
		from:   from,
		ttl:    5 * time.Minute,
	}
}

// Send stores a representation of the email in Redis instead of delivering it.
// Each recipient gets its own key; a later mail of the same kind overwrites the previous one.
func (s *RedisSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	kind := KindForSubject(subject)
	stored := StoredEmail{
		To:      strings.Join(to, ", "),
		From:    s.from,
		Subject: subject,
		Body:    string(rawMessage),
		SentAt:  time.Now().UTC().Format(time.RFC3339Nano),
		Kind:    kind,
	}
	jsonData, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal email data: %w", err)
	}

	for _, addr := range to {
		key := MockEmailKey(addr, kind)
		if err := s.client.Set(ctx, key, jsonData, s.ttl).Err(); err != nil {
			return fmt.Errorf("failed to store email in Redis key '%s': %w", key, err)
		}
		log.Debugf("Mock email stored in Redis key '%s' (TTL: %v)", key, s.ttl)
	}
	return nil
}
