package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/PabloIxcamparij/SEGIREC-Server/internal/auth"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/cache"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/dispatch"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/email"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/logging"
)

var (
	ErrCodeNotRequested = errors.New("no verification code was requested")
	ErrInvalidCode      = errors.New("invalid verification code")
	ErrTooManyAttempts  = errors.New("too many failed attempts, request a new code")
)

const priorityCodeEmail = `<h1>Verificación de Seguridad</h1>
<p>Se ha solicitado un envío prioritario de mensajes.</p>
<p>El código de verificación es:</p>
<div style="font-size: 24px; font-weight: bold; padding: 10px; background-color: #f0f0f0; border-radius: 5px; display: inline-block;">%s</div>
<p>Este código expira en %d minutos.</p>`

// PriorityConfig sets the lifetimes of codes and tokens.
type PriorityConfig struct {
	Secret      string
	CodeTTL     time.Duration
	TokenTTL    time.Duration
	MaxAttempts int
}

// IPriorityService runs the administrator-approved priority flow: a user asks
// for a code, the first active administrator receives it by email, and the
// user trades it for a short-lived priority token.
type IPriorityService interface {
	RequestCode(ctx context.Context, userID string, grants auth.Grants) error
	ConfirmCode(ctx context.Context, userID, code string) (string, error)
}

type pendingCode struct {
	AdminEmail string      `json:"adminEmail"`
	Code       string      `json:"code"`
	Attempts   int         `json:"attempts"`
	Grants     auth.Grants `json:"grants"`
}

type priorityService struct {
	users   IUserService
	store   cache.TTLStore
	mailer  dispatch.Mailer
	cfg     PriorityConfig
	newCode func() (string, error)
}

func NewPriorityService(users IUserService, store cache.TTLStore, mailer dispatch.Mailer, cfg PriorityConfig) IPriorityService {
	return &priorityService{users: users, store: store, mailer: mailer, cfg: cfg, newCode: sixDigitCode}
}

func priorityKey(userID string) string {
	return "priority:code:" + userID
}

// RequestCode replaces any pending code of userID and mails the new one.
func (s *priorityService) RequestCode(ctx context.Context, userID string, grants auth.Grants) error {
	admin, err := s.users.FindFirstActiveAdmin(ctx)
	if err != nil {
		return err
	}
	code, err := s.newCode()
	if err != nil {
		return fmt.Errorf("failed to generate code: %w", err)
	}

	entry, err := json.Marshal(pendingCode{AdminEmail: admin.Email, Code: code, Grants: grants})
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, priorityKey(userID), entry, s.cfg.CodeTTL); err != nil {
		return err
	}

	msg := email.Message{
		To:      []string{admin.Email},
		Subject: email.SubjectPriorityCode,
		HTML:    fmt.Sprintf(priorityCodeEmail, code, int(s.cfg.CodeTTL.Minutes())),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		_ = s.store.Delete(ctx, priorityKey(userID))
		return fmt.Errorf("failed to email verification code: %w", err)
	}

	log.WithField("user", userID).Infof("Priority code sent to %s", logging.RedactEmail(admin.Email))
	return nil
}

// ConfirmCode checks code and, when it matches, consumes it and returns a
// priority token carrying the grants asked for. The check, the attempt count
// and the consume happen in one store update, so parallel guesses share the
// same attempt budget and a code mints at most one token.
func (s *priorityService) ConfirmCode(ctx context.Context, userID, code string) (string, error) {
	key := priorityKey(userID)
	var (
		outcome error
		grants  auth.Grants
	)
	err := s.store.Update(ctx, key, func(raw []byte) ([]byte, cache.Mutation, error) {
		var entry pendingCode
		if err := json.Unmarshal(raw, &entry); err != nil {
			outcome = fmt.Errorf("corrupt pending code for %s: %w", userID, err)
			return nil, cache.Remove, nil
		}

		if subtle.ConstantTimeCompare([]byte(entry.Code), []byte(code)) == 1 {
			grants, outcome = entry.Grants, nil
			return nil, cache.Remove, nil
		}

		entry.Attempts++
		if entry.Attempts >= s.cfg.MaxAttempts {
			outcome = ErrTooManyAttempts
			return nil, cache.Remove, nil
		}
		updated, err := json.Marshal(entry)
		if err != nil {
			return nil, cache.Keep, err
		}
		outcome = ErrInvalidCode
		return updated, cache.Store, nil
	})
	if errors.Is(err, cache.ErrNotFound) {
		return "", ErrCodeNotRequested
	}
	if err != nil {
		return "", err
	}

	if errors.Is(outcome, ErrTooManyAttempts) {
		log.WithField("user", userID).Warn("Priority code discarded after too many attempts")
	}
	if outcome != nil {
		return "", outcome
	}
	return auth.GeneratePriorityToken(userID, grants, s.cfg.Secret, s.cfg.TokenTTL)
}

func sixDigitCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
