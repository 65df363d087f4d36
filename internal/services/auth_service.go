package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/PabloIxcamparij/SEGIREC-Server/internal/auth"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid user name or password")
	ErrSessionExpired     = errors.New("session is no longer valid")
)

// Session is an issued login.
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *models.User `json:"user"`
}

// IAuthService logs users in and out and checks live sessions.
type IAuthService interface {
	Login(ctx context.Context, name, password string) (*Session, error)
	Logout(ctx context.Context, userID string) error
	Authenticate(ctx context.Context, token string) (*auth.Claims, *models.User, error)
}

type authService struct {
	users  IUserService
	secret string
	ttl    time.Duration
}

func NewAuthService(users IUserService, secret string, ttl time.Duration) IAuthService {
	return &authService{users: users, secret: secret, ttl: ttl}
}

// Login checks the password and rotates the session id, so any earlier
// token of the user stops working.
func (s *authService) Login(ctx context.Context, name, password string) (*Session, error) {
	user, err := s.users.FindByName(ctx, name)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !user.Active || !auth.CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	sessionID := uuid.NewString()
	if err := s.users.SetSessionID(ctx, user.ID, sessionID); err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	user.SessionID = sessionID

	token, err := auth.GenerateJWT(user.ID, user.Email, user.Roles, sessionID, s.secret, s.ttl)
	if err != nil {
		return nil, err
	}
	log.WithField("user", user.ID).Info("User logged in")
	return &Session{Token: token, ExpiresAt: time.Now().Add(s.ttl), User: user}, nil
}

func (s *authService) Logout(ctx context.Context, userID string) error {
	return s.users.SetSessionID(ctx, userID, "")
}

// Authenticate validates token and checks that it belongs to the user's
// current session and that the user is still active.
func (s *authService) Authenticate(ctx context.Context, token string) (*auth.Claims, *models.User, error) {
	claims, err := auth.ValidateJWT(token, s.secret)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.users.FindByID(ctx, claims.UserID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, nil, ErrSessionExpired
	}
	if err != nil {
		return nil, nil, err
	}
	if !user.Active || user.SessionID == "" || user.SessionID != claims.SessionID {
		return nil, nil, ErrSessionExpired
	}
	return claims, user, nil
}
