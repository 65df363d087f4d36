package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/PabloIxcamparij/SEGIREC-Server/internal/auth"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/models"
)

const testSecret = "unit-test-secret"

func activeUser(t *testing.T, password string) *models.User {
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	return &models.User{
		Base:         models.Base{ID: "u1"},
		Name:         "ana",
		Email:        "ana@muni.go.cr",
		PasswordHash: hash,
		Roles:        []string{models.RoleDebt},
		Active:       true,
	}
}

func TestAuthService_LoginRotatesSession(t *testing.T) {
	users := new(MockUserService)
	user := activeUser(t, "clave-segura")
	users.On("FindByName", mock.Anything, "ana").Return(user, nil)

	var sessionID string
	users.On("SetSessionID", mock.Anything, "u1", mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { sessionID = args.String(2) }).
		Return(nil).Once()

	svc := NewAuthService(users, testSecret, time.Hour)
	session, err := svc.Login(context.Background(), "ana", "clave-segura")
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)

	claims, err := auth.ValidateJWT(session.Token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, sessionID, claims.SessionID)
	assert.Equal(t, []string{models.RoleDebt}, claims.Roles)
	users.AssertExpectations(t)
}

func TestAuthService_LoginRejections(t *testing.T) {
	user := activeUser(t, "clave-segura")
	inactive := *user
	inactive.Active = false

	tests := []struct {
		name     string
		found    *models.User
		findErr  error
		password string
		wantErr  error
	}{
		{"unknown user", nil, ErrUserNotFound, "x", ErrInvalidCredentials},
		{"wrong password", user, nil, "otra-clave", ErrInvalidCredentials},
		{"inactive user", &inactive, nil, "clave-segura", ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := new(MockUserService)
			users.On("FindByName", mock.Anything, "ana").Return(tt.found, tt.findErr)

			_, err := NewAuthService(users, testSecret, time.Hour).Login(context.Background(), "ana", tt.password)
			assert.ErrorIs(t, err, tt.wantErr)
			users.AssertNotCalled(t, "SetSessionID", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestAuthService_Authenticate(t *testing.T) {
	user := activeUser(t, "clave-segura")
	user.SessionID = "current"

	token, err := auth.GenerateJWT("u1", user.Email, user.Roles, "current", testSecret, time.Hour)
	require.NoError(t, err)
	stale, err := auth.GenerateJWT("u1", user.Email, user.Roles, "previous", testSecret, time.Hour)
	require.NoError(t, err)

	users := new(MockUserService)
	users.On("FindByID", mock.Anything, "u1").Return(user, nil)
	svc := NewAuthService(users, testSecret, time.Hour)

	claims, got, err := svc.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, user, got)

	_, _, err = svc.Authenticate(context.Background(), stale)
	assert.ErrorIs(t, err, ErrSessionExpired)

	_, _, err = svc.Authenticate(context.Background(), "not-a-token")
	assert.Error(t, err)
}

func TestAuthService_AuthenticateDeletedUser(t *testing.T) {
	token, err := auth.GenerateJWT("u9", "", nil, "s", testSecret, time.Hour)
	require.NoError(t, err)

	users := new(MockUserService)
	users.On("FindByID", mock.Anything, "u9").Return(nil, ErrUserNotFound)

	_, _, err = NewAuthService(users, testSecret, time.Hour).Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, ErrSessionExpired)

	users2 := new(MockUserService)
	users2.On("FindByID", mock.Anything, "u9").Return(nil, errors.New("mongo down"))
	_, _, err = NewAuthService(users2, testSecret, time.Hour).Authenticate(context.Background(), token)
	assert.EqualError(t, err, "mongo down")
}

func TestAuthService_Logout(t *testing.T) {
	users := new(MockUserService)
	users.On("SetSessionID", mock.Anything, "u1", "").Return(nil).Once()

	require.NoError(t, NewAuthService(users, testSecret, time.Hour).Logout(context.Background(), "u1"))
	users.AssertExpectations(t)
}
