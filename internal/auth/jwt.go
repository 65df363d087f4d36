package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	sessionIssuer  = "segirec"
	priorityIssuer = "segirec-priority"
)

var ErrWrongTokenKind = errors.New("token was not issued for this purpose")

// Claims is the session token payload.
type Claims struct {
	UserID    string   `json:"user_id"`
	Email     string   `json:"email"`
	Roles     []string `json:"roles"`
	SessionID string   `json:"session_id"`
	jwt.RegisteredClaims
}

// Grants are the options a priority token unlocks for one run.
type Grants struct {
	PriorityAccess bool `json:"priority_access"`
	SendWhatsApp   bool `json:"send_whatsapp"`
}

// PriorityClaims is the priority token payload. It is bound to the user who
// confirmed the code.
type PriorityClaims struct {
	UserID string `json:"user_id"`
	Grants
	jwt.RegisteredClaims
}

// GenerateJWT signs a session token.
func GenerateJWT(userID, email string, roles []string, sessionID, secretKey string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:    userID,
		Email:     email,
		Roles:     roles,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    sessionIssuer,
			Subject:   userID,
		},
	}
	return sign(claims, secretKey)
}

// ValidateJWT verifies a session token and returns its claims.
func ValidateJWT(tokenString, secretKey string) (*Claims, error) {
	claims := &Claims{}
	if err := parse(tokenString, claims, secretKey); err != nil {
		return nil, err
	}
	if claims.Issuer != sessionIssuer {
		return nil, ErrWrongTokenKind
	}
	return claims, nil
}

// GeneratePriorityToken signs a short-lived token carrying grants for userID.
func GeneratePriorityToken(userID string, grants Grants, secretKey string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &PriorityClaims{
		UserID: userID,
		Grants: grants,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    priorityIssuer,
			Subject:   userID,
		},
	}
	return sign(claims, secretKey)
}

// VerifyPriorityToken returns the grants of a valid token issued to userID.
// A missing, expired, forged or foreign token yields no grants and an error
// describing why.
func VerifyPriorityToken(tokenString, userID, secretKey string) (Grants, error) {
	if tokenString == "" {
		return Grants{}, nil
	}
	claims := &PriorityClaims{}
	if err := parse(tokenString, claims, secretKey); err != nil {
		return Grants{}, err
	}
	if claims.Issuer != priorityIssuer {
		return Grants{}, ErrWrongTokenKind
	}
	if claims.UserID != userID {
		return Grants{}, fmt.Errorf("priority token belongs to another user")
	}
	return claims.Grants, nil
}

func sign(claims jwt.Claims, secretKey string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}
	return tokenString, nil
}

func parse(tokenString string, claims jwt.Claims, secretKey string) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secretKey), nil
	})
	if err != nil {
		return fmt.Errorf("failed to parse JWT: %w", err)
	}
	if !token.Valid {
		return fmt.Errorf("invalid JWT")
	}
	return nil
}
