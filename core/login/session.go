package login

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionClaims is the data stored in a session token.
type SessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// SessionTokens issues and verifies HS256 session tokens whose subject is
// the local user name.
type SessionTokens struct {
	method jwt.SigningMethod
	key    []byte
	expiry time.Duration
	now    func() time.Time
}

// NewSessionTokens creates an HS256 token issuer.
func NewSessionTokens(secret string, expiry time.Duration) *SessionTokens {
	return &SessionTokens{
		method: jwt.SigningMethodHS256,
		key:    []byte(secret),
		expiry: expiry,
		now:    time.Now,
	}
}

// Issue returns a signed token for username.
func (s *SessionTokens) Issue(username string) (string, error) {
	now := s.now()
	claims := SessionClaims{
		SessionID: uuid.New().String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(s.method, claims).SignedString(s.key)
}

// Verify checks the token and returns the user name it was issued for.
func (s *SessionTokens) Verify(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != s.method.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.key, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}

	claims, ok := parsed.Claims.(*SessionClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return "", errors.New("invalid token")
	}
	return claims.Subject, nil
}
