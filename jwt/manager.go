// Package jwt mints and verifies the short-lived session tokens. Tokens
// are HS256-signed capability caches over a server-side session; they are
// never the source of truth for revocation.
package jwt

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the payload carried by every session token.
type Claims struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	jwt.RegisteredClaims
}

// Manager signs and verifies session tokens with a shared HMAC secret.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

// NewManager validates the secret and token lifetime up front so a
// misconfigured process fails at startup, not on the first login.
func NewManager(secret []byte, ttl time.Duration) (*Manager, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt: signing secret required")
	}
	if ttl <= 0 {
		return nil, errors.New("jwt: token TTL must be positive")
	}
	return &Manager{secret: secret, ttl: ttl}, nil
}

// Sign mints a token bound to the given session with iat=now and
// exp=now+TTL.
func (m *Manager) Sign(sessionID, userID, email string) (string, error) {
	now := time.Now()
	claims := Claims{
		SessionID: sessionID,
		UserID:    userID,
		Email:     email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify checks the signature and expiry and returns the claims. Any
// failure (malformed, expired, bad signature, wrong algorithm) is an
// error; callers that need the "none" contract convert it themselves.
func (m *Manager) Verify(token string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	parsed, err := parser.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// DecodeUnverified extracts the session ID from a token's payload segment
// without checking the signature. This is not a trust decision — the
// result is only usable as a lookup key for the renewal path, which
// re-validates against the store. It tolerates malformed input and simply
// reports false.
func DecodeUnverified(token string) (string, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", false
	}

	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		// Some producers pad their segments.
		raw, err = base64.URLEncoding.DecodeString(parts[1])
		if err != nil {
			return "", false
		}
	}

	var payload struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", false
	}
	if payload.SessionID == "" {
		return "", false
	}
	return payload.SessionID, true
}
