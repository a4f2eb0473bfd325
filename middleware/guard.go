// Package middleware holds the per-request gates: the auth gate with
// transparent token renewal, its unauthenticated-only inverse, and the
// rate-limit gate. Every failure path rejects with 401 or 429 — the gates
// fail closed.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/taskwell/authcore"
	"github.com/taskwell/authcore/jwt"
)

// Identity is the authenticated principal attached to the request
// context.
type Identity struct {
	UserID    string
	SessionID string
	Email     string
}

type identityContextKey struct{}

// IdentityFromContext returns the identity attached by Guard.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*Identity)
	return id, ok
}

// SessionService is the slice of the session manager the gates consume.
type SessionService interface {
	VerifyToken(token string) *authcore.TokenPayload
	FindByID(ctx context.Context, sessionID string) (*authcore.TokenPayload, error)
	GenerateToken(p authcore.TokenPayload) (string, error)
	CookieConfig() authcore.CookieConfig
}

// Guard authenticates every request, renewing expired tokens against the
// session store without forcing re-login:
//
//  1. no token → 401
//  2. token verifies → attach identity, proceed
//  3. otherwise decode the payload segment defensively for a session ID
//     (a lookup key, not a trust decision) → no ID → 401
//  4. session found active in store/cache → mint a fresh token, set it as
//     the response cookie, attach identity, proceed; anything else → 401
func Guard(sessions SessionService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cfg := sessions.CookieConfig()

			token, ok := requestToken(r, cfg.Name)
			if !ok {
				reject(w)
				return
			}

			if p := sessions.VerifyToken(token); p != nil {
				next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), p)))
				return
			}

			sessionID, ok := jwt.DecodeUnverified(token)
			if !ok {
				reject(w)
				return
			}

			p, err := sessions.FindByID(r.Context(), sessionID)
			if err != nil || p == nil {
				reject(w)
				return
			}

			renewed, err := sessions.GenerateToken(*p)
			if err != nil {
				reject(w)
				return
			}
			SetSessionCookie(w, cfg, renewed)

			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), p)))
		})
	}
}

// RequireAnonymous is the inverse gate: the mere presence of a session
// cookie rejects the request. It blocks re-registration and re-login
// while already authenticated.
func RequireAnonymous(sessions SessionService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cookie, err := r.Cookie(sessions.CookieConfig().Name); err == nil && cookie.Value != "" {
				reject(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SetSessionCookie writes the session cookie with the configured
// attributes.
func SetSessionCookie(w http.ResponseWriter, cfg authcore.CookieConfig, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.Name,
		Value:    token,
		Path:     "/",
		HttpOnly: cfg.HTTPOnly,
		Secure:   cfg.Secure,
		SameSite: cfg.SameSite,
		MaxAge:   int(cfg.MaxAge.Seconds()),
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter, cfg authcore.CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.Name,
		Value:    "",
		Path:     "/",
		HttpOnly: cfg.HTTPOnly,
		Secure:   cfg.Secure,
		SameSite: cfg.SameSite,
		MaxAge:   -1,
	})
}

func withIdentity(ctx context.Context, p *authcore.TokenPayload) context.Context {
	return context.WithValue(ctx, identityContextKey{}, &Identity{
		UserID:    p.UserID,
		SessionID: p.SessionID,
		Email:     p.Email,
	})
}

func requestToken(r *http.Request, cookieName string) (string, bool) {
	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	return bearerToken(r.Header.Get("Authorization"))
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}
	token := value[len(bearer):]
	if token == "" {
		return "", false
	}
	return token, true
}

func reject(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"Unauthorized"}`))
}
