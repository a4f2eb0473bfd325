package middleware

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/taskwell/authcore"
)

// fakeSessions scripts the session manager surface the gates consume.
type fakeSessions struct {
	verify  map[string]*authcore.TokenPayload
	byID    map[string]*authcore.TokenPayload
	findErr error
	minted  string
	mintErr error
}

func (f *fakeSessions) VerifyToken(token string) *authcore.TokenPayload {
	return f.verify[token]
}

func (f *fakeSessions) FindByID(_ context.Context, sessionID string) (*authcore.TokenPayload, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.byID[sessionID], nil
}

func (f *fakeSessions) GenerateToken(authcore.TokenPayload) (string, error) {
	if f.mintErr != nil {
		return "", f.mintErr
	}
	return f.minted, nil
}

func (f *fakeSessions) CookieConfig() authcore.CookieConfig {
	return authcore.CookieConfig{
		Name:     "session",
		HTTPOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   31 * time.Minute,
	}
}

// tokenWithSessionID builds a structurally valid but unsigned token whose
// payload segment carries the given session ID.
func tokenWithSessionID(sid string) string {
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sessionId":"` + sid + `"}`))
	return "hdr." + payload + ".sig"
}

func identityHandler(t *testing.T, want *Identity) (http.Handler, *bool) {
	t.Helper()
	called := false
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Error("no identity in context")
			return
		}
		if want != nil && *id != *want {
			t.Errorf("identity = %+v, want %+v", id, want)
		}
		w.WriteHeader(http.StatusOK)
	}), &called
}

func TestGuardRejectsWithoutToken(t *testing.T) {
	handler, called := identityHandler(t, nil)
	rec := httptest.NewRecorder()
	Guard(&fakeSessions{})(handler).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/logout", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if *called {
		t.Fatal("handler reached without a token")
	}
}

func TestGuardPassesVerifiedToken(t *testing.T) {
	p := &authcore.TokenPayload{SessionID: "sid-1", UserID: "u1", Email: "alice@example.com"}
	sessions := &fakeSessions{verify: map[string]*authcore.TokenPayload{"good": p}}

	handler, called := identityHandler(t, &Identity{UserID: "u1", SessionID: "sid-1", Email: "alice@example.com"})
	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "good"})

	rec := httptest.NewRecorder()
	Guard(sessions)(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || !*called {
		t.Fatalf("status = %d, called = %v", rec.Code, *called)
	}
	// No renewal on the happy path.
	if len(rec.Result().Cookies()) != 0 {
		t.Fatal("unexpected Set-Cookie on verified token")
	}
}

func TestGuardAcceptsBearerToken(t *testing.T) {
	p := &authcore.TokenPayload{SessionID: "sid-1", UserID: "u1", Email: "alice@example.com"}
	sessions := &fakeSessions{verify: map[string]*authcore.TokenPayload{"good": p}}

	handler, called := identityHandler(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.Header.Set("Authorization", "Bearer good")

	rec := httptest.NewRecorder()
	Guard(sessions)(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || !*called {
		t.Fatalf("status = %d, called = %v", rec.Code, *called)
	}
}

func TestGuardRenewsExpiredTokenAgainstActiveSession(t *testing.T) {
	p := &authcore.TokenPayload{SessionID: "sid-1", UserID: "u1", Email: "alice@example.com"}
	sessions := &fakeSessions{
		byID:   map[string]*authcore.TokenPayload{"sid-1": p},
		minted: "renewed-token",
	}

	handler, called := identityHandler(t, &Identity{UserID: "u1", SessionID: "sid-1", Email: "alice@example.com"})
	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: tokenWithSessionID("sid-1")})

	rec := httptest.NewRecorder()
	Guard(sessions)(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || !*called {
		t.Fatalf("status = %d, called = %v", rec.Code, *called)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "session" || cookies[0].Value != "renewed-token" {
		t.Fatalf("expected renewed session cookie, got %+v", cookies)
	}
	if !cookies[0].HttpOnly {
		t.Fatal("renewed cookie lost HttpOnly")
	}
}

func TestGuardRejectsRevokedSession(t *testing.T) {
	// DecodeUnverified succeeds but the session no longer resolves.
	sessions := &fakeSessions{minted: "never-used"}

	handler, called := identityHandler(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: tokenWithSessionID("sid-gone")})

	rec := httptest.NewRecorder()
	Guard(sessions)(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if *called {
		t.Fatal("handler reached with a revoked session")
	}
}

func TestGuardFailsClosedOnLookupError(t *testing.T) {
	sessions := &fakeSessions{findErr: errors.New("store down")}

	handler, called := identityHandler(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: tokenWithSessionID("sid-1")})

	rec := httptest.NewRecorder()
	Guard(sessions)(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized || *called {
		t.Fatalf("expected closed gate, status = %d called = %v", rec.Code, *called)
	}
}

func TestGuardRejectsUndecodableToken(t *testing.T) {
	handler, called := identityHandler(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "not-a-jwt"})

	rec := httptest.NewRecorder()
	Guard(&fakeSessions{})(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized || *called {
		t.Fatalf("expected rejection, status = %d called = %v", rec.Code, *called)
	}
}

func TestRequireAnonymous(t *testing.T) {
	sessions := &fakeSessions{}
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	gate := RequireAnonymous(sessions)(next)

	rec := httptest.NewRecorder()
	gate.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("anonymous request blocked: %d", rec.Code)
	}

	// Presence of the cookie is enough to reject; it is never validated.
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "anything"})
	rec = httptest.NewRecorder()
	gate.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("cookie-bearing request passed: %d", rec.Code)
	}
}

func TestClearSessionCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	ClearSessionCookie(rec, (&fakeSessions{}).CookieConfig())

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	if cookies[0].Value != "" || cookies[0].MaxAge >= 0 {
		t.Fatalf("cookie not cleared: %+v", cookies[0])
	}
}
