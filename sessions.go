package authcore

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/taskwell/authcore/cache"
	"github.com/taskwell/authcore/jwt"
)

// Sessions owns the session lifecycle: create, find, verify, revoke, and
// token mint. It composes the persistent store (authoritative) with the
// Redis projection (derived) in a cache-aside arrangement.
type Sessions struct {
	store  SessionStore
	cache  *cache.Sessions
	tokens *jwt.Manager
	cfg    SessionConfig
	env    string
	log    *slog.Logger
}

// NewSessions wires the session manager. The jwt manager's TTL is
// expected to equal cfg.TTL; Config.Validate has already guaranteed
// cfg.CacheTTL >= cfg.TTL, so the cache can never be the earlier expiry
// source.
func NewSessions(store SessionStore, projections *cache.Sessions, tokens *jwt.Manager, cfg SessionConfig, env string, log *slog.Logger) *Sessions {
	if log == nil {
		log = slog.Default()
	}
	return &Sessions{store: store, cache: projections, tokens: tokens, cfg: cfg, env: env, log: log}
}

// VerifyToken cryptographically verifies a session token and returns its
// payload, or nil on any failure: malformed, expired, bad signature. It
// never returns an error — an unverifiable token and an absent token are
// the same thing to callers.
func (s *Sessions) VerifyToken(token string) *TokenPayload {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil
	}
	return &TokenPayload{SessionID: claims.SessionID, UserID: claims.UserID, Email: claims.Email}
}

// GenerateToken signs a fresh token for the payload with exp = now + TTL.
func (s *Sessions) GenerateToken(p TokenPayload) (string, error) {
	return s.tokens.Sign(p.SessionID, p.UserID, p.Email)
}

// Create inserts a new active session, writes its cache projection, and
// mints a token bound to the session ID. A failed cache write is logged
// and tolerated — the orphan self-expires and every read re-validates
// against the store. Insert or mint failure collapses to one generic
// error.
func (s *Sessions) Create(ctx context.Context, userID, email string, device *DeviceMeta) (string, error) {
	now := time.Now()
	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    SessionActive,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TTL),
	}
	if device != nil {
		sess.DeviceID = device.DeviceID
		sess.DeviceName = device.DeviceName
	}

	if err := s.store.InsertSession(ctx, sess); err != nil {
		s.log.Error("session insert failed", "error", err)
		return "", fmt.Errorf("%w: %w", ErrSessionCreationFailed, ErrDependency)
	}

	if err := s.cache.Set(ctx, sess.ID, projectionOf(sess, email), s.cfg.CacheTTL); err != nil {
		s.log.Warn("session cache write failed", "session_id", sess.ID, "error", err)
	}

	token, err := s.tokens.Sign(sess.ID, userID, email)
	if err != nil {
		s.log.Error("session token mint failed", "session_id", sess.ID, "error", err)
		return "", fmt.Errorf("%w: %w", ErrSessionCreationFailed, ErrDependency)
	}
	return token, nil
}

// FindByID is the cache-aside read. A cache hit whose projected status is
// active and whose projected expiry is still in the future is served
// without touching the store; otherwise the store is queried and, on
// success, the projection is repopulated before returning. Returns
// (nil, nil) for a missing, revoked, or expired session.
func (s *Sessions) FindByID(ctx context.Context, sessionID string) (*TokenPayload, error) {
	entry, err := s.cache.Get(ctx, sessionID)
	if err != nil {
		// Degrade to the store rather than failing the request.
		s.log.Warn("session cache read failed", "session_id", sessionID, "error", err)
	}
	if entry != nil && entry.Status == string(SessionActive) && entry.ExpiresAt.After(time.Now()) {
		return &TokenPayload{SessionID: sessionID, UserID: entry.UserID, Email: entry.Email}, nil
	}

	sess, email, err := s.store.GetSessionWithEmail(ctx, sessionID)
	if err != nil {
		s.log.Error("session lookup failed", "session_id", sessionID, "error", err)
		return nil, ErrDependency
	}
	if sess == nil || sess.Status != SessionActive || !sess.ExpiresAt.After(time.Now()) {
		return nil, nil
	}

	if err := s.cache.Set(ctx, sess.ID, projectionOf(sess, email), s.cfg.CacheTTL); err != nil {
		s.log.Warn("session cache repopulate failed", "session_id", sess.ID, "error", err)
	}
	return &TokenPayload{SessionID: sess.ID, UserID: sess.UserID, Email: email}, nil
}

// Revoke transitions one session to revoked and evicts its projection.
// Returns false when the session was already revoked or never existed.
func (s *Sessions) Revoke(ctx context.Context, sessionID string) (bool, error) {
	transitioned, err := s.store.RevokeSession(ctx, sessionID)
	if err != nil {
		s.log.Error("session revoke failed", "session_id", sessionID, "error", err)
		return false, fmt.Errorf("%w: %w", ErrSessionRevocationFailed, ErrDependency)
	}
	s.evict(ctx, sessionID)
	return transitioned, nil
}

// RevokeAllUserSessions revokes every active session of the user. An
// empty candidate set is a no-op success; calling it twice succeeds both
// times.
func (s *Sessions) RevokeAllUserSessions(ctx context.Context, userID string) error {
	_, err := s.revokeSelected(ctx, userID, nil, "")
	return err
}

// RevokeUserOtherSessions revokes every active session of the user except
// the given one.
func (s *Sessions) RevokeUserOtherSessions(ctx context.Context, userID, exceptID string) error {
	_, err := s.revokeSelected(ctx, userID, nil, exceptID)
	return err
}

// RevokeSessionsByIDs revokes the requested sessions (scoped to the user)
// and reports whether the caller's current session was among the ones
// actually revoked, so the route layer can decide whether to clear the
// cookie.
func (s *Sessions) RevokeSessionsByIDs(ctx context.Context, userID, currentID string, ids []string) (bool, error) {
	// An empty selection is a no-op success, never select-all.
	if len(ids) == 0 {
		return false, nil
	}
	revoked, err := s.revokeSelected(ctx, userID, ids, "")
	if err != nil {
		return false, err
	}
	for _, id := range revoked {
		if id == currentID {
			return true, nil
		}
	}
	return false, nil
}

// revokeSelected selects the affected active session IDs (optionally
// restricted to `only`, optionally excluding `except`), bulk-revokes
// them, then bulk-evicts their projections.
func (s *Sessions) revokeSelected(ctx context.Context, userID string, only []string, except string) ([]string, error) {
	active, err := s.store.ActiveSessionIDs(ctx, userID)
	if err != nil {
		s.log.Error("active session listing failed", "user_id", userID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrSessionRevocationFailed, ErrDependency)
	}

	candidates := filterSessionIDs(active, only, except)
	if len(candidates) == 0 {
		return nil, nil
	}

	revoked, err := s.store.RevokeSessionsByIDs(ctx, userID, candidates)
	if err != nil {
		s.log.Error("bulk session revoke failed", "user_id", userID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrSessionRevocationFailed, ErrDependency)
	}
	s.evict(ctx, revoked...)
	return revoked, nil
}

// evict deletes cache projections; failures are logged, never fatal,
// because the entries self-expire and reads re-validate.
func (s *Sessions) evict(ctx context.Context, sessionIDs ...string) {
	if len(sessionIDs) == 0 {
		return
	}
	if err := s.cache.Delete(ctx, sessionIDs...); err != nil {
		s.log.Warn("session cache eviction failed", "count", len(sessionIDs), "error", err)
	}
}

// CookieConfig returns the attributes the route layer must set on the
// session cookie. Secure everywhere except development.
func (s *Sessions) CookieConfig() CookieConfig {
	return CookieConfig{
		Name:     s.cfg.CookieName,
		HTTPOnly: true,
		Secure:   s.env != EnvDevelopment,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   s.cfg.TTL + s.cfg.CookieSkew,
	}
}

func projectionOf(sess *Session, email string) *cache.Entry {
	return &cache.Entry{
		UserID:     sess.UserID,
		Email:      email,
		Status:     string(sess.Status),
		ExpiresAt:  sess.ExpiresAt,
		DeviceID:   sess.DeviceID,
		DeviceName: sess.DeviceName,
	}
}

func filterSessionIDs(active, only []string, except string) []string {
	var allow map[string]bool
	if only != nil {
		allow = make(map[string]bool, len(only))
		for _, id := range only {
			allow[id] = true
		}
	}

	out := make([]string, 0, len(active))
	for _, id := range active {
		if id == except {
			continue
		}
		if allow != nil && !allow[id] {
			continue
		}
		out = append(out, id)
	}
	return out
}
