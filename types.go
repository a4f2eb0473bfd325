package authcore

import (
	"context"
	"net/http"
	"time"
)

// SessionStatus is the lifecycle state of a server-side session. The
// active → revoked transition is monotonic and terminal.
type SessionStatus string

const (
	// SessionActive marks a session that is valid until its expiry.
	SessionActive SessionStatus = "active"
	// SessionRevoked marks a session that has been irreversibly revoked.
	SessionRevoked SessionStatus = "revoked"
)

// User is the identity record owned by the credential flows. It is created
// on registration and its password hash is replaced on reset; this
// subsystem never deletes users.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session is the authoritative record of an authenticated login. A bearer
// token only proves possession of a session ID for a bounded window; the
// row decides whether that session is still good.
type Session struct {
	ID         string
	UserID     string
	Status     SessionStatus
	CreatedAt  time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	DeviceID   string
	DeviceName string
}

// PasswordResetToken is a single-use, unguessable reset credential. UsedAt
// is set exactly once, inside the same transaction that replaces the
// user's password hash.
type PasswordResetToken struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// TokenPayload is the claim set carried by a session token and returned by
// session lookups.
type TokenPayload struct {
	SessionID string
	UserID    string
	Email     string
}

// DeviceMeta is optional device information recorded on session creation.
type DeviceMeta struct {
	DeviceID   string
	DeviceName string
}

// CookieConfig describes how the session cookie must be set by the route
// layer. Secure is false only in development.
type CookieConfig struct {
	Name     string
	HTTPOnly bool
	Secure   bool
	SameSite http.SameSite
	MaxAge   time.Duration
}

// UserStore is the persistent query surface for user records. Lookups
// return (nil, nil) when no row matches; errors are reserved for
// dependency failures.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
}

// SessionStore is the persistent query surface for session records.
type SessionStore interface {
	InsertSession(ctx context.Context, s *Session) error
	// GetSessionWithEmail joins the session against its user and returns
	// the row plus the user's email, or (nil, "", nil) when absent.
	GetSessionWithEmail(ctx context.Context, id string) (*Session, string, error)
	// RevokeSession flips an active session to revoked and reports whether
	// a row actually transitioned. Compare-and-set on status so concurrent
	// double-revocation is a harmless no-op.
	RevokeSession(ctx context.Context, id string) (bool, error)
	ActiveSessionIDs(ctx context.Context, userID string) ([]string, error)
	// RevokeSessionsByIDs bulk-revokes the given sessions scoped to the
	// user and returns the IDs that actually transitioned.
	RevokeSessionsByIDs(ctx context.Context, userID string, ids []string) ([]string, error)
}

// ResetTokenStore is the persistent query surface for password reset
// tokens.
type ResetTokenStore interface {
	InsertResetToken(ctx context.Context, t *PasswordResetToken) error
	GetResetToken(ctx context.Context, token string) (*PasswordResetToken, error)
	// ConsumeResetToken atomically replaces the user's password hash,
	// marks the token used, and revokes all of the user's active sessions
	// in one transaction. It returns the revoked session IDs so callers
	// can evict their cache entries, or ErrResetTokenConsumed when the
	// token was already spent.
	ConsumeResetToken(ctx context.Context, tokenID, userID, newHash string) ([]string, error)
}

// Store is the full persistent surface implemented by postgres.Store.
type Store interface {
	UserStore
	SessionStore
	ResetTokenStore
}
