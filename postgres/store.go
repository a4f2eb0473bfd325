// Package postgres implements the persistent store adapter over pgx. It
// is the authoritative source for users, sessions, and password reset
// tokens; the Redis projection in package cache is derived from it.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/taskwell/authcore"
)

// DB is the subset of *pgxpool.Pool the store uses. pgxmock satisfies it
// in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store is the pgx-backed implementation of authcore.Store.
type Store struct {
	db DB
}

// NewStore wraps a pgx pool (or mock) in the typed query surface.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// CreateUser inserts a new user row.
func (s *Store) CreateUser(ctx context.Context, u *authcore.User) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, first_name, last_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByEmail returns the user or (nil, nil) when no row matches.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*authcore.User, error) {
	return s.getUser(ctx, `
		SELECT id, email, password_hash, first_name, last_name, created_at, updated_at
		FROM users
		WHERE email = $1
	`, email)
}

// GetUserByID returns the user or (nil, nil) when no row matches.
func (s *Store) GetUserByID(ctx context.Context, id string) (*authcore.User, error) {
	return s.getUser(ctx, `
		SELECT id, email, password_hash, first_name, last_name, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id)
}

func (s *Store) getUser(ctx context.Context, query string, arg any) (*authcore.User, error) {
	var u authcore.User
	err := s.db.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// UpdatePasswordHash replaces a user's password hash.
func (s *Store) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = now()
		WHERE id = $1
	`, userID, hash)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return nil
}

// InsertSession inserts a new session row.
func (s *Store) InsertSession(ctx context.Context, sess *authcore.Session) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO sessions (id, user_id, status, created_at, expires_at, device_id, device_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, sess.ID, sess.UserID, string(sess.Status), sess.CreatedAt, sess.ExpiresAt, sess.DeviceID, sess.DeviceName)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSessionWithEmail returns the session joined with its user's email,
// or (nil, "", nil) when absent.
func (s *Store) GetSessionWithEmail(ctx context.Context, id string) (*authcore.Session, string, error) {
	var (
		sess   authcore.Session
		status string
		email  string
	)
	err := s.db.QueryRow(ctx, `
		SELECT s.id, s.user_id, s.status, s.created_at, s.expires_at, s.revoked_at,
		       s.device_id, s.device_name, u.email
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.id = $1
	`, id).Scan(
		&sess.ID, &sess.UserID, &status, &sess.CreatedAt, &sess.ExpiresAt, &sess.RevokedAt,
		&sess.DeviceID, &sess.DeviceName, &email,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("get session: %w", err)
	}
	sess.Status = authcore.SessionStatus(status)
	return &sess, email, nil
}

// RevokeSession flips an active session to revoked. The status predicate
// makes concurrent double-revocation a no-op rather than a race.
func (s *Store) RevokeSession(ctx context.Context, id string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE sessions SET status = 'revoked', revoked_at = now()
		WHERE id = $1 AND status = 'active'
	`, id)
	if err != nil {
		return false, fmt.Errorf("revoke session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ActiveSessionIDs lists the user's unexpired active sessions.
func (s *Store) ActiveSessionIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id FROM sessions
		WHERE user_id = $1 AND status = 'active' AND expires_at > now()
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	return ids, nil
}

// RevokeSessionsByIDs bulk-revokes the given sessions scoped to the user
// and returns the IDs that actually transitioned.
func (s *Store) RevokeSessionsByIDs(ctx context.Context, userID string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
		UPDATE sessions SET status = 'revoked', revoked_at = now()
		WHERE user_id = $1 AND status = 'active' AND id = ANY($2)
		RETURNING id
	`, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("bulk revoke sessions: %w", err)
	}
	defer rows.Close()

	var revoked []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan revoked id: %w", err)
		}
		revoked = append(revoked, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bulk revoke sessions: %w", err)
	}
	return revoked, nil
}

// InsertResetToken inserts a password reset token row.
func (s *Store) InsertResetToken(ctx context.Context, t *authcore.PasswordResetToken) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO password_reset_tokens (id, user_id, token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, t.ID, t.UserID, t.Token, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert reset token: %w", err)
	}
	return nil
}

// GetResetToken looks a token up by its opaque value, (nil, nil) when
// absent.
func (s *Store) GetResetToken(ctx context.Context, token string) (*authcore.PasswordResetToken, error) {
	var t authcore.PasswordResetToken
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, token, expires_at, used_at, created_at
		FROM password_reset_tokens
		WHERE token = $1
	`, token).Scan(&t.ID, &t.UserID, &t.Token, &t.ExpiresAt, &t.UsedAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get reset token: %w", err)
	}
	return &t, nil
}

// ConsumeResetToken performs the reset transaction: replace the password
// hash, mark the token used (exactly once), and revoke every active
// session. A crash cannot leave a usable token alongside a changed
// password or vice versa. Returns the revoked session IDs for cache
// eviction.
func (s *Store) ConsumeResetToken(ctx context.Context, tokenID, userID, newHash string) ([]string, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin reset tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = now()
		WHERE id = $1
	`, userID, newHash); err != nil {
		return nil, fmt.Errorf("reset password hash: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE password_reset_tokens SET used_at = now()
		WHERE id = $1 AND used_at IS NULL
	`, tokenID)
	if err != nil {
		return nil, fmt.Errorf("consume reset token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, authcore.ErrResetTokenConsumed
	}

	rows, err := tx.Query(ctx, `
		UPDATE sessions SET status = 'revoked', revoked_at = now()
		WHERE user_id = $1 AND status = 'active'
		RETURNING id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("revoke sessions on reset: %w", err)
	}

	var revoked []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan revoked id: %w", err)
		}
		revoked = append(revoked, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("revoke sessions on reset: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reset tx: %w", err)
	}
	return revoked, nil
}

// Ping is a startup sanity probe.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

var _ authcore.Store = (*Store)(nil)
