package authcore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/taskwell/authcore/mail"
	"github.com/taskwell/authcore/password"
)

// Credentials owns registration, login, and the password reset flow. It
// composes the persistent store, the credential hasher, the session
// manager, and the reset mailer.
type Credentials struct {
	users    UserStore
	resets   ResetTokenStore
	hasher   password.Hasher
	sessions *Sessions
	mailer   mail.Mailer
	resetTTL time.Duration
	log      *slog.Logger
}

// NewCredentials wires the credential manager.
func NewCredentials(users UserStore, resets ResetTokenStore, hasher password.Hasher, sessions *Sessions, mailer mail.Mailer, resetTTL time.Duration, log *slog.Logger) *Credentials {
	if log == nil {
		log = slog.Default()
	}
	if mailer == nil {
		mailer = mail.NoOp{}
	}
	return &Credentials{
		users:    users,
		resets:   resets,
		hasher:   hasher,
		sessions: sessions,
		mailer:   mailer,
		resetTTL: resetTTL,
		log:      log,
	}
}

// Register creates a user and logs them in, returning the session token.
// A duplicate email fails with the same generic message as any other
// registration failure so existing accounts are never confirmed. The
// existence check is best-effort, not a unique-constraint race guard.
func (c *Credentials) Register(ctx context.Context, email, plainPassword string, device *DeviceMeta) (string, error) {
	existing, err := c.users.GetUserByEmail(ctx, email)
	if err != nil {
		c.log.Error("registration lookup failed", "error", err)
		return "", ErrDependency
	}
	if existing != nil {
		return "", ErrEmailTaken
	}

	hash, err := c.hasher.Hash(plainPassword)
	if err != nil {
		c.log.Error("password hashing failed", "error", err)
		return "", ErrDependency
	}

	now := time.Now()
	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := c.users.CreateUser(ctx, user); err != nil {
		c.log.Error("user insert failed", "error", err)
		return "", ErrDependency
	}

	token, err := c.sessions.Create(ctx, user.ID, user.Email, device)
	if err != nil {
		// Session creation failure never reveals which step broke.
		return "", ErrSessionCreationFailed
	}
	return token, nil
}

// Login authenticates by email and password. A missing user and a hash
// mismatch produce the identical ErrInvalidCredentials — the
// indistinguishability is a deliberate anti-enumeration contract.
func (c *Credentials) Login(ctx context.Context, email, plainPassword string, device *DeviceMeta) (string, error) {
	user, err := c.users.GetUserByEmail(ctx, email)
	if err != nil {
		c.log.Error("login lookup failed", "error", err)
		return "", ErrDependency
	}
	if user == nil {
		return "", ErrInvalidCredentials
	}

	ok, err := c.hasher.Verify(plainPassword, user.PasswordHash)
	if err != nil {
		c.log.Error("password verification failed", "error", err)
		return "", ErrDependency
	}
	if !ok {
		return "", ErrInvalidCredentials
	}

	token, err := c.sessions.Create(ctx, user.ID, user.Email, device)
	if err != nil {
		return "", ErrSessionCreationFailed
	}
	return token, nil
}

// ForgotPassword always reports success, whether or not the email exists.
// When the user exists it stores a random single-use token and sends the
// reset email; a send failure is logged but still reported as success so
// the response stays deterministic.
func (c *Credentials) ForgotPassword(ctx context.Context, email string) error {
	user, err := c.users.GetUserByEmail(ctx, email)
	if err != nil {
		c.log.Error("forgot-password lookup failed", "error", err)
		return nil
	}
	if user == nil {
		return nil
	}

	token, err := randomToken()
	if err != nil {
		c.log.Error("reset token generation failed", "error", err)
		return nil
	}

	now := time.Now()
	record := &PasswordResetToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Token:     token,
		ExpiresAt: now.Add(c.resetTTL),
		CreatedAt: now,
	}
	if err := c.resets.InsertResetToken(ctx, record); err != nil {
		c.log.Error("reset token insert failed", "error", err)
		return nil
	}

	if err := c.mailer.SendPasswordReset(ctx, user.Email, token); err != nil {
		c.log.Error("reset email send failed", "error", err)
	}
	return nil
}

// ResetPassword consumes a reset token: inside one transaction the user's
// password hash is replaced, the token is marked used, and all standing
// sessions are revoked. A missing, already-used, or expired token fails
// with one generic error.
func (c *Credentials) ResetPassword(ctx context.Context, token, newPassword string) error {
	record, err := c.resets.GetResetToken(ctx, token)
	if err != nil {
		c.log.Error("reset token lookup failed", "error", err)
		return ErrResetFailed
	}
	if record == nil || record.UsedAt != nil || !record.ExpiresAt.After(time.Now()) {
		return ErrResetTokenInvalid
	}

	hash, err := c.hasher.Hash(newPassword)
	if err != nil {
		c.log.Error("password hashing failed", "error", err)
		return ErrResetFailed
	}

	revoked, err := c.resets.ConsumeResetToken(ctx, record.ID, record.UserID, hash)
	if err != nil {
		if errors.Is(err, ErrResetTokenConsumed) {
			return ErrResetTokenInvalid
		}
		c.log.Error("reset transaction failed", "error", err)
		return ErrResetFailed
	}

	c.sessions.evict(ctx, revoked...)
	return nil
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
