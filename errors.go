package authcore

import (
	"errors"
	"net/http"
)

var (
	// ErrInvalidCredentials covers both an unknown email and a wrong
	// password. The two causes are deliberately indistinguishable to
	// prevent account enumeration.
	ErrInvalidCredentials = errors.New("authentication failed")
	// ErrUnauthorized is returned when a request carries no usable session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrEmailTaken is returned on registration with an existing email.
	ErrEmailTaken = errors.New("registration failed")
	// ErrSessionCreationFailed is the generic failure for the insert or
	// mint step of session creation.
	ErrSessionCreationFailed = errors.New("session creation failed")
	// ErrSessionRevocationFailed is the generic failure for revocation.
	ErrSessionRevocationFailed = errors.New("session revocation failed")
	// ErrResetTokenInvalid covers a missing, already-used, or expired
	// reset token. Three causes, one observable outcome.
	ErrResetTokenInvalid = errors.New("password reset failed")
	// ErrResetTokenConsumed is the store-level signal that a token's
	// used_at was already set. Managers translate it to
	// ErrResetTokenInvalid before it reaches a response.
	ErrResetTokenConsumed = errors.New("reset token already consumed")
	// ErrResetFailed is the generic failure for the reset transaction.
	ErrResetFailed = errors.New("password reset failed")
	// ErrRateLimited maps to 429.
	ErrRateLimited = errors.New("too many requests")
	// ErrDependency wraps store/cache/hasher failures. The underlying
	// error is logged at the manager boundary and never surfaced.
	ErrDependency = errors.New("internal error")
)

// StatusFor maps a manager error to the HTTP status the route layer must
// emit. Unknown errors are dependency failures and map to 500.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrEmailTaken), errors.Is(err, ErrResetTokenInvalid):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the generic client-facing message for an error.
// It never includes underlying exception text.
func PublicMessage(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return "Authentication failed"
	case errors.Is(err, ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, ErrEmailTaken):
		return "Registration failed"
	case errors.Is(err, ErrResetTokenInvalid), errors.Is(err, ErrResetFailed):
		return "Password reset failed"
	case errors.Is(err, ErrSessionCreationFailed):
		return "Session creation failed"
	case errors.Is(err, ErrSessionRevocationFailed):
		return "Session revocation failed"
	case errors.Is(err, ErrRateLimited):
		return "Too many requests"
	default:
		return "Internal server error"
	}
}
