// Package mail abstracts the password-reset email side effect. The
// credential manager depends on the Mailer interface, not on the Resend
// client, so tests and development run with the no-op implementation.
package mail

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v3"
)

// Mailer delivers password-reset emails.
type Mailer interface {
	SendPasswordReset(ctx context.Context, toEmail, token string) error
}

// NoOp discards every email. Used in development and tests.
type NoOp struct{}

// SendPasswordReset does nothing.
func (NoOp) SendPasswordReset(context.Context, string, string) error { return nil }

// Resend sends reset emails through the Resend API.
type Resend struct {
	client *resend.Client
	from   string
	appURL string
}

// NewResend builds a Resend mailer. from must be an address under a
// domain verified in Resend; appURL is the public frontend URL the reset
// link points at.
func NewResend(apiKey, from, appURL string) *Resend {
	return &Resend{client: resend.NewClient(apiKey), from: from, appURL: appURL}
}

// SendPasswordReset emails a reset link carrying the plaintext token. The
// token is single-use and short-lived; only its row in Postgres decides
// validity.
func (r *Resend) SendPasswordReset(ctx context.Context, toEmail, token string) error {
	link := fmt.Sprintf("%s/reset-password?token=%s", r.appURL, token)
	html := fmt.Sprintf(`<p>Someone requested a password reset for this address.</p>
<p><a href=%q>Reset your password</a></p>
<p>If this wasn't you, ignore this email. The link expires shortly.</p>`, link)

	_, err := r.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    r.from,
		To:      []string{toEmail},
		Subject: "Reset your password",
		Html:    html,
	})
	if err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}
	return nil
}
