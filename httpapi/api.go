// Package httpapi exposes the auth subsystem over HTTP: register, login,
// logout (current/others/all/byIds), forgot-password, and reset-password.
// Handlers translate manager errors through the shared taxonomy; no
// underlying error text ever reaches a response.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/taskwell/authcore"
	"github.com/taskwell/authcore/middleware"
	"github.com/taskwell/authcore/ratelimit"
)

// API bundles the managers behind the route handlers.
type API struct {
	creds    *authcore.Credentials
	sessions *authcore.Sessions
	limiter  ratelimit.Limiter
	log      *slog.Logger
}

// New builds the route layer.
func New(creds *authcore.Credentials, sessions *authcore.Sessions, limiter ratelimit.Limiter, log *slog.Logger) *API {
	if log == nil {
		log = slog.Default()
	}
	return &API{creds: creds, sessions: sessions, limiter: limiter, log: log}
}

// Routes mounts every endpoint. The sensitive anonymous endpoints sit
// behind the rate-limit gate and the unauthenticated-only gate; logout
// sits behind the auth gate.
func (a *API) Routes() http.Handler {
	mux := http.NewServeMux()

	throttled := middleware.RateLimit(a.limiter)
	anonymous := middleware.RequireAnonymous(a.sessions)
	guarded := middleware.Guard(a.sessions)

	mux.Handle("POST /register", throttled(anonymous(http.HandlerFunc(a.handleRegister))))
	mux.Handle("POST /login", throttled(anonymous(http.HandlerFunc(a.handleLogin))))
	mux.Handle("POST /logout", guarded(http.HandlerFunc(a.handleLogout)))
	mux.Handle("POST /forgot-password", throttled(http.HandlerFunc(a.handleForgotPassword)))
	mux.Handle("POST /reset-password", throttled(http.HandlerFunc(a.handleResetPassword)))

	return mux
}

type credentialsRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if fields := validateCredentials(req.Email, req.Password); len(fields) > 0 {
		writeValidationError(w, fields)
		return
	}

	token, err := a.creds.Register(r.Context(), strings.ToLower(req.Email), req.Password, deviceMeta(req))
	if err != nil {
		a.writeError(w, err)
		return
	}
	middleware.SetSessionCookie(w, a.sessions.CookieConfig(), token)
	writeJSON(w, http.StatusCreated, map[string]any{"success": true})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if fields := validateCredentials(req.Email, req.Password); len(fields) > 0 {
		writeValidationError(w, fields)
		return
	}

	token, err := a.creds.Login(r.Context(), strings.ToLower(req.Email), req.Password, deviceMeta(req))
	if err != nil {
		a.writeError(w, err)
		return
	}
	middleware.SetSessionCookie(w, a.sessions.CookieConfig(), token)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type logoutRequest struct {
	Mode       string   `json:"mode"`
	SessionIDs []string `json:"sessionIds"`
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		a.writeError(w, authcore.ErrUnauthorized)
		return
	}

	req := logoutRequest{Mode: "current"}
	if r.Body != nil && r.ContentLength != 0 {
		if !decodeBody(w, r, &req) {
			return
		}
	}

	switch req.Mode {
	case "current":
		if _, err := a.sessions.Revoke(r.Context(), identity.SessionID); err != nil {
			a.writeError(w, err)
			return
		}
		middleware.ClearSessionCookie(w, a.sessions.CookieConfig())
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	case "others":
		if err := a.sessions.RevokeUserOtherSessions(r.Context(), identity.UserID, identity.SessionID); err != nil {
			a.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	case "all":
		if err := a.sessions.RevokeAllUserSessions(r.Context(), identity.UserID); err != nil {
			a.writeError(w, err)
			return
		}
		middleware.ClearSessionCookie(w, a.sessions.CookieConfig())
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	case "byIds":
		if len(req.SessionIDs) == 0 {
			writeValidationError(w, map[string]string{"sessionIds": "required for byIds"})
			return
		}
		revokedCurrent, err := a.sessions.RevokeSessionsByIDs(r.Context(), identity.UserID, identity.SessionID, req.SessionIDs)
		if err != nil {
			a.writeError(w, err)
			return
		}
		if revokedCurrent {
			middleware.ClearSessionCookie(w, a.sessions.CookieConfig())
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":               true,
			"revokedCurrentSession": revokedCurrent,
		})

	default:
		writeValidationError(w, map[string]string{"mode": "must be current, others, all, or byIds"})
	}
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !validEmail(req.Email) {
		writeValidationError(w, map[string]string{"email": "valid email required"})
		return
	}

	// Deliberately identical response whether or not the account exists.
	_ = a.creds.ForgotPassword(r.Context(), strings.ToLower(req.Email))
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	fields := map[string]string{}
	if req.Token == "" {
		fields["token"] = "required"
	}
	if len(req.NewPassword) < 8 {
		fields["newPassword"] = "must be at least 8 characters"
	}
	if len(fields) > 0 {
		writeValidationError(w, fields)
		return
	}

	if err := a.creds.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func deviceMeta(req credentialsRequest) *authcore.DeviceMeta {
	if req.DeviceID == "" && req.DeviceName == "" {
		return nil
	}
	return &authcore.DeviceMeta{DeviceID: req.DeviceID, DeviceName: req.DeviceName}
}

func validateCredentials(email, pw string) map[string]string {
	fields := map[string]string{}
	if !validEmail(email) {
		fields["email"] = "valid email required"
	}
	if len(pw) < 8 {
		fields["password"] = "must be at least 8 characters"
	}
	return fields
}

func validEmail(email string) bool {
	at := strings.Index(email, "@")
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t")
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeValidationError(w, map[string]string{"body": "malformed JSON"})
		return false
	}
	return true
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	status := authcore.StatusFor(err)
	if status >= http.StatusInternalServerError {
		a.log.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]any{"error": authcore.PublicMessage(err)})
}

func writeValidationError(w http.ResponseWriter, fields map[string]string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":  "Validation failed",
		"fields": fields,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
