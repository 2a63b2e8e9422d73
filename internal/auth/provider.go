// Package auth defines the authentication provider boundary.
//
// The provider itself is an external collaborator (a GoTrue-style auth
// API); this package holds the interface the session store consumes, the
// identity value it hands out, and the error taxonomy surfaced to users.
package auth

import (
	"context"
	"errors"
	"strings"
)

// Identity is the authenticated user's stable reference for the session.
// Exactly one or zero live Identity exists per session.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Event classifies an identity-change notification from the provider.
type Event string

const (
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
)

// Provider is the auth service boundary. Implementations may emit
// identity-change events asynchronously and multiple times (token refresh,
// sign-out, sign-in from another tab); every event fully replaces the
// current identity downstream.
type Provider interface {
	// GetCurrentSession resolves an existing session. A nil Identity with a
	// nil error means "no session" — a valid outcome, not a failure.
	GetCurrentSession(ctx context.Context) (*Identity, error)

	// OnIdentityChange registers a listener for identity-change events and
	// returns an unsubscribe func. The identity is nil on sign-out.
	OnIdentityChange(fn func(event Event, identity *Identity)) (unsubscribe func())

	// SignOut terminates the provider-side session. Callers clear local
	// state regardless of the returned error.
	SignOut(ctx context.Context) error

	SignInWithPassword(ctx context.Context, email, password string) (*Identity, error)
	SignUp(ctx context.Context, email, password, redirectTo string) (*Identity, error)
}

// ─── Error kinds ──────────────────────────────────────────────────────────

// Known provider error kinds surfaced to the user.
var (
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrRateLimited        = errors.New("rate limited")
	ErrAlreadyRegistered  = errors.New("user already registered")
)

// UserMessage maps a provider error to the text shown to the user. Known
// kinds get friendlier wording; anything unrecognised is surfaced verbatim.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "Incorrect email or password. Please try again."
	case errors.Is(err, ErrRateLimited):
		return "Too many attempts. Please wait a moment and try again."
	case errors.Is(err, ErrAlreadyRegistered):
		return "An account with this email already exists. Try signing in instead."
	}
	return err.Error()
}

// classifyError matches a raw provider message against the known kinds.
// Returns the original error when no kind matches.
func classifyError(msg string) error {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "invalid login credentials"),
		strings.Contains(lower, "invalid_credentials"):
		return ErrInvalidCredentials
	case strings.Contains(lower, "rate limit"),
		strings.Contains(lower, "too many requests"):
		return ErrRateLimited
	case strings.Contains(lower, "already registered"),
		strings.Contains(lower, "already been registered"),
		strings.Contains(lower, "user_already_exists"):
		return ErrAlreadyRegistered
	}
	return errors.New(msg)
}
