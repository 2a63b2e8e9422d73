// Package session owns the authenticated identity and its profile.
//
// It is the single source of truth for "who is signed in" and "what is
// their profile", and deliberately decouples the two: identity resolution
// never waits on profile latency. Profile fetches are dispatched, not
// awaited, and a fetch that resolves after the identity has changed is
// discarded — last writer wins by identity match, not by completion order.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bhekumuzitshuma/jobsearch/internal/auth"
	"github.com/bhekumuzitshuma/jobsearch/internal/store"
)

const profileFetchTimeout = 15 * time.Second

// ProfileState distinguishes "still loading" from "confirmed absent".
// The two are never collapsed: a dashboard that treats a loading profile
// as missing would flash onboarding prompts at fully onboarded users.
type ProfileState string

const (
	// ProfileLoading — a fetch is in flight for the current identity.
	ProfileLoading ProfileState = "loading"
	// ProfileLoaded — the profile row is attached.
	ProfileLoaded ProfileState = "loaded"
	// ProfileAbsent — confirmed: no profile row exists (or no identity).
	ProfileAbsent ProfileState = "absent"
)

// ProfileSource is the slice of the data store the session needs.
type ProfileSource interface {
	SelectProfile(ctx context.Context, identityID string) (*store.Profile, error)
}

// Snapshot is an immutable view of the session state.
type Snapshot struct {
	AuthResolved bool
	Identity     *auth.Identity
	Profile      *store.Profile
	ProfileState ProfileState
}

// IsAuthenticated reports whether an identity is attached.
func (s Snapshot) IsAuthenticated() bool { return s.Identity != nil }

// Store tracks the authentication lifecycle for one user session.
type Store struct {
	provider auth.Provider
	profiles ProfileSource

	mu           sync.Mutex
	authResolved bool
	identity     *auth.Identity
	profile      *store.Profile
	profileState ProfileState
	listeners    []func(Snapshot)
	unsubscribe  func()
	closed       bool
}

// New constructs a Store. Call Initialize to resolve the existing session.
func New(provider auth.Provider, profiles ProfileSource) *Store {
	return &Store{
		provider:     provider,
		profiles:     profiles,
		profileState: ProfileAbsent,
	}
}

// Initialize resolves the existing provider session and starts listening
// for identity-change events. It flips the authResolved flag exactly once,
// whether or not a session was found; resolution errors are logged and
// treated as "no session". The profile fetch for a found identity is
// dispatched but not awaited.
func (s *Store) Initialize(ctx context.Context) {
	s.mu.Lock()
	if s.unsubscribe == nil && !s.closed {
		s.unsubscribe = s.provider.OnIdentityChange(s.handleAuthEvent)
	}
	s.mu.Unlock()

	identity, err := s.provider.GetCurrentSession(ctx)
	if err != nil {
		slog.Warn("session resolution failed, treating as no session", "err", err)
		identity = nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.authResolved = true
	s.identity = identity
	s.profile = nil
	if identity != nil {
		s.profileState = ProfileLoading
		go s.fetchProfile(identity.ID)
	} else {
		s.profileState = ProfileAbsent
	}
	s.mu.Unlock()

	s.notify()
}

// handleAuthEvent fully replaces the current identity. The provider may
// emit events multiple times (token refresh, sign-out, sign-in from
// another tab); each one restarts the profile fetch so a new identity is
// never shown with a previous identity's profile.
func (s *Store) handleAuthEvent(event auth.Event, identity *auth.Identity) {
	slog.Debug("auth state change", "event", event)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.authResolved = true
	s.identity = identity
	s.profile = nil
	if identity != nil {
		s.profileState = ProfileLoading
		go s.fetchProfile(identity.ID)
	} else {
		s.profileState = ProfileAbsent
	}
	s.mu.Unlock()

	s.notify()
}

// fetchProfile loads the profile for identityID and attaches the result —
// unless the session has moved on to a different identity in the meantime,
// in which case the result is discarded at resolution time.
func (s *Store) fetchProfile(identityID string) {
	ctx, cancel := context.WithTimeout(context.Background(), profileFetchTimeout)
	defer cancel()

	profile, err := s.profiles.SelectProfile(ctx, identityID)

	s.mu.Lock()
	if s.closed || s.identity == nil || s.identity.ID != identityID {
		// Superseded identity — stale result, drop it.
		s.mu.Unlock()
		slog.Debug("discarding stale profile fetch", "identityId", identityID)
		return
	}

	switch {
	case errors.Is(err, store.ErrProfileNotFound):
		// Expected for fresh accounts: no row yet.
		s.profile = nil
		s.profileState = ProfileAbsent
	case err != nil:
		// Transport failure: never leave a stale profile attached.
		slog.Warn("profile fetch failed", "identityId", identityID, "err", err)
		s.profile = nil
		s.profileState = ProfileAbsent
	default:
		s.profile = profile
		s.profileState = ProfileLoaded
	}
	s.mu.Unlock()

	s.notify()
}

// RefreshProfile re-runs the profile fetch for the current identity.
// No-op when signed out.
func (s *Store) RefreshProfile() {
	s.mu.Lock()
	if s.closed || s.identity == nil {
		s.mu.Unlock()
		return
	}
	id := s.identity.ID
	s.profileState = ProfileLoading
	s.mu.Unlock()

	s.notify()
	go s.fetchProfile(id)
}

// SignOut requests provider sign-out, then clears local state regardless
// of the provider's response. Local state must never show a signed-in
// session after the user asked to leave, even under network failure.
func (s *Store) SignOut(ctx context.Context) {
	if err := s.provider.SignOut(ctx); err != nil {
		slog.Warn("provider sign-out failed, clearing local session anyway", "err", err)
	}

	s.mu.Lock()
	s.identity = nil
	s.profile = nil
	s.profileState = ProfileAbsent
	s.mu.Unlock()

	s.notify()
}

// Snapshot returns the current session state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		AuthResolved: s.authResolved,
		Identity:     s.identity,
		Profile:      s.profile,
		ProfileState: s.profileState,
	}
}

// IsAuthenticated reports whether an identity is currently attached.
func (s *Store) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity != nil
}

// OnChange registers fn to run after every state change. The callback
// receives the snapshot taken at notification time.
func (s *Store) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Close detaches the provider listener and renders further async
// completions inert.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	unsub := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

func (s *Store) notify() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	snap := Snapshot{
		AuthResolved: s.authResolved,
		Identity:     s.identity,
		Profile:      s.profile,
		ProfileState: s.profileState,
	}
	fns := make([]func(Snapshot), len(s.listeners))
	copy(fns, s.listeners)
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
