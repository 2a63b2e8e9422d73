// Package dashboard composes the session store, the realtime match feed
// and the match projection into the screen's reactive state machine.
//
// State graph:
//
//	AUTH_PENDING ──► UNAUTHENTICATED            (terminal — torn down)
//	     │
//	     └────────► LOADING_MATCHES ──► READY ──► READY (self-loop on
//	                                              invalidation / refresh)
//
// Ordering races between async completions are the dominant hazard here:
// every fetch completion is guarded by the originating identity and a
// monotonically increasing request sequence, checked at resolution time.
// Stale completions are inert — they never regress the view to older data.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bhekumuzitshuma/jobsearch/internal/auth"
	"github.com/bhekumuzitshuma/jobsearch/internal/match"
	"github.com/bhekumuzitshuma/jobsearch/internal/projection"
	"github.com/bhekumuzitshuma/jobsearch/internal/realtime"
	"github.com/bhekumuzitshuma/jobsearch/internal/session"
	"github.com/bhekumuzitshuma/jobsearch/internal/store"
)

const (
	fetchTimeout   = 15 * time.Second
	persistTimeout = 15 * time.Second

	// StatusFilterAll disables the status filter.
	StatusFilterAll = "all"
)

// State is the controller's position in the dashboard state machine.
type State string

const (
	StateAuthPending     State = "AUTH_PENDING"
	StateUnauthenticated State = "UNAUTHENTICATED"
	StateLoadingMatches  State = "LOADING_MATCHES"
	StateReady           State = "READY"
)

// ErrRowNotFound is returned by Apply when no match row exists for the job.
var ErrRowNotFound = errors.New("no match row for job")

// ValidationError wraps a user-facing validation message.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

// Announcer publishes a match-change invalidation after a successful apply
// persistence, so other live dashboards for the user pick it up.
type Announcer interface {
	AnnounceMatchChange(ctx context.Context, reason string) error
}

// Snapshot is the view handed to the rendering surface. Rows are already
// filtered; Stats always cover the full (unfiltered) match set.
type Snapshot struct {
	State        State                `json:"state"`
	Identity     *auth.Identity       `json:"identity,omitempty"`
	Profile      *store.Profile       `json:"profile,omitempty"`
	ProfileState session.ProfileState `json:"profileState"`
	Rows         []projection.Row     `json:"rows"`
	Stats        projection.Stats     `json:"stats"`
	SearchTerm   string               `json:"searchTerm"`
	StatusFilter string               `json:"statusFilter"`
}

// Controller binds one user session to its live dashboard state.
type Controller struct {
	session  *session.Store
	store    store.Store
	feed     *realtime.Feed
	announce Announcer        // optional
	now      func() time.Time // injected for tests

	mu           sync.Mutex
	state        State
	identityID   string
	rows         []projection.Row
	stats        projection.Stats
	search       string
	statusFilter string
	fetchSeq     uint64 // last issued fetch
	appliedSeq   uint64 // last fetch whose result was applied
	closed       bool
	invalidate   map[int]func()
	nextListener int
	onSignInNav  func()
}

// New constructs a Controller. announce may be nil (no cross-dashboard
// invalidation on apply).
func New(sess *session.Store, st store.Store, feed *realtime.Feed, announce Announcer) *Controller {
	return &Controller{
		session:      sess,
		store:        st,
		feed:         feed,
		announce:     announce,
		now:          time.Now,
		state:        StateAuthPending,
		statusFilter: StatusFilterAll,
		invalidate:   make(map[int]func()),
	}
}

// Start wires the controller to session changes and kicks off identity
// resolution. It returns once resolution has been dispatched; match data
// arrives asynchronously.
func (c *Controller) Start(ctx context.Context) {
	c.session.OnChange(c.handleSession)
	c.session.Initialize(ctx)
}

// OnNavigateToSignIn registers the navigation signal fired when the
// session resolves with no identity. Terminal for this controller.
func (c *Controller) OnNavigateToSignIn(fn func()) {
	c.mu.Lock()
	c.onSignInNav = fn
	c.mu.Unlock()
}

// OnInvalidate registers fn to run whenever the snapshot changes and
// returns its unsubscribe func. Used by the SSE surface to push re-render
// signals; every connection must unsubscribe on close.
func (c *Controller) OnInvalidate(fn func()) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.invalidate[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.invalidate, id)
		c.mu.Unlock()
	}
}

// RefreshProfile re-runs the profile fetch for the current identity.
func (c *Controller) RefreshProfile() {
	c.session.RefreshProfile()
}

// ─── Session reactions ────────────────────────────────────────────────────

// handleSession runs on every session store change. Identity arrival opens
// the realtime channel and issues the initial fetch; identity loss tears
// everything down.
func (c *Controller) handleSession(snap session.Snapshot) {
	if !snap.AuthResolved {
		return // identity unknown, not absent — stay AUTH_PENDING
	}

	if snap.Identity == nil {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		wasAuthed := c.state != StateUnauthenticated
		c.state = StateUnauthenticated
		c.identityID = ""
		c.rows = nil
		c.stats = projection.Stats{}
		nav := c.onSignInNav
		c.mu.Unlock()

		c.feed.Unsubscribe()
		if wasAuthed && nav != nil {
			nav()
		}
		c.notifyInvalidate()
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	sameIdentity := c.identityID == snap.Identity.ID
	if !sameIdentity {
		c.identityID = snap.Identity.ID
		c.state = StateLoadingMatches
		c.rows = nil
		c.stats = projection.Stats{}
	}
	id := c.identityID
	c.mu.Unlock()

	if sameIdentity {
		// Profile update or token refresh — matches are unaffected.
		c.notifyInvalidate()
		return
	}

	// New identity: re-subscribe the feed, then fetch. A subscribe failure
	// degrades to "no live updates" — the dashboard still works.
	if err := c.feed.Subscribe(context.Background(), id, c.Refresh); err != nil {
		slog.Warn("realtime subscription failed — live updates disabled", "identityId", id, "err", err)
	}
	c.Refresh()
}

// ─── Fetch cycle ──────────────────────────────────────────────────────────

// Refresh issues a new match fetch for the current identity. Called for
// the initial load, on every realtime invalidation, and on explicit
// re-fetch requests. Concurrent calls are safe; completions apply in
// last-completed-wins order under the sequence guard.
func (c *Controller) Refresh() {
	c.mu.Lock()
	if c.closed || c.identityID == "" {
		c.mu.Unlock()
		return
	}
	c.fetchSeq++
	seq := c.fetchSeq
	id := c.identityID
	c.mu.Unlock()

	go c.fetchMatches(seq, id)
}

func (c *Controller) fetchMatches(seq uint64, identityID string) {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	raw, err := c.store.SelectMatches(ctx, identityID)

	c.mu.Lock()
	if c.closed || c.identityID != identityID || seq <= c.appliedSeq {
		// Identity moved on, or a newer fetch already landed. Discard.
		c.mu.Unlock()
		slog.Debug("discarding stale match fetch", "identityId", identityID, "seq", seq)
		return
	}

	if err != nil {
		slog.Warn("match fetch failed", "identityId", identityID, "err", err)
		if c.state != StateReady {
			// Fail open: an empty ready dashboard beats a stuck spinner.
			c.rows = []projection.Row{}
			c.stats = projection.Stats{}
			c.state = StateReady
		}
		// Already READY: keep last-known rows rather than blanking them.
		c.mu.Unlock()
		c.notifyInvalidate()
		return
	}

	c.appliedSeq = seq
	c.rows = projection.Project(raw)
	c.stats = projection.ComputeStats(c.rows)
	c.state = StateReady
	c.mu.Unlock()

	c.notifyInvalidate()
}

// ─── Filtering ────────────────────────────────────────────────────────────

// SetFilter updates the search term and status filter. Purely local: the
// filtered view is recomputed from already-fetched rows, no I/O.
//
// Unchanged values are a no-op. Every snapshot request passes its query
// params through here; notifying on an identical filter would make an SSE
// client re-request the snapshot it just rendered, ad infinitum.
func (c *Controller) SetFilter(searchTerm, statusFilter string) {
	if statusFilter == "" {
		statusFilter = StatusFilterAll
	}
	c.mu.Lock()
	if c.search == searchTerm && c.statusFilter == statusFilter {
		c.mu.Unlock()
		return
	}
	c.search = searchTerm
	c.statusFilter = statusFilter
	c.mu.Unlock()

	c.notifyInvalidate()
}

// ─── Apply action ─────────────────────────────────────────────────────────

// Apply optimistically flips the job's row to pending with today's date
// and recomputes stats — synchronously, before any network call. The
// persistence side effect runs best-effort in the background and is never
// rolled back: the user-visible contract is "request submitted", not
// "request confirmed downstream".
func (c *Controller) Apply(jobID string) error {
	c.mu.Lock()
	if c.closed || c.identityID == "" {
		c.mu.Unlock()
		return &ValidationError{Msg: "not signed in"}
	}

	idx := -1
	for i := range c.rows {
		if c.rows[i].JobID == jobID {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRowNotFound, jobID)
	}

	row := &c.rows[idx]
	if !match.IsTransitionAllowed(row.Status, match.StatusPending) {
		msg := fmt.Sprintf("cannot apply to a job in status %q", row.Status)
		c.mu.Unlock()
		return &ValidationError{Msg: msg}
	}

	row.Status = match.StatusPending
	row.AppliedDate = c.now().Format("2006-01-02")
	c.stats = projection.ComputeStats(c.rows)

	identityID := c.identityID
	matchID := row.MatchID
	c.mu.Unlock()

	c.notifyInvalidate()

	go c.persistApply(identityID, matchID, jobID)
	return nil
}

// persistApply records the application and queues the downstream sending
// task, keyed by the user's most recent resume. No resume on file silently
// skips the side effect; failures are logged and never surfaced — the
// optimistic transition stands either way.
func (c *Controller) persistApply(identityID, matchID, jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	resume, err := c.store.SelectLatestResume(ctx, identityID)
	if err != nil {
		slog.Warn("apply side effect: resume lookup failed", "jobId", jobID, "err", err)
		return
	}
	if resume == nil {
		slog.Info("apply side effect skipped: no resume on file", "identityId", identityID, "jobId", jobID)
		return
	}

	now := c.now()
	app := store.ApplicationRecord{
		ID:        uuid.NewString(),
		UserID:    identityID,
		MatchID:   matchID,
		JobID:     jobID,
		ResumeID:  resume.ID,
		CreatedAt: now,
	}
	if err := c.store.InsertApplication(ctx, app); err != nil {
		slog.Warn("apply side effect: insert application failed", "jobId", jobID, "err", err)
		return
	}

	task := store.TaskRecord{
		ID:        uuid.NewString(),
		UserID:    identityID,
		JobID:     jobID,
		ResumeID:  resume.ID,
		Type:      "send_application",
		Status:    "queued",
		CreatedAt: now,
	}
	if err := c.store.InsertTask(ctx, task); err != nil {
		slog.Warn("apply side effect: enqueue task failed", "jobId", jobID, "err", err)
		return
	}

	if c.announce != nil {
		if err := c.announce.AnnounceMatchChange(ctx, "apply:"+jobID); err != nil {
			slog.Warn("apply side effect: announce failed", "jobId", jobID, "err", err)
		}
	}
}

// ─── Snapshot & teardown ──────────────────────────────────────────────────

// Snapshot returns the current view: filtered rows, full-set stats, and
// the session's identity/profile state.
func (c *Controller) Snapshot() Snapshot {
	sess := c.session.Snapshot()

	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:        c.state,
		Identity:     sess.Identity,
		Profile:      sess.Profile,
		ProfileState: sess.ProfileState,
		Rows:         FilterRows(c.rows, c.search, c.statusFilter),
		Stats:        c.stats,
		SearchTerm:   c.search,
		StatusFilter: c.statusFilter,
	}
}

// State returns the current state-machine position.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close tears the controller down: the realtime channel is closed
// synchronously and all further async completions become inert via the
// identity/sequence guards.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.feed.Unsubscribe()
	c.session.Close()
}

func (c *Controller) notifyInvalidate() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	fns := make([]func(), 0, len(c.invalidate))
	for _, fn := range c.invalidate {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
