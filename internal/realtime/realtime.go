// Package realtime detects server-side changes to a user's match set
// without polling.
//
// Events carry no payload worth interpreting: delivery of complete rows
// and cross-event ordering are not guaranteed by the broker, so every
// event is treated purely as an invalidation signal — subscribers always
// re-fetch the full match set instead of patching incrementally.
package realtime

import (
	"context"
	"fmt"
	"sync"
)

// MatchTopic is the single logical channel for match-change events. The
// filter down to one user's rows is enforced by the re-fetch, never
// trusted from the channel payload.
const MatchTopic = "matches:changed"

// Handle closes an open channel subscription.
type Handle interface {
	Close() error
}

// ChannelProvider opens broker subscriptions. The production
// implementation is Redis pub/sub; tests substitute fakes.
type ChannelProvider interface {
	// OpenChannel subscribes to topic and invokes onEvent for every
	// message until the returned Handle is closed.
	OpenChannel(ctx context.Context, topic string, onEvent func()) (Handle, error)
}

// Feed owns at most one live channel subscription, scoped to the current
// identity. Only the dashboard controller opens and closes it.
type Feed struct {
	provider ChannelProvider

	// opMu serialises Subscribe/Unsubscribe end to end. Auth events arrive
	// on separate goroutines; without it two concurrent Subscribes could
	// both open a channel and record only one handle, leaking the other.
	opMu sync.Mutex

	mu         sync.Mutex
	handle     Handle
	identityID string
}

// NewFeed constructs a Feed over the given provider.
func NewFeed(provider ChannelProvider) *Feed {
	return &Feed{provider: provider}
}

// Subscribe opens the match-change channel for identityID, tearing down
// any previous subscription first. onChange fires on every event.
//
// On error the feed is left unsubscribed: matches stay visible at their
// last-fetched state until the next lifecycle-triggered re-fetch.
func (f *Feed) Subscribe(ctx context.Context, identityID string, onChange func()) error {
	f.opMu.Lock()
	defer f.opMu.Unlock()

	f.teardown()

	handle, err := f.provider.OpenChannel(ctx, MatchTopic, onChange)
	if err != nil {
		return fmt.Errorf("open channel %q: %w", MatchTopic, err)
	}

	f.mu.Lock()
	f.handle = handle
	f.identityID = identityID
	f.mu.Unlock()
	return nil
}

// Unsubscribe closes the live subscription, if any. Safe to call twice;
// must be called on teardown to avoid leaking a channel per remount.
func (f *Feed) Unsubscribe() {
	f.opMu.Lock()
	defer f.opMu.Unlock()
	f.teardown()
}

func (f *Feed) teardown() {
	f.mu.Lock()
	handle := f.handle
	f.handle = nil
	f.identityID = ""
	f.mu.Unlock()

	if handle != nil {
		handle.Close()
	}
}

// IdentityID returns the identity the live subscription is scoped to,
// or "" when unsubscribed.
func (f *Feed) IdentityID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.identityID
}
