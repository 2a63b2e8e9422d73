package dashboard

import (
	"context"
	"sync"

	"github.com/bhekumuzitshuma/jobsearch/internal/auth"
	"github.com/bhekumuzitshuma/jobsearch/internal/realtime"
	"github.com/bhekumuzitshuma/jobsearch/internal/session"
	"github.com/bhekumuzitshuma/jobsearch/internal/store"
)

// Manager holds one live Controller per signed-in identity. Controllers
// are created lazily on the first authenticated request and torn down on
// sign-out.
type Manager struct {
	store    store.Store
	channels realtime.ChannelProvider
	announce Announcer

	mu      sync.Mutex
	entries map[string]*managed
}

type managed struct {
	ctrl     *Controller
	provider *auth.StaticProvider
}

// NewManager constructs a Manager over the shared backing services.
func NewManager(st store.Store, channels realtime.ChannelProvider, announce Announcer) *Manager {
	return &Manager{
		store:    st,
		channels: channels,
		announce: announce,
		entries:  make(map[string]*managed),
	}
}

// Get returns the live controller for identity, spawning and starting one
// on first use.
func (m *Manager) Get(ctx context.Context, identity auth.Identity) *Controller {
	m.mu.Lock()
	if e, ok := m.entries[identity.ID]; ok {
		m.mu.Unlock()
		return e.ctrl
	}

	provider := auth.NewStaticProvider(identity)
	sess := session.New(provider, m.store)
	feed := realtime.NewFeed(m.channels)
	ctrl := New(sess, m.store, feed, m.announce)
	m.entries[identity.ID] = &managed{ctrl: ctrl, provider: provider}
	m.mu.Unlock()

	ctrl.Start(ctx)
	return ctrl
}

// Evict signs the identity's controller out and removes it. No-op when no
// controller exists.
func (m *Manager) Evict(ctx context.Context, identityID string) {
	m.mu.Lock()
	e, ok := m.entries[identityID]
	if ok {
		delete(m.entries, identityID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	// SIGNED_OUT flows through the session store so the controller walks
	// its normal teardown transition before being closed.
	e.provider.SignOut(ctx)
	e.ctrl.Close()
}

// CloseAll tears down every live controller. Called on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	entries := make([]*managed, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.entries = make(map[string]*managed)
	m.mu.Unlock()

	for _, e := range entries {
		e.ctrl.Close()
	}
}
