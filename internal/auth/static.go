package auth

import (
	"context"
	"errors"
	"sync"
)

// ErrInteractiveGrantUnsupported is returned by StaticProvider for the
// interactive grants — those run against the auth API before a
// StaticProvider is ever constructed.
var ErrInteractiveGrantUnsupported = errors.New("interactive grant not supported by static provider")

// StaticProvider carries an identity that was already verified upstream
// (bearer-token middleware). It resolves immediately and emits a single
// SIGNED_OUT event when the session is revoked — the shape the session
// store expects, without another round-trip to the auth API.
type StaticProvider struct {
	mu        sync.Mutex
	identity  *Identity
	listeners map[int]func(Event, *Identity)
	nextID    int
}

// NewStaticProvider wraps a verified identity in a Provider.
func NewStaticProvider(identity Identity) *StaticProvider {
	id := identity
	return &StaticProvider{
		identity:  &id,
		listeners: make(map[int]func(Event, *Identity)),
	}
}

// GetCurrentSession returns the carried identity (nil after revocation).
func (p *StaticProvider) GetCurrentSession(ctx context.Context) (*Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.identity == nil {
		return nil, nil
	}
	id := *p.identity
	return &id, nil
}

// OnIdentityChange registers fn and returns its unsubscribe func.
func (p *StaticProvider) OnIdentityChange(fn func(Event, *Identity)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// SignOut clears the carried identity and notifies listeners.
func (p *StaticProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	p.identity = nil
	fns := make([]func(Event, *Identity), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(EventSignedOut, nil)
	}
	return nil
}

func (p *StaticProvider) SignInWithPassword(ctx context.Context, email, password string) (*Identity, error) {
	return nil, ErrInteractiveGrantUnsupported
}

func (p *StaticProvider) SignUp(ctx context.Context, email, password, redirectTo string) (*Identity, error) {
	return nil, ErrInteractiveGrantUnsupported
}
