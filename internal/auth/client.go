package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

const httpTimeout = 15 * time.Second

// Client talks to a GoTrue-style auth API over HTTP. It holds the current
// token session in memory and notifies registered listeners whenever the
// identity changes (sign-in, sign-out, token refresh).
type Client struct {
	baseURL string
	apiKey  string
	secret  []byte // shared HMAC secret used to verify access tokens
	http    *http.Client

	mu        sync.Mutex
	session   *tokenSession
	listeners map[int]func(Event, *Identity)
	nextID    int
}

type tokenSession struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Identity     Identity
}

// NewClient constructs an auth Client with a shared HTTP client.
func NewClient(baseURL, apiKey string, secret []byte) *Client {
	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		secret:    secret,
		http:      &http.Client{Timeout: httpTimeout},
		listeners: make(map[int]func(Event, *Identity)),
	}
}

// tokenResponse mirrors the auth API token/signup payload.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// errorResponse mirrors the auth API error payload. The API is not
// consistent about which field it uses, so all three are checked.
type errorResponse struct {
	Message          string `json:"message"`
	Msg              string `json:"msg"`
	ErrorDescription string `json:"error_description"`
}

func (e *errorResponse) text() string {
	switch {
	case e.ErrorDescription != "":
		return e.ErrorDescription
	case e.Msg != "":
		return e.Msg
	}
	return e.Message
}

// TokenGrant is the full payload of an interactive grant, handed back to
// callers (the HTTP surface forwards it to the browser).
type TokenGrant struct {
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	ExpiresIn    int      `json:"expiresIn"`
	Identity     Identity `json:"identity"`
}

// ─── Stateless grants ─────────────────────────────────────────────────────

// PasswordGrant exchanges credentials for tokens without touching the
// client's own session.
func (c *Client) PasswordGrant(ctx context.Context, email, password string) (*TokenGrant, error) {
	body := map[string]string{"email": email, "password": password}
	var resp tokenResponse
	if err := c.post(ctx, "/token?grant_type=password", "", body, &resp); err != nil {
		return nil, err
	}
	return c.toGrant(&resp), nil
}

// SignUpGrant registers a new account. redirectTo is forwarded so the
// confirmation email links back into the app.
func (c *Client) SignUpGrant(ctx context.Context, email, password, redirectTo string) (*TokenGrant, error) {
	path := "/signup"
	if redirectTo != "" {
		path += "?redirect_to=" + url.QueryEscape(redirectTo)
	}
	body := map[string]string{"email": email, "password": password}
	var resp tokenResponse
	if err := c.post(ctx, path, "", body, &resp); err != nil {
		return nil, err
	}
	return c.toGrant(&resp), nil
}

// RevokeToken terminates the provider-side session behind accessToken.
func (c *Client) RevokeToken(ctx context.Context, accessToken string) error {
	if err := c.post(ctx, "/logout", accessToken, nil, nil); err != nil {
		return fmt.Errorf("provider logout: %w", err)
	}
	return nil
}

func (c *Client) toGrant(resp *tokenResponse) *TokenGrant {
	identity := Identity{ID: resp.User.ID, Email: resp.User.Email}
	if verified, err := VerifyAccessToken(c.secret, resp.AccessToken); err == nil {
		identity = *verified
	}
	return &TokenGrant{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    resp.ExpiresIn,
		Identity:     identity,
	}
}

// ─── Provider implementation ──────────────────────────────────────────────

// GetCurrentSession returns the identity of the in-memory session, refreshing
// the token first when it has expired. (nil, nil) means no session.
func (c *Client) GetCurrentSession(ctx context.Context) (*Identity, error) {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()

	if sess == nil {
		return nil, nil
	}

	if time.Now().Before(sess.ExpiresAt) {
		id := sess.Identity
		return &id, nil
	}

	// Expired — try the refresh grant before giving up on the session.
	identity, err := c.refreshSession(ctx, sess.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	return identity, nil
}

// OnIdentityChange registers fn and returns its unsubscribe func.
func (c *Client) OnIdentityChange(fn func(Event, *Identity)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// SignInWithPassword exchanges credentials for a token session and adopts
// it as the client's own.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Identity, error) {
	grant, err := c.PasswordGrant(ctx, email, password)
	if err != nil {
		return nil, err
	}

	identity := c.storeGrant(grant)
	c.notify(EventSignedIn, identity)
	return identity, nil
}

// SignUp registers a new account and adopts the resulting session.
func (c *Client) SignUp(ctx context.Context, email, password, redirectTo string) (*Identity, error) {
	grant, err := c.SignUpGrant(ctx, email, password, redirectTo)
	if err != nil {
		return nil, err
	}

	identity := c.storeGrant(grant)
	c.notify(EventSignedIn, identity)
	return identity, nil
}

// SignOut revokes the provider-side session. The local session is cleared
// and listeners notified even when the revoke call fails — callers must
// never be left looking signed-in after requesting sign-out.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	var token string
	if c.session != nil {
		token = c.session.AccessToken
	}
	c.session = nil
	c.mu.Unlock()

	c.notify(EventSignedOut, nil)

	if token == "" {
		return nil
	}
	if err := c.post(ctx, "/logout", token, nil, nil); err != nil {
		return fmt.Errorf("provider logout: %w", err)
	}
	return nil
}

// ─── Internals ────────────────────────────────────────────────────────────

func (c *Client) refreshSession(ctx context.Context, refreshToken string) (*Identity, error) {
	body := map[string]string{"refresh_token": refreshToken}
	var resp tokenResponse
	if err := c.post(ctx, "/token?grant_type=refresh_token", "", body, &resp); err != nil {
		return nil, err
	}

	identity := c.storeGrant(c.toGrant(&resp))
	c.notify(EventTokenRefreshed, identity)
	return identity, nil
}

// storeGrant replaces the in-memory session and returns its identity.
func (c *Client) storeGrant(g *TokenGrant) *Identity {
	identity := g.Identity

	c.mu.Lock()
	c.session = &tokenSession{
		AccessToken:  g.AccessToken,
		RefreshToken: g.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(g.ExpiresIn) * time.Second),
		Identity:     identity,
	}
	c.mu.Unlock()

	return &identity
}

func (c *Client) notify(event Event, identity *Identity) {
	c.mu.Lock()
	fns := make([]func(Event, *Identity), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(event, identity)
	}
}

func (c *Client) post(ctx context.Context, path, bearer string, body, out any) error {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.StatusCode >= 400 {
		var apiErr errorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if err := json.Unmarshal(raw, &apiErr); err != nil || apiErr.text() == "" {
			return fmt.Errorf("auth API status %d", resp.StatusCode)
		}
		return classifyError(apiErr.text())
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode auth response: %w", err)
	}
	return nil
}
