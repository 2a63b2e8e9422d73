package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bhekumuzitshuma/jobsearch/internal/auth"
)

// newAuthServer stands in for the auth API. It accepts one known account
// and speaks the same error payloads the real service does.
func newAuthServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != "test-api-key" {
			http.Error(w, `{"message":"missing api key"}`, http.StatusUnauthorized)
			return
		}

		switch {
		case r.URL.Path == "/token" && r.URL.Query().Get("grant_type") == "password":
			var creds struct {
				Email    string `json:"email"`
				Password string `json:"password"`
			}
			json.NewDecoder(r.Body).Decode(&creds)

			if creds.Email == "ratelimited@example.com" {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			if creds.Email != "alice@example.com" || creds.Password != "correct-horse" {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{
					"error_description": "Invalid login credentials",
				})
				return
			}
			writeTokenResponse(t, w, "user-alice", creds.Email)

		case r.URL.Path == "/signup":
			var creds struct {
				Email string `json:"email"`
			}
			json.NewDecoder(r.Body).Decode(&creds)
			if creds.Email == "alice@example.com" {
				w.WriteHeader(http.StatusUnprocessableEntity)
				json.NewEncoder(w).Encode(map[string]string{
					"msg": "User already registered",
				})
				return
			}
			writeTokenResponse(t, w, "user-new", creds.Email)

		case r.URL.Path == "/logout":
			w.WriteHeader(http.StatusNoContent)

		default:
			http.NotFound(w, r)
		}
	}))
}

func writeTokenResponse(t *testing.T, w http.ResponseWriter, userID, email string) {
	t.Helper()
	access := mintToken(t, testSecret, jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	json.NewEncoder(w).Encode(map[string]any{
		"access_token":  access,
		"refresh_token": "refresh-" + userID,
		"expires_in":    3600,
		"user":          map[string]string{"id": userID, "email": email},
	})
}

func newTestClient(t *testing.T) *auth.Client {
	t.Helper()
	srv := newAuthServer(t)
	t.Cleanup(srv.Close)
	return auth.NewClient(srv.URL, "test-api-key", testSecret)
}

// ─── Grants ───────────────────────────────────────────────────────────────

func TestPasswordGrant_Success(t *testing.T) {
	c := newTestClient(t)

	grant, err := c.PasswordGrant(context.Background(), "alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("PasswordGrant: %v", err)
	}
	if grant.AccessToken == "" || grant.RefreshToken == "" {
		t.Error("grant missing tokens")
	}
	// The identity must come from the verified token claims.
	if grant.Identity.ID != "user-alice" || grant.Identity.Email != "alice@example.com" {
		t.Errorf("identity = %+v", grant.Identity)
	}
}

func TestPasswordGrant_InvalidCredentials(t *testing.T) {
	c := newTestClient(t)

	_, err := c.PasswordGrant(context.Background(), "alice@example.com", "wrong")
	if !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestPasswordGrant_RateLimited(t *testing.T) {
	c := newTestClient(t)

	_, err := c.PasswordGrant(context.Background(), "ratelimited@example.com", "x")
	if !errors.Is(err, auth.ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
}

func TestSignUpGrant_AlreadyRegistered(t *testing.T) {
	c := newTestClient(t)

	_, err := c.SignUpGrant(context.Background(), "alice@example.com", "pw", "")
	if !errors.Is(err, auth.ErrAlreadyRegistered) {
		t.Errorf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestSignUpGrant_NewAccount(t *testing.T) {
	c := newTestClient(t)

	grant, err := c.SignUpGrant(context.Background(), "bob@example.com", "pw", "https://app.example.com/welcome")
	if err != nil {
		t.Fatalf("SignUpGrant: %v", err)
	}
	if grant.Identity.Email != "bob@example.com" {
		t.Errorf("identity = %+v", grant.Identity)
	}
}

// ─── Session lifecycle ────────────────────────────────────────────────────

func TestSignInWithPassword_AdoptsSessionAndNotifies(t *testing.T) {
	c := newTestClient(t)

	var mu sync.Mutex
	var events []auth.Event
	c.OnIdentityChange(func(event auth.Event, identity *auth.Identity) {
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
	})

	identity, err := c.SignInWithPassword(context.Background(), "alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("SignInWithPassword: %v", err)
	}
	if identity.ID != "user-alice" {
		t.Errorf("identity = %+v", identity)
	}

	current, err := c.GetCurrentSession(context.Background())
	if err != nil {
		t.Fatalf("GetCurrentSession: %v", err)
	}
	if current == nil || current.ID != "user-alice" {
		t.Errorf("current session = %+v, want user-alice", current)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 || events[0] != auth.EventSignedIn {
		t.Errorf("events = %v, want [SIGNED_IN]", events)
	}
}

func TestGetCurrentSession_NoneIsNotAnError(t *testing.T) {
	c := newTestClient(t)

	identity, err := c.GetCurrentSession(context.Background())
	if err != nil {
		t.Fatalf("GetCurrentSession: %v", err)
	}
	if identity != nil {
		t.Errorf("expected no session, got %+v", identity)
	}
}

func TestSignOut_ClearsSessionAndNotifiesEvenOnServerError(t *testing.T) {
	// A server whose /logout always fails.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/logout" {
			http.Error(w, `{"message":"internal"}`, http.StatusInternalServerError)
			return
		}
		writeTokenResponse(t, w, "user-alice", "alice@example.com")
	}))
	t.Cleanup(srv.Close)

	c := auth.NewClient(srv.URL, "test-api-key", testSecret)
	if _, err := c.SignInWithPassword(context.Background(), "alice@example.com", "correct-horse"); err != nil {
		t.Fatalf("SignInWithPassword: %v", err)
	}

	var mu sync.Mutex
	var gotEvent auth.Event
	c.OnIdentityChange(func(event auth.Event, identity *auth.Identity) {
		mu.Lock()
		gotEvent = event
		mu.Unlock()
	})

	if err := c.SignOut(context.Background()); err == nil {
		t.Error("expected the failed revoke to surface as an error")
	}

	// Local state is gone regardless.
	if identity, _ := c.GetCurrentSession(context.Background()); identity != nil {
		t.Errorf("session survived sign-out: %+v", identity)
	}
	mu.Lock()
	defer mu.Unlock()
	if gotEvent != auth.EventSignedOut {
		t.Errorf("event = %q, want SIGNED_OUT", gotEvent)
	}
}

func TestOnIdentityChange_Unsubscribe(t *testing.T) {
	c := newTestClient(t)

	calls := 0
	unsubscribe := c.OnIdentityChange(func(auth.Event, *auth.Identity) { calls++ })
	unsubscribe()

	if _, err := c.SignInWithPassword(context.Background(), "alice@example.com", "correct-horse"); err != nil {
		t.Fatalf("SignInWithPassword: %v", err)
	}
	if calls != 0 {
		t.Errorf("unsubscribed listener fired %d times", calls)
	}
}

// ─── User messages ────────────────────────────────────────────────────────

func TestUserMessage(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{auth.ErrInvalidCredentials, "Incorrect email or password. Please try again."},
		{auth.ErrRateLimited, "Too many attempts. Please wait a moment and try again."},
		{auth.ErrAlreadyRegistered, "An account with this email already exists. Try signing in instead."},
		{errors.New("Email link is invalid or has expired"), "Email link is invalid or has expired"},
	}
	for _, c := range cases {
		if got := auth.UserMessage(c.err); got != c.want {
			t.Errorf("UserMessage(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}
