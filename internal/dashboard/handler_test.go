package dashboard_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bhekumuzitshuma/jobsearch/internal/auth"
	"github.com/bhekumuzitshuma/jobsearch/internal/dashboard"
	"github.com/bhekumuzitshuma/jobsearch/internal/match"
	"github.com/bhekumuzitshuma/jobsearch/internal/store"
)

var httpSecret = []byte("handler-test-secret")

func mintAccess(t *testing.T, userID, email string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString(httpSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// newAuthAPIServer stands in for the auth API behind /auth/* routes. One
// known account, tokens signed with the shared test secret.
func newAuthAPIServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/token" && r.URL.Query().Get("grant_type") == "password":
			var creds struct {
				Email    string `json:"email"`
				Password string `json:"password"`
			}
			json.NewDecoder(r.Body).Decode(&creds)
			if creds.Email != "alice@example.com" || creds.Password != "correct-horse" {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{
					"error_description": "Invalid login credentials",
				})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"access_token":  mintAccess(t, "user-a", creds.Email),
				"refresh_token": "refresh-user-a",
				"expires_in":    3600,
				"user":          map[string]string{"id": "user-a", "email": creds.Email},
			})
		case r.URL.Path == "/logout":
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
}

type httpHarness struct {
	store    *storeFake
	channels *channelsFake
	announce *announcerFake
	mgr      *dashboard.Manager
	srv      *httptest.Server
}

func newHTTPHarness(t *testing.T, rows []match.RawRow) *httpHarness {
	t.Helper()
	authSrv := newAuthAPIServer(t)
	t.Cleanup(authSrv.Close)

	h := &httpHarness{
		store:    newStoreFake(),
		channels: &channelsFake{},
		announce: &announcerFake{},
	}
	h.store.auto = true
	h.store.autoRows = rows

	h.mgr = dashboard.NewManager(h.store, h.channels, h.announce)
	t.Cleanup(h.mgr.CloseAll)

	authc := auth.NewClient(authSrv.URL, "", httpSecret)
	handler := dashboard.NewHandler(h.mgr, authc, h.store, httpSecret)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	h.srv = httptest.NewServer(mux)
	t.Cleanup(h.srv.Close)
	return h
}

func (h *httpHarness) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, payload)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func (h *httpHarness) login(t *testing.T) string {
	t.Helper()
	resp := h.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "correct-horse",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d", resp.StatusCode)
	}
	var grant struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		t.Fatalf("decode grant: %v", err)
	}
	if grant.AccessToken == "" {
		t.Fatal("login returned no access token")
	}
	return grant.AccessToken
}

// awaitReadySnapshot polls GET /dashboard until the controller reaches
// READY and returns the decoded snapshot.
func (h *httpHarness) awaitReadySnapshot(t *testing.T, token, query string) dashboard.Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp := h.do(t, http.MethodGet, "/dashboard"+query, token, nil)
		var snap dashboard.Snapshot
		err := json.NewDecoder(resp.Body).Decode(&snap)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("decode snapshot: %v", err)
		}
		if snap.State == dashboard.StateReady {
			return snap
		}
		if !time.Now().Before(deadline) {
			t.Fatalf("dashboard never reached READY, stuck at %s", snap.State)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ─── Auth routes ──────────────────────────────────────────────────────────

func TestHandlerLogin_InvalidCredentials(t *testing.T) {
	h := newHTTPHarness(t, nil)

	resp := h.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "wrong",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
	var body struct {
		Error string `json:"error"`
	}
	json.NewDecoder(resp.Body).Decode(&body)
	if body.Error != "Incorrect email or password. Please try again." {
		t.Errorf("error message = %q", body.Error)
	}
}

func TestHandlerLogin_MissingFields(t *testing.T) {
	h := newHTTPHarness(t, nil)

	resp := h.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "alice@example.com"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandler_RoutesRequireBearerToken(t *testing.T) {
	h := newHTTPHarness(t, nil)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/dashboard"},
		{http.MethodGet, "/dashboard/events"},
		{http.MethodPost, "/dashboard/refresh"},
		{http.MethodPost, "/dashboard/apply/job-1"},
		{http.MethodGet, "/profile"},
		{http.MethodPut, "/settings"},
	}
	for _, rt := range routes {
		resp := h.do(t, rt.method, rt.path, "", nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s %s without token: status %d, want 401", rt.method, rt.path, resp.StatusCode)
		}
	}
}

func TestHandler_RejectsTamperedToken(t *testing.T) {
	h := newHTTPHarness(t, nil)

	resp := h.do(t, http.MethodGet, "/dashboard", "not.a.token", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

// ─── Dashboard routes ─────────────────────────────────────────────────────

func TestHandlerDashboard_SnapshotAfterLogin(t *testing.T) {
	h := newHTTPHarness(t, []match.RawRow{
		mkRaw("1", 95, "discovered"),
		mkRaw("2", 76, "pending"),
	})
	token := h.login(t)

	snap := h.awaitReadySnapshot(t, token, "")
	if len(snap.Rows) != 2 || snap.Rows[0].MatchScore != 95 {
		t.Errorf("rows = %+v", snap.Rows)
	}
	if snap.Stats.Total != 2 || snap.Stats.Pending != 1 {
		t.Errorf("stats = %+v", snap.Stats)
	}
	if snap.Identity == nil || snap.Identity.ID != "user-a" {
		t.Errorf("identity = %+v, want user-a", snap.Identity)
	}
}

func TestHandlerDashboard_QueryParamsFilterRows(t *testing.T) {
	h := newHTTPHarness(t, []match.RawRow{
		mkRaw("1", 95, "discovered"),
		mkRaw("2", 76, "pending"),
	})
	token := h.login(t)
	h.awaitReadySnapshot(t, token, "")

	resp := h.do(t, http.MethodGet, "/dashboard?status=pending", token, nil)
	defer resp.Body.Close()
	var snap dashboard.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap.Rows) != 1 || snap.Rows[0].Status != match.StatusPending {
		t.Errorf("filtered rows = %+v", snap.Rows)
	}
	// Stats always cover the unfiltered set.
	if snap.Stats.Total != 2 {
		t.Errorf("stats.Total = %d, want 2", snap.Stats.Total)
	}
}

func TestHandlerApply_AcceptedWithSnapshot(t *testing.T) {
	h := newHTTPHarness(t, []match.RawRow{mkRaw("1", 80, "discovered")})
	h.store.resume = &store.ResumeRef{ID: "resume-1", StoragePath: "cv/a.pdf"}
	token := h.login(t)
	h.awaitReadySnapshot(t, token, "")

	resp := h.do(t, http.MethodPost, "/dashboard/apply/job-1", token, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var snap dashboard.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Rows[0].Status != match.StatusPending {
		t.Errorf("row status = %s, want pending in the apply response", snap.Rows[0].Status)
	}
}

func TestHandlerApply_UnknownJobIs404(t *testing.T) {
	h := newHTTPHarness(t, []match.RawRow{mkRaw("1", 80, "discovered")})
	token := h.login(t)
	h.awaitReadySnapshot(t, token, "")

	resp := h.do(t, http.MethodPost, "/dashboard/apply/job-nope", token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHandlerApply_TerminalStatusIs422(t *testing.T) {
	h := newHTTPHarness(t, []match.RawRow{mkRaw("1", 80, "applied")})
	token := h.login(t)
	h.awaitReadySnapshot(t, token, "")

	resp := h.do(t, http.MethodPost, "/dashboard/apply/job-1", token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
}

func TestHandlerEvents_StreamSignalsInvalidation(t *testing.T) {
	h := newHTTPHarness(t, []match.RawRow{mkRaw("1", 80, "discovered")})
	token := h.login(t)
	h.awaitReadySnapshot(t, token, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.srv.URL+"/dashboard/events", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open event stream: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q", got)
	}

	lines := make(chan string, 16)
	go func() {
		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				close(lines)
				return
			}
			lines <- line
		}
	}()
	awaitLine(t, lines, "event: ready")

	// A data change must surface on the stream.
	h.do(t, http.MethodPost, "/dashboard/refresh", token, nil).Body.Close()
	awaitLine(t, lines, "event: invalidate")
}

func awaitLine(t *testing.T, lines <-chan string, want string) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatalf("stream closed before %q arrived", want)
			}
			if strings.HasPrefix(line, want) {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q on the stream", want)
		}
	}
}

// ─── Profile & settings routes ────────────────────────────────────────────

func TestHandlerProfile_ReportsLoadState(t *testing.T) {
	h := newHTTPHarness(t, nil) // storeFake has no profile rows
	token := h.login(t)
	h.awaitReadySnapshot(t, token, "")

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp := h.do(t, http.MethodGet, "/profile", token, nil)
		var body struct {
			ProfileState string `json:"profileState"`
		}
		err := json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("decode profile: %v", err)
		}
		if body.ProfileState == "absent" {
			return
		}
		if !time.Now().Before(deadline) {
			t.Fatalf("profileState = %q, want absent", body.ProfileState)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandlerSettings_Upsert(t *testing.T) {
	h := newHTTPHarness(t, nil)
	token := h.login(t)

	want := store.Settings{
		ApplicationEmail:        "alice@example.com",
		AutoApply:               true,
		NotifyApplicationStatus: true,
		MaxDailyApplications:    5,
	}
	resp := h.do(t, http.MethodPut, "/settings", token, want)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	h.store.mu.Lock()
	got := h.store.settings["user-a"]
	h.store.mu.Unlock()
	if got != want {
		t.Errorf("stored settings = %+v, want %+v", got, want)
	}
}

// ─── Logout & manager lifecycle ───────────────────────────────────────────

func TestHandlerLogout_EvictsController(t *testing.T) {
	h := newHTTPHarness(t, []match.RawRow{mkRaw("1", 80, "discovered")})
	token := h.login(t)
	h.awaitReadySnapshot(t, token, "")

	first := h.mgr.Get(context.Background(), *userA())

	resp := h.do(t, http.MethodPost, "/auth/logout", token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status = %d, want 200", resp.StatusCode)
	}

	if first.State() != dashboard.StateUnauthenticated {
		t.Errorf("evicted controller state = %s, want UNAUTHENTICATED", first.State())
	}
	// The next authenticated request spawns a fresh controller.
	if h.mgr.Get(context.Background(), *userA()) == first {
		t.Error("logout did not evict the controller")
	}
}

func TestManager_GetReusesOneControllerPerIdentity(t *testing.T) {
	st := newStoreFake()
	st.auto = true
	mgr := dashboard.NewManager(st, &channelsFake{}, &announcerFake{})
	t.Cleanup(mgr.CloseAll)

	a1 := mgr.Get(context.Background(), *userA())
	a2 := mgr.Get(context.Background(), *userA())
	b := mgr.Get(context.Background(), *userB())

	if a1 != a2 {
		t.Error("same identity produced two controllers")
	}
	if a1 == b {
		t.Error("different identities share a controller")
	}
}

func TestManager_EvictClosesTheLiveChannel(t *testing.T) {
	st := newStoreFake()
	st.auto = true
	channels := &channelsFake{}
	mgr := dashboard.NewManager(st, channels, &announcerFake{})
	t.Cleanup(mgr.CloseAll)

	ctrl := mgr.Get(context.Background(), *userA())
	awaitState(t, ctrl, dashboard.StateReady)

	mgr.Evict(context.Background(), "user-a")

	if len(channels.handles) == 0 || !channels.handles[0].isClosed() {
		t.Error("eviction left the realtime channel open")
	}
	// Evicting an unknown identity is a no-op.
	mgr.Evict(context.Background(), "user-nope")
}
