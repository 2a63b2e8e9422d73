// Package dashboard — HTTP surface.
//
// All /dashboard, /profile and /settings routes expect a bearer access
// token; the identity is taken from its verified claims.
//
// Routes:
//
//	POST /auth/login               → password grant, returns tokens
//	POST /auth/signup              → registration, returns tokens
//	POST /auth/logout              → revoke session + tear down controller
//	GET  /dashboard                → snapshot (query: search, status)
//	GET  /dashboard/events         → SSE invalidation stream
//	POST /dashboard/refresh        → explicit re-fetch
//	POST /dashboard/apply/{jobId}  → optimistic apply action
//	GET  /profile                  → profile + load state
//	POST /profile/refresh          → re-fetch profile
//	PUT  /settings                 → save account settings
package dashboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/bhekumuzitshuma/jobsearch/internal/auth"
	"github.com/bhekumuzitshuma/jobsearch/internal/store"
)

// sseKeepAliveInterval bounds how long an idle event stream stays silent.
// Proxies and load balancers drop connections that never write.
const sseKeepAliveInterval = 25 * time.Second

// Handler holds shared dependencies for the HTTP surface.
type Handler struct {
	mgr    *Manager
	authc  *auth.Client
	store  store.Store
	secret []byte
}

// NewHandler returns a configured Handler.
func NewHandler(mgr *Manager, authc *auth.Client, st store.Store, secret []byte) *Handler {
	return &Handler{mgr: mgr, authc: authc, store: st, secret: secret}
}

// RegisterRoutes mounts all dashboard-service routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/auth/signup", h.handleSignup)
	mux.HandleFunc("/auth/logout", h.handleLogout)
	mux.HandleFunc("/dashboard", h.handleDashboard)
	mux.HandleFunc("/dashboard/events", h.handleEvents)
	mux.HandleFunc("/dashboard/refresh", h.handleRefresh)
	mux.HandleFunc("/dashboard/apply/", h.handleApply)
	mux.HandleFunc("/profile", h.handleProfile)
	mux.HandleFunc("/profile/refresh", h.handleProfileRefresh)
	mux.HandleFunc("/settings", h.handleSettings)
}

// ─── Auth actions ─────────────────────────────────────────────────────────

type credentialsRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RedirectTo string `json:"redirectTo,omitempty"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		jsonError(w, "email and password are required", http.StatusBadRequest)
		return
	}

	grant, err := h.authc.PasswordGrant(r.Context(), req.Email, req.Password)
	if err != nil {
		jsonError(w, auth.UserMessage(err), authStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		jsonError(w, "email and password are required", http.StatusBadRequest)
		return
	}

	grant, err := h.authc.SignUpGrant(r.Context(), req.Email, req.Password, req.RedirectTo)
	if err != nil {
		jsonError(w, auth.UserMessage(err), authStatus(err))
		return
	}
	writeJSON(w, http.StatusCreated, grant)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity, token, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	// The controller is torn down and local state cleared even when the
	// provider-side revoke fails — never leave a signed-in view behind.
	if err := h.authc.RevokeToken(r.Context(), token); err != nil {
		log.Printf("[dashboard] Token revoke failed for %s: %v", identity.ID, err)
	}
	h.mgr.Evict(r.Context(), identity.ID)

	writeJSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
}

// ─── Dashboard ────────────────────────────────────────────────────────────

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity, _, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	ctrl := h.mgr.Get(r.Context(), *identity)
	ctrl.SetFilter(r.URL.Query().Get("search"), r.URL.Query().Get("status"))
	writeJSON(w, http.StatusOK, ctrl.Snapshot())
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity, _, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	h.mgr.Get(r.Context(), *identity).Refresh()
	w.WriteHeader(http.StatusAccepted)
}

// handleEvents streams an SSE "invalidate" event on every snapshot change.
// Clients respond by re-requesting GET /dashboard; the stream itself never
// carries data.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity, _, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		jsonError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctrl := h.mgr.Get(r.Context(), *identity)

	events := make(chan struct{}, 1)
	unsubscribe := ctrl.OnInvalidate(func() {
		select {
		case events <- struct{}{}:
		default: // a signal is already pending — coalesce
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprint(w, "event: ready\ndata: {}\n\n")
	flusher.Flush()

	keepAlive := time.NewTicker(sseKeepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-events:
			fmt.Fprint(w, "event: invalidate\ndata: {}\n\n")
			flusher.Flush()
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}

func (h *Handler) handleApply(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity, _, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, "/dashboard/apply/")
	if jobID == "" || strings.Contains(jobID, "/") {
		jsonError(w, "invalid job id", http.StatusNotFound)
		return
	}

	ctrl := h.mgr.Get(r.Context(), *identity)
	if err := ctrl.Apply(jobID); err != nil {
		var ve *ValidationError
		switch {
		case errors.Is(err, ErrRowNotFound):
			jsonError(w, err.Error(), http.StatusNotFound)
		case errors.As(err, &ve):
			jsonError(w, ve.Msg, http.StatusUnprocessableEntity)
		default:
			log.Printf("[dashboard] Apply error for %s: %v", jobID, err)
			jsonError(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	// The optimistic transition already happened; persistence is
	// best-effort and not awaited.
	writeJSON(w, http.StatusAccepted, ctrl.Snapshot())
}

// ─── Profile & settings ───────────────────────────────────────────────────

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity, _, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	snap := h.mgr.Get(r.Context(), *identity).Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"profile":      snap.Profile,
		"profileState": snap.ProfileState,
	})
}

func (h *Handler) handleProfileRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity, _, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	h.mgr.Get(r.Context(), *identity).RefreshProfile()
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity, _, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var s store.Settings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		jsonError(w, "invalid settings payload", http.StatusBadRequest)
		return
	}

	if err := h.store.UpsertSettings(r.Context(), identity.ID, s); err != nil {
		log.Printf("[dashboard] Settings save failed for %s: %v", identity.ID, err)
		jsonError(w, "could not save settings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// ─── Helpers ──────────────────────────────────────────────────────────────

// requireAuth verifies the bearer token and returns the identity carried
// in its claims. Writes a 401 and returns ok=false on failure.
func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (*auth.Identity, string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		jsonError(w, "missing bearer token", http.StatusUnauthorized)
		return nil, "", false
	}

	token := strings.TrimPrefix(header, "Bearer ")
	identity, err := auth.VerifyAccessToken(h.secret, token)
	if err != nil {
		jsonError(w, "invalid or expired token", http.StatusUnauthorized)
		return nil, "", false
	}
	return identity, token, true
}

// authStatus maps auth error kinds to HTTP status codes.
func authStatus(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, auth.ErrAlreadyRegistered):
		return http.StatusConflict
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[dashboard] Response encode error: %v", err)
	}
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}
