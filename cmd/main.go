// jobsearch dashboard-service
//
// Session & live-match synchronization core for the job-search dashboard.
// Holds, per signed-in user, the reconciled dashboard state (identity,
// profile, projected matches, stats) and serves it over HTTP + SSE:
//   - auth actions (login / signup / logout) proxied to the auth API
//   - GET /dashboard          — filtered snapshot of projected matches
//   - GET /dashboard/events   — SSE invalidation stream
//   - POST /dashboard/apply   — optimistic apply with best-effort persistence
//   - settings / profile endpoints
//
// Subscribes to Redis pub/sub for match-change events; publishes the same
// event after successful apply persistence and on the resync heartbeat.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bhekumuzitshuma/jobsearch/internal/auth"
	"github.com/bhekumuzitshuma/jobsearch/internal/config"
	"github.com/bhekumuzitshuma/jobsearch/internal/dashboard"
	"github.com/bhekumuzitshuma/jobsearch/internal/db"
	"github.com/bhekumuzitshuma/jobsearch/internal/realtime"
	"github.com/bhekumuzitshuma/jobsearch/internal/scheduler"
	"github.com/bhekumuzitshuma/jobsearch/internal/store"
)

const version = "1.0.0"

func main() {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[dashboard-service] Config error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── PostgreSQL ───────────────────────────────────────────────────────────
	log.Println("[dashboard-service] Connecting to PostgreSQL…")
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[dashboard-service] PostgreSQL: %v", err)
	}
	defer pool.Close()
	log.Println("[dashboard-service] PostgreSQL connected ✓")

	// ── Redis ────────────────────────────────────────────────────────────────
	log.Println("[dashboard-service] Connecting to Redis…")
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("[dashboard-service] Redis: %v", err)
	}
	defer rdb.Close()
	log.Println("[dashboard-service] Redis connected ✓")

	// ── Core wiring ──────────────────────────────────────────────────────────
	st := store.NewPostgres(pool)
	channels := realtime.NewRedisProvider(rdb)
	publisher := realtime.NewPublisher(rdb)
	authc := auth.NewClient(cfg.AuthURL, cfg.AuthAPIKey, []byte(cfg.JWTSecret))

	mgr := dashboard.NewManager(st, channels, publisher)
	defer mgr.CloseAll()

	// ── Resync heartbeat ─────────────────────────────────────────────────────
	sched := scheduler.New(publisher, cfg.ResyncIntervalMinutes)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("[dashboard-service] Scheduler: %v", err)
	}
	defer sched.Stop()

	// ── HTTP server ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)

	h := dashboard.NewHandler(mgr, authc, st, []byte(cfg.JWTSecret))
	h.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: /dashboard/events holds SSE streams open.
	}

	go func() {
		log.Printf("[dashboard-service] v%s listening on :%s", version, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[dashboard-service] HTTP server error: %v", err)
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[dashboard-service] Shutting down…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[dashboard-service] Shutdown error: %v", err)
	}
	log.Println("[dashboard-service] Stopped.")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": "dashboard-service",
		"version": version,
	})
}
