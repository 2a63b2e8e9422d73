// Package scheduler wires up the cron job that periodically publishes a
// match-change heartbeat. Realtime delivery is best-effort — a dashboard
// that missed a broker event stays stale until something nudges it; the
// heartbeat bounds that staleness without any client polling.
package scheduler

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"

	"github.com/bhekumuzitshuma/jobsearch/internal/realtime"
)

// Scheduler wraps robfig/cron and manages the resync heartbeat.
type Scheduler struct {
	cron      *cron.Cron
	publisher *realtime.Publisher
	spec      string // cron spec, e.g. "@every 30m"
}

// New creates a Scheduler that fires every intervalMinutes minutes.
func New(publisher *realtime.Publisher, intervalMinutes int) *Scheduler {
	return &Scheduler{
		cron:      cron.New(cron.WithLogger(cron.DefaultLogger)),
		publisher: publisher,
		spec:      fmt.Sprintf("@every %dm", intervalMinutes),
	}
}

// Start registers the heartbeat and starts the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		if err := s.publisher.AnnounceMatchChange(ctx, "resync-heartbeat"); err != nil {
			log.Printf("[scheduler] Heartbeat publish error: %v", err)
			return
		}
		log.Println("[scheduler] Resync heartbeat published")
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	log.Printf("[scheduler] Cron started — spec: %s", s.spec)
	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("[scheduler] Cron stopped")
}
