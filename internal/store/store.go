// Package store defines the data-store boundary consumed by the dashboard
// core, plus its PostgreSQL implementation.
//
// The schema itself is owned by the backend pipeline; this package only
// reads and writes the fields the dashboard needs.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/bhekumuzitshuma/jobsearch/internal/match"
)

// ErrProfileNotFound signals that no profile row exists for the user yet.
// This is an expected outcome for fresh accounts, not a transport failure —
// callers map it to the "confirmed absent" profile state.
var ErrProfileNotFound = errors.New("profile not found")

// Profile is the supplementary user-provided record keyed by identity id.
type Profile struct {
	UserID      string  `json:"userId"`
	FullName    string  `json:"fullName"`
	Phone       *string `json:"phone,omitempty"`
	CurrentRole *string `json:"currentRole,omitempty"`
	Experience  *string `json:"experience,omitempty"`
	Skills      *string `json:"skills,omitempty"`
}

// ResumeRef points at the user's uploaded CV used as the base for automated
// applications.
type ResumeRef struct {
	ID          string
	StoragePath string
	CreatedAt   time.Time
}

// ApplicationRecord is the persisted trace of an apply action.
type ApplicationRecord struct {
	ID        string
	UserID    string
	MatchID   string
	JobID     string
	ResumeID  string
	CreatedAt time.Time
}

// TaskRecord queues downstream processing (the application-sending
// pipeline) for an apply action.
type TaskRecord struct {
	ID        string
	UserID    string
	JobID     string
	ResumeID  string
	Type      string // e.g. "send_application"
	Status    string // inserted as "queued"
	CreatedAt time.Time
}

// Settings mirrors the account settings screen.
type Settings struct {
	ApplicationEmail        string `json:"applicationEmail"`
	AutoApply               bool   `json:"autoApply"`
	NotifyApplicationStatus bool   `json:"notifyApplicationStatus"`
	WeeklyDigest            bool   `json:"weeklyDigest"`
	MaxDailyApplications    int    `json:"maxDailyApplications"`
}

// Store is the read/write boundary to the backing database.
type Store interface {
	// SelectMatches returns the user's matches joined with their jobs,
	// ordered by descending score (ties newest first).
	SelectMatches(ctx context.Context, identityID string) ([]match.RawRow, error)

	// SelectProfile returns the user's profile, or ErrProfileNotFound when
	// no row exists yet.
	SelectProfile(ctx context.Context, identityID string) (*Profile, error)

	InsertApplication(ctx context.Context, rec ApplicationRecord) error
	InsertTask(ctx context.Context, rec TaskRecord) error

	// SelectLatestResume returns the most recently uploaded resume, or
	// (nil, nil) when the user has none.
	SelectLatestResume(ctx context.Context, identityID string) (*ResumeRef, error)

	UpsertSettings(ctx context.Context, identityID string, s Settings) error
}
