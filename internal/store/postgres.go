package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bhekumuzitshuma/jobsearch/internal/match"
)

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres returns a Store backed by the given pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// SelectMatches joins matches with their jobs for one user. Jobs are
// scraped externally, so every job column is treated as nullable.
func (p *Postgres) SelectMatches(ctx context.Context, identityID string) ([]match.RawRow, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT m.id, m.job_id, m.score, m.status, m.applied_at, m.reason,
		        j.title, j.company, j.location, j.salary, j.type, j.description,
		        j.requirements, j.source, j.posted_at, j.apply_contact
		 FROM matches m
		 JOIN jobs j ON j.id = m.job_id
		 WHERE m.user_id = $1
		 ORDER BY m.score DESC, m.created_at DESC`,
		identityID,
	)
	if err != nil {
		return nil, fmt.Errorf("selectMatches query: %w", err)
	}
	defer rows.Close()

	out := make([]match.RawRow, 0)
	for rows.Next() {
		var r match.RawRow
		if err := rows.Scan(
			&r.MatchID, &r.JobID, &r.Score, &r.Status, &r.AppliedAt, &r.Reason,
			&r.Title, &r.Company, &r.Location, &r.Salary, &r.Type, &r.Description,
			&r.Requirements, &r.Source, &r.PostedAt, &r.ApplyContact,
		); err != nil {
			return nil, fmt.Errorf("selectMatches scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SelectProfile returns the user's profile row, mapping "no rows" to
// ErrProfileNotFound so callers can tell absence from transport failure.
func (p *Postgres) SelectProfile(ctx context.Context, identityID string) (*Profile, error) {
	var prof Profile
	err := p.pool.QueryRow(ctx,
		`SELECT user_id, full_name, phone, "current_role", experience, skills
		 FROM profiles
		 WHERE user_id = $1`,
		identityID,
	).Scan(&prof.UserID, &prof.FullName, &prof.Phone, &prof.CurrentRole, &prof.Experience, &prof.Skills)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("selectProfile: %w", err)
	}
	return &prof, nil
}

// InsertApplication records an apply action.
func (p *Postgres) InsertApplication(ctx context.Context, rec ApplicationRecord) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO applications (id, user_id, match_id, job_id, resume_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.UserID, rec.MatchID, rec.JobID, rec.ResumeID, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insertApplication: %w", err)
	}
	return nil
}

// InsertTask enqueues downstream processing for an apply action.
func (p *Postgres) InsertTask(ctx context.Context, rec TaskRecord) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO tasks (id, user_id, job_id, resume_id, type, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.UserID, rec.JobID, rec.ResumeID, rec.Type, rec.Status, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insertTask: %w", err)
	}
	return nil
}

// SelectLatestResume returns the newest resume row, or (nil, nil) when the
// user has not uploaded one.
func (p *Postgres) SelectLatestResume(ctx context.Context, identityID string) (*ResumeRef, error) {
	var ref ResumeRef
	err := p.pool.QueryRow(ctx,
		`SELECT id, storage_path, created_at
		 FROM resumes
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT 1`,
		identityID,
	).Scan(&ref.ID, &ref.StoragePath, &ref.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("selectLatestResume: %w", err)
	}
	return &ref, nil
}

// UpsertSettings writes the account settings row for a user.
func (p *Postgres) UpsertSettings(ctx context.Context, identityID string, s Settings) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO user_settings
		   (user_id, application_email, auto_apply, notify_application_status,
		    weekly_digest, max_daily_applications, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 ON CONFLICT (user_id) DO UPDATE SET
		   application_email         = EXCLUDED.application_email,
		   auto_apply                = EXCLUDED.auto_apply,
		   notify_application_status = EXCLUDED.notify_application_status,
		   weekly_digest             = EXCLUDED.weekly_digest,
		   max_daily_applications    = EXCLUDED.max_daily_applications,
		   updated_at                = NOW()`,
		identityID, s.ApplicationEmail, s.AutoApply, s.NotifyApplicationStatus,
		s.WeeklyDigest, s.MaxDailyApplications,
	)
	if err != nil {
		return fmt.Errorf("upsertSettings: %w", err)
	}
	return nil
}
