package match

import (
	"encoding/json"
	"time"
)

// RawRow is one match joined with its job, exactly as the data store
// returns it. Job attributes are nullable — jobs come from external boards
// and arrive with gaps. The projection package is responsible for all
// fallbacks and normalisation; nothing here is display-ready.
type RawRow struct {
	MatchID string
	JobID   string
	Score   int

	// Match attributes
	Status    *string // nullable → projected as discovered
	AppliedAt *time.Time
	Reason    *string

	// Job attributes (read-only, externally sourced)
	Title        *string
	Company      *string
	Location     *string
	Salary       *string
	Type         *string
	Description  *string
	Requirements json.RawMessage // JSONB: array of strings or a newline-delimited string
	Source       *string
	PostedAt     *time.Time
	ApplyContact *string // email or URL
}
