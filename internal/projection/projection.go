// Package projection contains the pure transformation from raw match+job
// join rows to the display-ready view model, and from the view model to the
// aggregate status counters.
//
// It is transport- and storage-agnostic: no I/O, no clock, no side effects.
// The dashboard controller re-runs it in full on every fetch — rows and
// stats are always derived, never patched in place.
package projection

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/bhekumuzitshuma/jobsearch/internal/match"
)

// Fallbacks applied when a job attribute is missing. Jobs are scraped from
// external boards, so any field can be absent.
const (
	FallbackTitle       = "Unknown Title"
	FallbackCompany     = "Unknown Company"
	FallbackLocation    = "Location not specified"
	FallbackSalary      = "Salary not specified"
	FallbackType        = "Full-time"
	FallbackDescription = "No description available"
	FallbackSource      = "Job Board"
)

// dateLayout is the date-only form shown in the dashboard. Any time
// component on the source timestamp is truncated.
const dateLayout = "2006-01-02"

// Row is the flattened, display-ready join of a match and its job.
// Derived, never stored — regenerated whenever the match set changes.
type Row struct {
	MatchID      string       `json:"matchId"`
	JobID        string       `json:"jobId"`
	Title        string       `json:"title"`
	Company      string       `json:"company"`
	Location     string       `json:"location"`
	Salary       string       `json:"salary"`
	Type         string       `json:"type"`
	Description  string       `json:"description"`
	Requirements []string     `json:"requirements"`
	Source       string       `json:"source"`
	PostedDate   string       `json:"postedDate,omitempty"`
	Status       match.Status `json:"status"`
	AppliedDate  string       `json:"appliedDate,omitempty"`
	MatchScore   int          `json:"matchScore"`
	Reason       string       `json:"matchReason,omitempty"`
	ApplyContact string       `json:"applyContact,omitempty"`
}

// Stats holds the aggregate counts by status over the current match set.
// Always recomputed from scratch — incremental arithmetic drifts as soon as
// a row is deleted or corrected server-side.
type Stats struct {
	Total      int `json:"total"`
	Discovered int `json:"discovered"`
	Pending    int `json:"pending"`
	Applied    int `json:"applied"`
	Failed     int `json:"failed"`
}

// Project converts raw join rows into view-model rows, sorted by descending
// match score. The sort is stable: ties keep the order the store returned.
func Project(raw []match.RawRow) []Row {
	rows := make([]Row, 0, len(raw))
	for i := range raw {
		rows = append(rows, projectRow(&raw[i]))
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].MatchScore > rows[j].MatchScore
	})
	return rows
}

func projectRow(r *match.RawRow) Row {
	status := match.StatusDiscovered
	if r.Status != nil {
		if s, err := match.ParseStatus(*r.Status); err == nil {
			status = s
		}
	}

	return Row{
		MatchID:      r.MatchID,
		JobID:        r.JobID,
		Title:        orFallback(r.Title, FallbackTitle),
		Company:      orFallback(r.Company, FallbackCompany),
		Location:     orFallback(r.Location, FallbackLocation),
		Salary:       orFallback(r.Salary, FallbackSalary),
		Type:         orFallback(r.Type, FallbackType),
		Description:  orFallback(r.Description, FallbackDescription),
		Requirements: NormalizeRequirements(r.Requirements),
		Source:       orFallback(r.Source, FallbackSource),
		PostedDate:   dateOnly(r.PostedAt),
		Status:       status,
		AppliedDate:  dateOnly(r.AppliedAt),
		MatchScore:   r.Score,
		Reason:       deref(r.Reason),
		ApplyContact: deref(r.ApplyContact),
	}
}

// ComputeStats counts rows by status in a single pass. Callers must treat
// the result as a full replacement for any previously held Stats.
func ComputeStats(rows []Row) Stats {
	s := Stats{Total: len(rows)}
	for i := range rows {
		switch rows[i].Status {
		case match.StatusPending:
			s.Pending++
		case match.StatusApplied:
			s.Applied++
		case match.StatusFailed:
			s.Failed++
		default:
			s.Discovered++
		}
	}
	return s
}

// NormalizeRequirements turns the stored requirements value into an ordered
// list of strings. The source column is JSONB and historically holds either
// a JSON array of strings or a single newline-delimited string; both forms
// normalise to the same list.
func NormalizeRequirements(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return []string{}
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		out := make([]string, 0, len(list))
		for _, item := range list {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return out
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		out := []string{}
		for _, line := range strings.Split(single, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				out = append(out, line)
			}
		}
		return out
	}

	return []string{}
}

func orFallback(s *string, fallback string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return fallback
	}
	return *s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func dateOnly(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}
