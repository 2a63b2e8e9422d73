// Package match defines the job-match domain model shared by the store,
// the projection and the dashboard controller.
//
// Valid status graph:
//
//	discovered ──► pending ──► applied
//	                  │
//	                  └──────► failed
//
// applied and failed are terminal states.
package match

import "fmt"

// Status values mirror the match_status enum in PostgreSQL.
type Status string

const (
	StatusDiscovered Status = "discovered"
	StatusPending    Status = "pending"
	StatusApplied    Status = "applied"
	StatusFailed     Status = "failed"
)

// validTransitions lists every allowed (from → to) pair.
var validTransitions = map[Status][]Status{
	StatusDiscovered: {StatusPending},
	StatusPending:    {StatusApplied, StatusFailed},
	// applied and failed are terminal — no outgoing transitions
}

// ParseStatus converts a raw string to a Status, returning an error for
// unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusDiscovered, StatusPending, StatusApplied, StatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown match status %q", s)
}

// IsTransitionAllowed returns true when moving from → to is permitted by the
// state machine. There are no reverse transitions.
func IsTransitionAllowed(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false // terminal state — no outgoing transitions
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// RequiresAppliedAt returns true for statuses that must carry an applied
// timestamp (pending, applied, failed). discovered must not carry one.
func RequiresAppliedAt(s Status) bool { return s != StatusDiscovered }
