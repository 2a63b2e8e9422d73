package dashboard

import (
	"strings"

	"github.com/bhekumuzitshuma/jobsearch/internal/projection"
)

// FilterRows applies the search term and status filter to already-fetched
// rows. Pure function of its inputs: same arguments, same output, and it
// never touches the network — filtering is always a local recomputation.
//
// The search term matches case-insensitively as a substring of title,
// company or location; the status filter is an exact match unless it is
// empty or "all". Both conditions must hold.
func FilterRows(rows []projection.Row, searchTerm, statusFilter string) []projection.Row {
	term := strings.ToLower(strings.TrimSpace(searchTerm))
	byStatus := statusFilter != "" && statusFilter != StatusFilterAll

	out := make([]projection.Row, 0, len(rows))
	for i := range rows {
		r := &rows[i]
		if term != "" && !matchesTerm(r, term) {
			continue
		}
		if byStatus && string(r.Status) != statusFilter {
			continue
		}
		out = append(out, *r)
	}
	return out
}

func matchesTerm(r *projection.Row, term string) bool {
	return strings.Contains(strings.ToLower(r.Title), term) ||
		strings.Contains(strings.ToLower(r.Company), term) ||
		strings.Contains(strings.ToLower(r.Location), term)
}
