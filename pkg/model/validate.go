package model

import "math"

// ErrorCategory is the closed set of structural violation categories.
type ErrorCategory string

const (
	ErrDuplicateID     ErrorCategory = "duplicate_id"
	ErrMissingEndpoint ErrorCategory = "missing_endpoint"
	ErrInvalidPosition ErrorCategory = "invalid_position"
)

// ValidationError reports one structural violation and the offending id.
type ValidationError struct {
	Category ErrorCategory `json:"category"`
	ID       string        `json:"id"`
	Detail   string        `json:"detail,omitempty"`
}

// Validation is the structural integrity verdict for a graph model.
type Validation struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors"`
}

// Validate checks structural integrity of the nodes and edges: unique node
// ids, edge endpoints contained in knownIDs, and finite positions. All
// violations are collected; nothing short-circuits. When knownIDs is nil the
// node id set is derived from the nodes themselves.
//
// The checks are deliberately ignorant of graph semantics so the function
// can be exercised against hand-constructed fixtures.
func Validate(nodes []Node, edges []Edge, knownIDs map[string]struct{}) Validation {
	v := Validation{Valid: true, Errors: make([]ValidationError, 0)}

	seen := make(map[string]bool, len(nodes))
	reported := make(map[string]bool)
	for _, n := range nodes {
		id := n.Data.ID
		if seen[id] && !reported[id] {
			v.Errors = append(v.Errors, ValidationError{
				Category: ErrDuplicateID,
				ID:       id,
				Detail:   "node id occurs more than once",
			})
			reported[id] = true
		}
		seen[id] = true
	}

	if knownIDs == nil {
		knownIDs = make(map[string]struct{}, len(nodes))
		for _, n := range nodes {
			knownIDs[n.Data.ID] = struct{}{}
		}
	}

	for _, e := range edges {
		if _, ok := knownIDs[e.Source]; !ok {
			v.Errors = append(v.Errors, ValidationError{
				Category: ErrMissingEndpoint,
				ID:       e.ID,
				Detail:   "source " + e.Source + " not in node set",
			})
		}
		if _, ok := knownIDs[e.Target]; !ok {
			v.Errors = append(v.Errors, ValidationError{
				Category: ErrMissingEndpoint,
				ID:       e.ID,
				Detail:   "target " + e.Target + " not in node set",
			})
		}
	}

	for _, n := range nodes {
		if !isFinite(n.Position.X) || !isFinite(n.Position.Y) {
			v.Errors = append(v.Errors, ValidationError{
				Category: ErrInvalidPosition,
				ID:       n.Data.ID,
				Detail:   "position is not finite",
			})
		}
	}

	v.Valid = len(v.Errors) == 0
	return v
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
