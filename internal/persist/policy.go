// Package persist is the single-consumer stage between a merged record
// stream and the store. It deduplicates records on their natural key against
// a snapshot of stored keys plus the keys written earlier in the same run,
// and turns the survivors into one change set committed atomically.
package persist

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Policy decides what happens to a record whose key is already stored.
type Policy string

const (
	// PolicySkip keeps the stored row untouched.
	PolicySkip Policy = "skip"
	// PolicyOverwrite replaces the stored row in place.
	PolicyOverwrite Policy = "overwrite"
)

// ParsePolicy accepts "skip" or "overwrite", case-insensitively. An empty
// string means PolicySkip.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicySkip:
		return PolicySkip, nil
	case PolicyOverwrite:
		return PolicyOverwrite, nil
	default:
		return "", eris.Errorf("persist: unknown update policy %q (want skip or overwrite)", s)
	}
}

// Action is the outcome of Decide.
type Action int

const (
	// Insert stages the record as a new row.
	Insert Action = iota
	// Update stages the record as an overwrite of a stored row.
	Update
	// Skip drops the record.
	Skip
)

func (a Action) String() string {
	switch a {
	case Insert:
		return "insert"
	case Update:
		return "update"
	default:
		return "skip"
	}
}
