// Package achievement contains the achievement catalog, the rule registry and
// the two-pass evaluation engine. Evaluation is a pure function of its inputs;
// persistence of unlocks lives behind Repository.
package achievement

import (
	"sort"
	"time"

	"github.com/alem-hub/progress-engine/internal/domain/activity"
)

// RuleKey is the stable dispatch key of an achievement rule.
// Titles are display strings and never drive evaluation.
type RuleKey string

// String returns the string representation of RuleKey.
func (k RuleKey) String() string {
	return string(k)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEFINITION
// ══════════════════════════════════════════════════════════════════════════════

// Definition is one entry of the achievement catalog.
type Definition struct {
	ID          string
	RuleKey     RuleKey
	Title       string
	Description string

	// Grade parametrizes the grade_graduate rule; nil for every other rule.
	Grade *int

	// Position keeps catalog order stable across stores.
	Position int
}

// SortDefinitions orders definitions by catalog position, then by ID.
func SortDefinitions(defs []Definition) {
	sort.SliceStable(defs, func(i, j int) bool {
		if defs[i].Position != defs[j].Position {
			return defs[i].Position < defs[j].Position
		}
		return defs[i].ID < defs[j].ID
	})
}

// Titles returns the display titles of definitions in order.
func Titles(defs []Definition) []string {
	out := make([]string, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.Title)
	}
	return out
}

// Unlock is a persisted unlock record. Once written it never changes.
type Unlock struct {
	LearnerID     activity.LearnerID
	AchievementID string
	UnlockedAt    time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// SET
// ══════════════════════════════════════════════════════════════════════════════

// Set is a set of achievement IDs.
type Set map[string]struct{}

// NewSet builds a Set from IDs.
func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set. A nil set is empty.
func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of IDs.
func (s Set) Len() int {
	return len(s)
}

// Clone returns an independent copy of the set.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// With returns a copy of the set that also contains id.
// The receiver is never modified.
func (s Set) With(id string) Set {
	out := s.Clone()
	out[id] = struct{}{}
	return out
}

// IDs returns the members in sorted order.
func (s Set) IDs() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
