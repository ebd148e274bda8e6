package achievement

import (
	"github.com/alem-hub/progress-engine/internal/domain/progress"
	"github.com/alem-hub/progress-engine/internal/domain/shared"
)

// Phase selects the evaluation pass of a rule.
type Phase int

const (
	// PhaseBase rules look only at learner metrics.
	PhaseBase Phase = iota + 1
	// PhaseMeta rules look at the number of unlocked achievements.
	PhaseMeta
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseBase:
		return "base"
	case PhaseMeta:
		return "meta"
	default:
		return "unknown"
	}
}

// Input is everything a rule may inspect.
type Input struct {
	Metrics progress.Metrics

	// UnlockedCount is the size of the accumulator at the time of evaluation.
	UnlockedCount int

	// CatalogSize is the number of achievement definitions.
	CatalogSize int
}

// Rule decides whether an achievement is earned.
type Rule interface {
	Phase() Phase
	Satisfied(in Input) (bool, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// VARIANTS
// ══════════════════════════════════════════════════════════════════════════════

// Threshold is a base rule backed by a predicate over metrics.
type Threshold struct {
	Predicate func(m progress.Metrics) bool
}

// Phase implements Rule.
func (Threshold) Phase() Phase { return PhaseBase }

// Satisfied implements Rule.
func (r Threshold) Satisfied(in Input) (bool, error) {
	if r.Predicate == nil {
		return false, shared.NewDomainError("achievement", "Satisfied", shared.ErrRuleEvaluation, "threshold rule without predicate")
	}
	return r.Predicate(in.Metrics), nil
}

// GradeGraduate is satisfied when every catalog topic of Grade is completed.
type GradeGraduate struct {
	Grade int
}

// Phase implements Rule.
func (GradeGraduate) Phase() Phase { return PhaseBase }

// Satisfied implements Rule.
func (r GradeGraduate) Satisfied(in Input) (bool, error) {
	if r.Grade <= 0 {
		return false, shared.ErrInvalidGrade
	}
	return in.Metrics.HasCompletedGrade(r.Grade), nil
}

// SubjectSpecialist is satisfied when some subject is fully completed.
type SubjectSpecialist struct{}

// Phase implements Rule.
func (SubjectSpecialist) Phase() Phase { return PhaseBase }

// Satisfied implements Rule.
func (SubjectSpecialist) Satisfied(in Input) (bool, error) {
	return in.Metrics.HasCompletedSubject(), nil
}

// UnlockCount is a meta rule over the number of unlocked achievements.
type UnlockCount struct {
	Min int
}

// Phase implements Rule.
func (UnlockCount) Phase() Phase { return PhaseMeta }

// Satisfied implements Rule.
func (r UnlockCount) Satisfied(in Input) (bool, error) {
	return in.UnlockedCount >= r.Min, nil
}

// CatalogCompletion is satisfied when the learner holds all but Slack
// achievements of the catalog.
type CatalogCompletion struct {
	Slack int
}

// Phase implements Rule.
func (CatalogCompletion) Phase() Phase { return PhaseMeta }

// Satisfied implements Rule.
func (r CatalogCompletion) Satisfied(in Input) (bool, error) {
	if in.CatalogSize <= 0 {
		return false, nil
	}
	return in.UnlockedCount >= in.CatalogSize-r.Slack, nil
}
