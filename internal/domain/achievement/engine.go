package achievement

import (
	"math"
	"sort"

	"github.com/alem-hub/progress-engine/internal/domain/progress"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE (Двухпроходная оценка)
// ══════════════════════════════════════════════════════════════════════════════

// RuleFailure records a definition that could not be evaluated.
type RuleFailure struct {
	Definition Definition
	Err        error
}

// Outcome is the result of one evaluation.
type Outcome struct {
	// Unlocked lists newly earned definitions in evaluation order.
	Unlocked []Definition

	// Failures lists definitions skipped because their rule failed.
	Failures []RuleFailure

	// Held is the accumulator after both passes: previously held IDs plus Unlocked.
	Held Set
}

// Engine evaluates the catalog against learner metrics.
type Engine struct {
	registry *Registry
}

// NewEngine creates an engine over a registry. A nil registry means DefaultRegistry.
func NewEngine(registry *Registry) *Engine {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Engine{registry: registry}
}

// Registry returns the registry used by the engine.
func (e *Engine) Registry() *Registry {
	return e.registry
}

type resolvedRule struct {
	def  Definition
	rule Rule
}

// Evaluate runs the base pass and then the meta pass. Definitions already in
// held are never evaluated. Base unlocks are threaded into the accumulator so
// the meta pass sees the updated count. The held set is not modified.
func (e *Engine) Evaluate(defs []Definition, metrics progress.Metrics, held Set) Outcome {
	base := e.EvaluatePhase(PhaseBase, defs, metrics, held)
	meta := e.EvaluatePhase(PhaseMeta, defs, metrics, base.Held)
	return Outcome{
		Unlocked: append(base.Unlocked, meta.Unlocked...),
		Failures: append(base.Failures, meta.Failures...),
		Held:     meta.Held,
	}
}

// EvaluatePhase runs a single pass. Callers that persist between passes use
// it to feed the meta pass only with unlocks that were actually stored.
// Definitions whose rule cannot be resolved are reported by the base pass.
//
// Meta rules run from the lowest required count up, so a meta unlock can
// satisfy a higher one regardless of catalog order.
func (e *Engine) EvaluatePhase(phase Phase, defs []Definition, metrics progress.Metrics, held Set) Outcome {
	var out Outcome
	var rules []resolvedRule

	for _, def := range defs {
		if held.Has(def.ID) {
			continue
		}
		rule, err := e.registry.Resolve(def)
		if err != nil {
			if phase == PhaseBase {
				out.Failures = append(out.Failures, RuleFailure{Definition: def, Err: err})
			}
			continue
		}
		if rule.Phase() == phase {
			rules = append(rules, resolvedRule{def: def, rule: rule})
		}
	}

	if phase == PhaseMeta {
		sort.SliceStable(rules, func(i, j int) bool {
			return requiredCount(rules[i].rule, len(defs)) < requiredCount(rules[j].rule, len(defs))
		})
	}

	out.Held = e.pass(rules, metrics, len(defs), held.Clone(), &out)
	return out
}

func (e *Engine) pass(rules []resolvedRule, metrics progress.Metrics, catalogSize int, acc Set, out *Outcome) Set {
	for _, r := range rules {
		ok, err := r.rule.Satisfied(Input{
			Metrics:       metrics,
			UnlockedCount: acc.Len(),
			CatalogSize:   catalogSize,
		})
		if err != nil {
			out.Failures = append(out.Failures, RuleFailure{Definition: r.def, Err: err})
			continue
		}
		if !ok {
			continue
		}
		acc = acc.With(r.def.ID)
		out.Unlocked = append(out.Unlocked, r.def)
	}
	return acc
}

// requiredCount is the unlocked count a meta rule needs. Unknown meta rules
// sort last and keep catalog order.
func requiredCount(rule Rule, catalogSize int) int {
	switch r := rule.(type) {
	case UnlockCount:
		return r.Min
	case CatalogCompletion:
		return catalogSize - r.Slack
	default:
		return math.MaxInt
	}
}
