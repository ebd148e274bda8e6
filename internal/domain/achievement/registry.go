package achievement

import (
	"fmt"
	"sort"
	"sync"

	"github.com/alem-hub/progress-engine/internal/domain/progress"
	"github.com/alem-hub/progress-engine/internal/domain/shared"
)

// Built-in rule keys.
const (
	KeyFirstSteps        RuleKey = "first_steps"
	KeyKnowledgeSeeker   RuleKey = "knowledge_seeker"
	KeyLessonMaster      RuleKey = "lesson_master"
	KeyTopicExplorer     RuleKey = "topic_explorer"
	KeyTopicConqueror    RuleKey = "topic_conqueror"
	KeyPerfectScore      RuleKey = "perfect_score"
	KeyPerfectionist     RuleKey = "perfectionist"
	KeyHighAchiever      RuleKey = "high_achiever"
	KeyAssessmentReady   RuleKey = "assessment_ready"
	KeyAssessmentAce     RuleKey = "assessment_ace"
	KeyOnARoll           RuleKey = "on_a_roll"
	KeyWeekWarrior       RuleKey = "week_warrior"
	KeyMonthlyMaster     RuleKey = "monthly_master"
	KeyDedicatedLearner  RuleKey = "dedicated_learner"
	KeyStudyMarathon     RuleKey = "study_marathon"
	KeyPowerHour         RuleKey = "power_hour"
	KeyNightOwl          RuleKey = "night_owl"
	KeyEarlyBird         RuleKey = "early_bird"
	KeyWeekendWarrior    RuleKey = "weekend_warrior"
	KeyFullWeekend       RuleKey = "full_weekend"
	KeyQuizSpree         RuleKey = "quiz_spree"
	KeySubjectSpecialist RuleKey = "subject_specialist"
	KeyGradeGraduate     RuleKey = "grade_graduate"
	KeyAllStar           RuleKey = "all_star"
	KeyHallOfFame        RuleKey = "hall_of_fame"
	KeyLegendary         RuleKey = "legendary"
)

// Factory builds the rule of a definition.
type Factory func(def Definition) (Rule, error)

// Registry maps rule keys to rule factories. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[RuleKey]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[RuleKey]Factory)}
}

// Register binds a factory to a key, replacing any previous binding.
func (r *Registry) Register(key RuleKey, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[key] = f
}

// Has reports whether key is registered.
func (r *Registry) Has(key RuleKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[key]
	return ok
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []RuleKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RuleKey, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Resolve builds the rule for a definition.
func (r *Registry) Resolve(def Definition) (Rule, error) {
	r.mu.RLock()
	f, ok := r.factories[def.RuleKey]
	r.mu.RUnlock()
	if !ok {
		return nil, shared.NewDomainError("achievement", "Resolve", shared.ErrUnknownRule,
			fmt.Sprintf("no rule registered for key %q", def.RuleKey))
	}
	return f(def)
}

// ══════════════════════════════════════════════════════════════════════════════
// BUILT-IN RULES
// ══════════════════════════════════════════════════════════════════════════════

func threshold(pred func(m progress.Metrics) bool) Factory {
	return func(Definition) (Rule, error) {
		return Threshold{Predicate: pred}, nil
	}
}

func static(rule Rule) Factory {
	return func(Definition) (Rule, error) {
		return rule, nil
	}
}

func gradeGraduate(def Definition) (Rule, error) {
	if def.Grade == nil || *def.Grade <= 0 {
		return nil, shared.WrapError("achievement", "Resolve", shared.ErrRuleEvaluation,
			fmt.Sprintf("definition %q has no valid grade", def.ID), shared.ErrInvalidGrade)
	}
	return GradeGraduate{Grade: *def.Grade}, nil
}

// DefaultRegistry returns a registry with every built-in rule.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	// Уроки и темы
	r.Register(KeyFirstSteps, threshold(func(m progress.Metrics) bool { return m.CompletedLessonCount >= 1 }))
	r.Register(KeyKnowledgeSeeker, threshold(func(m progress.Metrics) bool { return m.CompletedLessonCount >= 10 }))
	r.Register(KeyLessonMaster, threshold(func(m progress.Metrics) bool { return m.CompletedLessonCount >= 50 }))
	r.Register(KeyTopicExplorer, threshold(func(m progress.Metrics) bool { return m.CompletedTopicCount >= 1 }))
	r.Register(KeyTopicConqueror, threshold(func(m progress.Metrics) bool { return m.CompletedTopicCount >= 10 }))

	// Тесты
	r.Register(KeyPerfectScore, threshold(func(m progress.Metrics) bool { return m.PerfectScoreCount >= 1 }))
	r.Register(KeyPerfectionist, threshold(func(m progress.Metrics) bool { return m.PerfectScoreCount >= 5 }))
	r.Register(KeyHighAchiever, threshold(func(m progress.Metrics) bool { return m.HighScoreCount >= 10 }))
	r.Register(KeyAssessmentReady, threshold(func(m progress.Metrics) bool { return m.AssessmentAttempts >= 1 }))
	r.Register(KeyAssessmentAce, threshold(func(m progress.Metrics) bool { return m.AssessmentHasPerfect }))
	r.Register(KeyQuizSpree, threshold(func(m progress.Metrics) bool { return m.QuizAttemptsToday >= 5 }))

	// Регулярность
	r.Register(KeyOnARoll, threshold(func(m progress.Metrics) bool { return m.StudyStreakDays >= 3 }))
	r.Register(KeyWeekWarrior, threshold(func(m progress.Metrics) bool { return m.StudyStreakDays >= 7 }))
	r.Register(KeyMonthlyMaster, threshold(func(m progress.Metrics) bool { return m.StudyStreakDays >= 30 }))

	// Время учёбы
	r.Register(KeyDedicatedLearner, threshold(func(m progress.Metrics) bool { return m.TotalStudyHours >= 10 }))
	r.Register(KeyStudyMarathon, threshold(func(m progress.Metrics) bool { return m.TotalStudyHours >= 50 }))
	r.Register(KeyPowerHour, threshold(func(m progress.Metrics) bool { return m.TodayTotalMinutes >= 60 }))
	r.Register(KeyNightOwl, threshold(func(m progress.Metrics) bool { return m.HasNightStudy }))
	r.Register(KeyEarlyBird, threshold(func(m progress.Metrics) bool { return m.HasEarlyStudy }))
	r.Register(KeyWeekendWarrior, threshold(func(m progress.Metrics) bool { return m.HasWeekendStudy }))
	r.Register(KeyFullWeekend, threshold(func(m progress.Metrics) bool { return m.HasBothWeekendDays }))

	// Каталог
	r.Register(KeySubjectSpecialist, static(SubjectSpecialist{}))
	r.Register(KeyGradeGraduate, gradeGraduate)

	// Мета
	r.Register(KeyAllStar, static(UnlockCount{Min: 10}))
	r.Register(KeyHallOfFame, static(UnlockCount{Min: 25}))
	r.Register(KeyLegendary, static(CatalogCompletion{Slack: 1}))

	return r
}
