// Package saga contains business processes that orchestrate
// multiple domain operations in a coordinated manner.
package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/progress-engine/internal/application/query"
	"github.com/alem-hub/progress-engine/internal/domain/achievement"
	"github.com/alem-hub/progress-engine/internal/domain/activity"
	"github.com/alem-hub/progress-engine/internal/domain/progress"
	"github.com/alem-hub/progress-engine/internal/domain/shared"
	"github.com/alem-hub/progress-engine/pkg/logger"
	"github.com/alem-hub/progress-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT FLOW SAGA
// Flow: Load Learner Data → Compute Metrics → Base Rules → Persist →
//       Meta Rules → Persist
//
// Meta rules count only unlocks that are stored. Partial completion is valid:
// unlocks already written stand, unwritten ones are picked up by the next run.
// ══════════════════════════════════════════════════════════════════════════════

// AchievementFlowInput contains data needed to evaluate achievements.
type AchievementFlowInput struct {
	// LearnerID - UUID of the learner.
	LearnerID string

	// Now - evaluation instant, also used as the unlock timestamp.
	Now time.Time
}

// Validate checks if the input is valid.
func (i AchievementFlowInput) Validate() (activity.LearnerID, error) {
	if i.Now.IsZero() {
		return "", shared.NewDomainError("achievement", "Validate", shared.ErrInvalidInput, "now is required")
	}
	return query.ValidateLearnerID(i.LearnerID)
}

// AchievementFlowResult contains the result of one evaluation.
type AchievementFlowResult struct {
	// LearnerID - the learner evaluated.
	LearnerID activity.LearnerID

	// Unlocked - titles unlocked by this call, in evaluation order.
	// Empty does not mean the learner holds no achievements.
	Unlocked []string

	// RuleFailures - definitions skipped because their rule failed.
	RuleFailures int

	// WriteFailures - unlocks that could not be persisted.
	WriteFailures int

	// ProcessedAt - evaluation instant.
	ProcessedAt time.Time
}

// HasNewAchievements returns true if any achievements were unlocked.
func (r *AchievementFlowResult) HasNewAchievements() bool {
	return len(r.Unlocked) > 0
}

// AchievementFlowStep represents a step in the achievement flow.
type AchievementFlowStep string

const (
	StepValidate            AchievementFlowStep = "validate"
	StepLoadLearner         AchievementFlowStep = "load_learner"
	StepComputeMetrics      AchievementFlowStep = "compute_metrics"
	StepEvaluateBase        AchievementFlowStep = "evaluate_base"
	StepPersistBase         AchievementFlowStep = "persist_base"
	StepEvaluateMeta        AchievementFlowStep = "evaluate_meta"
	StepPersistMeta         AchievementFlowStep = "persist_meta"
	StepAchievementComplete AchievementFlowStep = "complete"
)

// AchievementFlowState tracks the current state of the saga.
type AchievementFlowState struct {
	CurrentStep AchievementFlowStep
	LearnerID   activity.LearnerID
	Now         time.Time
	Data        query.LearnerData
	Metrics     progress.Metrics
	Stored      achievement.Set
	Failures    []achievement.RuleFailure
	Persisted   []achievement.Definition
	WriteFailed int
	Error       error
	FailedStep  AchievementFlowStep
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT FLOW SAGA IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AchievementFlowConfig contains configuration for the achievement flow saga.
type AchievementFlowConfig struct {
	// Location defines calendar days for metrics.
	Location *time.Location

	// Retrier is used for unlock writes. Nil means one retry.
	Retrier *retry.Retrier
}

// DefaultAchievementFlowConfig returns default configuration.
func DefaultAchievementFlowConfig() AchievementFlowConfig {
	return AchievementFlowConfig{Location: time.UTC}
}

// AchievementFlow orchestrates evaluation and persistence of unlocks.
type AchievementFlow struct {
	loader   *query.LearnerLoader
	repo     achievement.Repository
	engine   *achievement.Engine
	location *time.Location
	retrier  *retry.Retrier
	log      *logger.Logger
	recorder query.Recorder
}

// NewAchievementFlow creates a new achievement flow saga.
func NewAchievementFlow(
	loader *query.LearnerLoader,
	repo achievement.Repository,
	engine *achievement.Engine,
	config AchievementFlowConfig,
	log *logger.Logger,
	recorder query.Recorder,
) *AchievementFlow {
	if engine == nil {
		engine = achievement.NewEngine(nil)
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if log == nil {
		log = logger.Nop()
	}
	if recorder == nil {
		recorder = query.NopRecorder{}
	}
	log = log.With(logger.Component("achievement_flow"), logger.Operation("evaluate_and_unlock"))
	retrier := config.Retrier
	if retrier == nil {
		retrier = retry.StoreWriteRetrier(shared.IsRetryable, retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			log.Warn("retrying unlock write", logger.Int("attempt", attempt), logger.Duration("delay", delay), logger.Err(err))
		}))
	}
	return &AchievementFlow{
		loader:   loader,
		repo:     repo,
		engine:   engine,
		location: config.Location,
		retrier:  retrier,
		log:      log,
		recorder: recorder,
	}
}

// Execute evaluates the catalog for a learner and persists new unlocks.
func (s *AchievementFlow) Execute(ctx context.Context, input AchievementFlowInput) (*AchievementFlowResult, error) {
	state := &AchievementFlowState{CurrentStep: StepValidate, Now: input.Now}

	learnerID, err := input.Validate()
	if err != nil {
		state.FailedStep = StepValidate
		state.Error = err
		return nil, s.wrapError(state, err)
	}
	state.LearnerID = learnerID

	// Step 1: Load learner data
	state.CurrentStep = StepLoadLearner
	if err := s.stepLoadLearner(ctx, state); err != nil {
		return nil, s.wrapError(state, err)
	}

	// Step 2: Compute metrics
	state.CurrentStep = StepComputeMetrics
	state.Metrics = progress.ComputeMetrics(state.Data.Snapshot, state.Now, s.location)

	state.Stored = state.Data.Unlocked.Clone()

	// Step 3: Base rules
	state.CurrentStep = StepEvaluateBase
	base := s.stepEvaluate(state, achievement.PhaseBase)

	state.CurrentStep = StepPersistBase
	s.stepPersistUnlocks(ctx, state, base)

	// Step 4: Meta rules over what was stored
	state.CurrentStep = StepEvaluateMeta
	meta := s.stepEvaluate(state, achievement.PhaseMeta)

	state.CurrentStep = StepPersistMeta
	s.stepPersistUnlocks(ctx, state, meta)

	state.CurrentStep = StepAchievementComplete
	return &AchievementFlowResult{
		LearnerID:     state.LearnerID,
		Unlocked:      achievement.Titles(state.Persisted),
		RuleFailures:  len(state.Failures),
		WriteFailures: state.WriteFailed,
		ProcessedAt:   state.Now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SAGA STEPS
// ══════════════════════════════════════════════════════════════════════════════

// stepLoadLearner loads activity, catalog and unlocks. Any failure is fatal.
func (s *AchievementFlow) stepLoadLearner(ctx context.Context, state *AchievementFlowState) error {
	data, err := s.loader.Load(ctx, state.LearnerID)
	if err != nil {
		state.FailedStep = StepLoadLearner
		state.Error = err
		return err
	}
	state.Data = data
	return nil
}

// stepEvaluate runs one engine pass against the stored set and logs skipped rules.
func (s *AchievementFlow) stepEvaluate(state *AchievementFlowState, phase achievement.Phase) []achievement.Definition {
	outcome := s.engine.EvaluatePhase(phase, state.Data.Definitions, state.Metrics, state.Stored)
	state.Failures = append(state.Failures, outcome.Failures...)

	for _, f := range outcome.Failures {
		s.recorder.RuleFailed(f.Definition.RuleKey.String())
		s.log.Warn("achievement rule skipped",
			logger.LearnerID(state.LearnerID.String()),
			logger.AchievementID(f.Definition.ID),
			logger.RuleKey(f.Definition.RuleKey.String()),
			logger.Err(f.Err),
		)
	}
	return outcome.Unlocked
}

// stepPersistUnlocks writes each unlock independently. A failed write is
// logged and skipped; a lost race is success but not reported.
func (s *AchievementFlow) stepPersistUnlocks(ctx context.Context, state *AchievementFlowState, defs []achievement.Definition) {
	for _, def := range defs {
		inserted, err := retry.DoWithData(ctx, s.retrier, func(ctx context.Context) (bool, error) {
			return s.repo.Unlock(ctx, state.LearnerID, def.ID, state.Now)
		})

		log := s.log.With(
			logger.LearnerID(state.LearnerID.String()),
			logger.AchievementID(def.ID),
			logger.RuleKey(def.RuleKey.String()),
		)
		if err != nil {
			state.WriteFailed++
			s.recorder.UnlockWriteFailed()
			log.Error("failed to persist unlock", logger.Err(fmt.Errorf("%w: %w", shared.ErrUnlockFailed, err)))
			continue
		}
		state.Stored = state.Stored.With(def.ID)
		if !inserted {
			log.Debug("unlock already recorded")
			continue
		}

		state.Persisted = append(state.Persisted, def)
		s.recorder.AchievementUnlocked(def.RuleKey.String())
		log.Info("achievement unlocked", logger.String("title", def.Title))
	}
}

// wrapError wraps an error with saga context.
func (s *AchievementFlow) wrapError(state *AchievementFlowState, err error) error {
	return fmt.Errorf("achievement_flow[%s]: %w", state.FailedStep, err)
}
