// Package jobs contains the engine's scheduled jobs.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/progress-engine/config"
	"github.com/alem-hub/progress-engine/internal/application/query"
	"github.com/alem-hub/progress-engine/internal/application/saga"
	"github.com/alem-hub/progress-engine/internal/domain/activity"
	"github.com/alem-hub/progress-engine/internal/domain/report"
	"github.com/alem-hub/progress-engine/internal/domain/shared"
	"github.com/alem-hub/progress-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// AchievementEvaluator runs the achievement flow for one learner.
type AchievementEvaluator interface {
	Execute(ctx context.Context, input saga.AchievementFlowInput) (*saga.AchievementFlowResult, error)
}

// ReportProvider returns a learner's daily report, computing it when needed.
type ReportProvider interface {
	Handle(ctx context.Context, q query.GetDailyReportQuery) (*report.DailyReport, error)
}

// Locker serializes work on one learner across engine instances.
type Locker interface {
	TryLock(ctx context.Context, resource, owner string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, resource, owner string) error
}

// Features decides whether a feature is on for a learner.
type Features interface {
	IsEnabled(featureName, learnerID string) bool
}

// ══════════════════════════════════════════════════════════════════════════════
// PROCESS LEARNERS JOB
// ══════════════════════════════════════════════════════════════════════════════

// ProcessLearnersConfig contains configuration for the job.
type ProcessLearnersConfig struct {
	// Lookback is how far back the first run looks for activity.
	Lookback time.Duration

	// Concurrency limits learners processed in parallel.
	Concurrency int

	// LockTTL bounds how long a learner lock is held.
	LockTTL time.Duration

	// Owner identifies this instance in learner locks.
	Owner string

	// LearnerIDs, when set, replaces activity discovery.
	LearnerIDs []activity.LearnerID

	// Now overrides the clock in tests.
	Now func() time.Time
}

// DefaultProcessLearnersConfig returns sensible defaults.
func DefaultProcessLearnersConfig() ProcessLearnersConfig {
	return ProcessLearnersConfig{
		Lookback:    24 * time.Hour,
		Concurrency: 4,
		LockTTL:     2 * time.Minute,
		Owner:       "progress-engine",
		Now:         time.Now,
	}
}

// ProcessLearnersStats describes one run.
type ProcessLearnersStats struct {
	Since        time.Time
	Learners     int
	Locked       int // skipped: another instance holds the learner
	Unlocked     int // achievements unlocked
	Reports      int
	Failed       int
	WriteFailure int
	Retried      int // carried over from the previous run
}

// ProcessLearnersJob evaluates achievements and warms daily reports for
// learners with recent activity. Both operations are idempotent, so a learner
// seen twice is harmless. A run with failures does not advance its window.
// Learners whose unlock writes failed are carried into the next run even when
// the window moved past their activity.
type ProcessLearnersJob struct {
	lister       activity.ActiveLearnerLister
	achievements AchievementEvaluator
	reports      ReportProvider
	locker       Locker
	features     Features
	config       ProcessLearnersConfig

	mu        sync.Mutex
	since     time.Time
	pending   map[activity.LearnerID]struct{}
	lastStats ProcessLearnersStats
}

// NewProcessLearnersJob creates the job. locker and features may be nil.
func NewProcessLearnersJob(
	lister activity.ActiveLearnerLister,
	achievements AchievementEvaluator,
	reports ReportProvider,
	locker Locker,
	features Features,
	config ProcessLearnersConfig,
) *ProcessLearnersJob {
	defaults := DefaultProcessLearnersConfig()
	if config.Lookback <= 0 {
		config.Lookback = defaults.Lookback
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.LockTTL <= 0 {
		config.LockTTL = defaults.LockTTL
	}
	if config.Owner == "" {
		config.Owner = defaults.Owner
	}
	if config.Now == nil {
		config.Now = defaults.Now
	}
	return &ProcessLearnersJob{
		lister:       lister,
		achievements: achievements,
		reports:      reports,
		locker:       locker,
		features:     features,
		config:       config,
	}
}

// Name returns the job name.
func (j *ProcessLearnersJob) Name() string {
	return "process_learners"
}

// Description returns a human-readable description.
func (j *ProcessLearnersJob) Description() string {
	return "Evaluate achievements and refresh daily reports of recently active learners"
}

// LastStats returns the stats of the last completed run.
func (j *ProcessLearnersJob) LastStats() ProcessLearnersStats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastStats
}

// Run executes one pass. The scheduler attaches the run logger to ctx.
func (j *ProcessLearnersJob) Run(ctx context.Context) error {
	now := j.config.Now().UTC()
	log := logger.FromContext(ctx).With(logger.Component("process_learners"))

	j.mu.Lock()
	since := j.since
	pending := j.pending
	j.mu.Unlock()
	if since.IsZero() {
		since = now.Add(-j.config.Lookback)
	}

	learners, err := j.learners(ctx, since)
	if err != nil {
		return fmt.Errorf("failed to list active learners: %w", err)
	}
	learners = withPending(learners, pending)

	stats := ProcessLearnersStats{Since: since, Learners: len(learners), Retried: len(pending)}
	var (
		statsMu sync.Mutex
		errs    []error
		carry   = make(map[activity.LearnerID]struct{})
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.config.Concurrency)
	for _, id := range learners {
		id := id
		g.Go(func() error {
			res, err := j.processLearner(gctx, log, id, now)

			statsMu.Lock()
			defer statsMu.Unlock()
			stats.Locked += res.locked
			stats.Unlocked += res.unlocked
			stats.Reports += res.reports
			stats.WriteFailure += res.writeFailures
			if err != nil {
				stats.Failed++
				errs = append(errs, fmt.Errorf("learner %s: %w", id, err))
			}
			if res.writeFailures > 0 || (err != nil && !shared.IsValidation(err)) {
				carry[id] = struct{}{}
			}
			// Per-learner failures never cancel the others.
			return nil
		})
	}
	_ = g.Wait()

	j.mu.Lock()
	j.lastStats = stats
	j.pending = carry
	if len(errs) == 0 && ctx.Err() == nil {
		j.since = now
	}
	j.mu.Unlock()

	log.Info("learners processed",
		logger.Time("since", since),
		logger.Int("learners", stats.Learners),
		logger.Int("unlocked", stats.Unlocked),
		logger.Int("reports", stats.Reports),
		logger.Int("locked", stats.Locked),
		logger.Int("failed", stats.Failed),
		logger.Int("retry_next", len(carry)),
	)

	if err := ctx.Err(); err != nil {
		return err
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d learners failed: %w", len(errs), len(learners), errors.Join(errs...))
	}
	return nil
}

func (j *ProcessLearnersJob) learners(ctx context.Context, since time.Time) ([]activity.LearnerID, error) {
	if len(j.config.LearnerIDs) > 0 {
		return j.config.LearnerIDs, nil
	}
	if j.lister == nil {
		return nil, errors.New("no learner source configured")
	}
	return j.lister.ActiveLearners(ctx, since)
}

// withPending appends carried-over learners that discovery did not return.
func withPending(learners []activity.LearnerID, pending map[activity.LearnerID]struct{}) []activity.LearnerID {
	if len(pending) == 0 {
		return learners
	}
	seen := make(map[activity.LearnerID]struct{}, len(learners))
	out := make([]activity.LearnerID, 0, len(learners)+len(pending))
	for _, id := range learners {
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for id := range pending {
		if _, ok := seen[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

type learnerResult struct {
	locked        int
	unlocked      int
	reports       int
	writeFailures int
}

func (j *ProcessLearnersJob) processLearner(ctx context.Context, log *logger.Logger, id activity.LearnerID, now time.Time) (learnerResult, error) {
	var res learnerResult
	log = log.With(logger.LearnerID(id.String()))

	if j.locker != nil {
		resource := "learner:" + id.String()
		ok, err := j.locker.TryLock(ctx, resource, j.config.Owner, j.config.LockTTL)
		if err != nil {
			// Locks only prevent duplicate work; proceed without one.
			log.Warn("learner lock unavailable", logger.Err(err))
		} else if !ok {
			log.Debug("learner locked by another instance")
			res.locked = 1
			return res, nil
		} else {
			defer func() {
				if err := j.locker.Unlock(context.WithoutCancel(ctx), resource, j.config.Owner); err != nil {
					log.Warn("failed to release learner lock", logger.Err(err))
				}
			}()
		}
	}

	if j.achievements != nil && j.enabled(config.FeatureAchievements, id) {
		result, err := j.achievements.Execute(ctx, saga.AchievementFlowInput{LearnerID: id.String(), Now: now})
		if err != nil {
			return res, err
		}
		res.unlocked = len(result.Unlocked)
		res.writeFailures = result.WriteFailures
	}

	if j.reports != nil && j.enabled(config.FeatureDailyReports, id) {
		if _, err := j.reports.Handle(ctx, query.GetDailyReportQuery{LearnerID: id.String(), Now: now}); err != nil {
			return res, err
		}
		res.reports = 1
	}

	return res, nil
}

func (j *ProcessLearnersJob) enabled(feature string, id activity.LearnerID) bool {
	if j.features == nil {
		return true
	}
	return j.features.IsEnabled(feature, id.String())
}
