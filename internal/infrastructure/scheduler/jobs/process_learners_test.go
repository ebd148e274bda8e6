package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/progress-engine/config"
	"github.com/alem-hub/progress-engine/internal/application/query"
	"github.com/alem-hub/progress-engine/internal/application/saga"
	"github.com/alem-hub/progress-engine/internal/domain/achievement"
	"github.com/alem-hub/progress-engine/internal/domain/activity"
	"github.com/alem-hub/progress-engine/internal/domain/shared"
	"github.com/alem-hub/progress-engine/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/progress-engine/pkg/retry"
)

const (
	alice = activity.LearnerID("0b6f4c3a-1d2e-4f5a-8b9c-0d1e2f3a4b5c")
	bob   = activity.LearnerID("7c8d9e0f-1a2b-4c3d-9e4f-5a6b7c8d9e0f")
)

var now = time.Date(2025, 6, 18, 15, 0, 0, 0, time.UTC)

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	s.SetCatalog(
		[]activity.Topic{{ID: "t1", Name: "Fractions", SubjectID: "math"}},
		[]activity.Subject{{ID: "math", Name: "Math"}},
		nil,
	)
	require.NoError(t, s.UpsertDefinitions(context.Background(), []achievement.Definition{
		{RuleKey: achievement.KeyFirstSteps, Title: "First Steps"},
		{RuleKey: achievement.KeyPerfectScore, Title: "Perfect Score", Position: 1},
	}))

	s.PutLessonProgress(alice, activity.LessonProgress{LessonID: "l1", Completed: true})
	s.AddQuizAttempts(alice, activity.QuizAttempt{TopicID: "t1", Percentage: 100, CreatedAt: now.Add(-time.Hour)})
	s.AddStudySessions(bob, activity.StudySession{CreatedAt: now.Add(-30 * time.Minute), Minutes: 20})
	return s
}

func newJob(s *memory.Store, locker Locker, features Features, cfg ProcessLearnersConfig) *ProcessLearnersJob {
	loader := query.NewLearnerLoader(s, s, s, nil)
	flow := saga.NewAchievementFlow(loader, s, nil, saga.DefaultAchievementFlowConfig(), nil, nil)
	reports := query.NewGetDailyReportHandler(loader, s, nil, nil, query.DefaultGetDailyReportConfig(), nil, nil)
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return now }
	}
	return NewProcessLearnersJob(s, flow, reports, locker, features, cfg)
}

func TestProcessLearners_ActiveLearners(t *testing.T) {
	s := seededStore(t)
	job := newJob(s, nil, nil, ProcessLearnersConfig{})

	require.NoError(t, job.Run(context.Background()))

	stats := job.LastStats()
	assert.Equal(t, 2, stats.Learners)
	assert.Equal(t, 2, stats.Unlocked)
	assert.Equal(t, 2, stats.Reports)
	assert.Zero(t, stats.Failed)
	assert.Equal(t, now.Add(-24*time.Hour), stats.Since)

	held, err := s.Unlocked(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, 2, held.Len())
	assert.Equal(t, 1, s.ReportCount(alice))
	assert.Equal(t, 1, s.ReportCount(bob))
}

func TestProcessLearners_AdvancesWindow(t *testing.T) {
	s := seededStore(t)
	clock := now
	job := newJob(s, nil, nil, ProcessLearnersConfig{Now: func() time.Time { return clock }})

	require.NoError(t, job.Run(context.Background()))

	clock = now.Add(10 * time.Minute)
	require.NoError(t, job.Run(context.Background()))

	stats := job.LastStats()
	assert.Equal(t, now, stats.Since)
	assert.Zero(t, stats.Learners)
}

func TestProcessLearners_StaticLearners(t *testing.T) {
	s := seededStore(t)
	job := newJob(s, nil, nil, ProcessLearnersConfig{LearnerIDs: []activity.LearnerID{bob}})

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, job.LastStats().Learners)
	assert.Zero(t, s.ReportCount(alice))
}

func TestProcessLearners_FeatureFlags(t *testing.T) {
	s := seededStore(t)
	flags := config.NewFeatureFlags()
	require.NoError(t, flags.SetRolloutPercent(config.FeatureDailyReports, 0))
	flags.SetLearnerOverride(alice.String(), config.FeatureAchievements, false)

	job := newJob(s, nil, flags, ProcessLearnersConfig{})
	require.NoError(t, job.Run(context.Background()))

	assert.Zero(t, s.ReportCount(alice))
	assert.Zero(t, s.ReportCount(bob))

	held, err := s.Unlocked(context.Background(), alice)
	require.NoError(t, err)
	assert.Zero(t, held.Len())
}

type fakeLocker struct {
	mu     sync.Mutex
	held   map[string]string
	err    error
	unlock int
}

func (l *fakeLocker) TryLock(_ context.Context, resource, owner string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if _, ok := l.held[resource]; ok {
		return false, nil
	}
	l.held[resource] = owner
	return true, nil
}

func (l *fakeLocker) Unlock(_ context.Context, resource, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[resource] == owner {
		delete(l.held, resource)
		l.unlock++
	}
	return nil
}

func TestProcessLearners_SkipsLockedLearners(t *testing.T) {
	s := seededStore(t)
	locker := &fakeLocker{held: map[string]string{"learner:" + alice.String(): "other-instance"}}

	job := newJob(s, locker, nil, ProcessLearnersConfig{Owner: "me"})
	require.NoError(t, job.Run(context.Background()))

	stats := job.LastStats()
	assert.Equal(t, 1, stats.Locked)
	assert.Equal(t, 1, stats.Reports)
	assert.Zero(t, s.ReportCount(alice))
	assert.Equal(t, 1, locker.unlock)
	assert.Equal(t, map[string]string{"learner:" + alice.String(): "other-instance"}, locker.held)
}

func TestProcessLearners_LockErrorsDoNotBlock(t *testing.T) {
	s := seededStore(t)
	job := newJob(s, &fakeLocker{held: map[string]string{}, err: errors.New("redis down")}, nil, ProcessLearnersConfig{})

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 2, job.LastStats().Reports)
}

type failingEvaluator struct{}

func (failingEvaluator) Execute(context.Context, saga.AchievementFlowInput) (*saga.AchievementFlowResult, error) {
	return nil, errors.New("store unavailable")
}

func TestProcessLearners_FailureKeepsWindow(t *testing.T) {
	s := seededStore(t)
	job := NewProcessLearnersJob(s, failingEvaluator{}, nil, nil, nil, ProcessLearnersConfig{
		Now: func() time.Time { return now },
	})

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 of 2 learners failed")
	assert.Equal(t, 2, job.LastStats().Failed)

	// The window did not advance, so the next run looks at the same learners.
	_ = job.Run(context.Background())
	assert.Equal(t, now.Add(-24*time.Hour), job.LastStats().Since)
}

// flakyUnlocks fails the first n unlock writes.
type flakyUnlocks struct {
	*memory.Store
	mu    sync.Mutex
	fails int
}

func (f *flakyUnlocks) Unlock(ctx context.Context, learnerID activity.LearnerID, achievementID string, at time.Time) (bool, error) {
	f.mu.Lock()
	if f.fails > 0 {
		f.fails--
		f.mu.Unlock()
		return false, shared.WrapError("achievement", "Unlock", shared.ErrStoreUnavailable, "write failed", errors.New("timeout"))
	}
	f.mu.Unlock()
	return f.Store.Unlock(ctx, learnerID, achievementID, at)
}

func TestProcessLearners_RetriesFailedUnlocksNextRun(t *testing.T) {
	s := seededStore(t)
	// Both of alice's unlocks fail their write and its retry.
	repo := &flakyUnlocks{Store: s, fails: 4}
	loader := query.NewLearnerLoader(s, s, repo, nil)
	flowCfg := saga.DefaultAchievementFlowConfig()
	flowCfg.Retrier = retry.New(retry.WithMaxAttempts(2), retry.WithInitialDelay(0), retry.WithRetryIf(shared.IsRetryable))
	flow := saga.NewAchievementFlow(loader, repo, nil, flowCfg, nil, nil)

	clock := now
	job := NewProcessLearnersJob(s, flow, nil, nil, nil, ProcessLearnersConfig{Now: func() time.Time { return clock }})

	require.NoError(t, job.Run(context.Background()))
	first := job.LastStats()
	assert.Equal(t, 2, first.WriteFailure)
	assert.Zero(t, first.Unlocked)

	held, err := s.Unlocked(context.Background(), alice)
	require.NoError(t, err)
	assert.Zero(t, held.Len())

	// The window moved past alice's activity, yet she is processed again.
	clock = now.Add(10 * time.Minute)
	require.NoError(t, job.Run(context.Background()))
	second := job.LastStats()
	assert.Equal(t, now, second.Since)
	assert.Equal(t, 1, second.Learners)
	assert.Equal(t, 1, second.Retried)
	assert.Equal(t, 2, second.Unlocked)

	held, err = s.Unlocked(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, 2, held.Len())

	clock = now.Add(20 * time.Minute)
	require.NoError(t, job.Run(context.Background()))
	assert.Zero(t, job.LastStats().Retried)
	assert.Zero(t, job.LastStats().Learners)
}

func TestWithPending(t *testing.T) {
	got := withPending([]activity.LearnerID{alice}, map[activity.LearnerID]struct{}{alice: {}, bob: {}})
	assert.ElementsMatch(t, []activity.LearnerID{alice, bob}, got)
	assert.Equal(t, []activity.LearnerID{bob}, withPending([]activity.LearnerID{bob}, nil))
}

func TestProcessLearners_NoSource(t *testing.T) {
	job := NewProcessLearnersJob(nil, nil, nil, nil, nil, ProcessLearnersConfig{})
	assert.Error(t, job.Run(context.Background()))
	assert.Equal(t, "process_learners", job.Name())
}
