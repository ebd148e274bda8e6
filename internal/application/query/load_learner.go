// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/progress-engine/internal/domain/achievement"
	"github.com/alem-hub/progress-engine/internal/domain/activity"
	"github.com/alem-hub/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEARNER LOADER
// Загружает все данные ученика одним параллельным запросом к хранилищу.
// Любая ошибка чтения отменяет остальные чтения: без полных данных
// метрики занижают серии и достижения.
// ══════════════════════════════════════════════════════════════════════════════

// LearnerData is everything needed to evaluate achievements for a learner.
type LearnerData struct {
	Snapshot    activity.Snapshot
	Definitions []achievement.Definition
	Unlocked    achievement.Set
}

// LearnerLoader fans out the store reads of one learner.
type LearnerLoader struct {
	activity     activity.Reader
	catalog      activity.CatalogReader
	achievements achievement.Repository
	recorder     Recorder
}

// NewLearnerLoader creates a loader. achievements may be nil when only
// snapshots are loaded; recorder may be nil.
func NewLearnerLoader(
	activityReader activity.Reader,
	catalogReader activity.CatalogReader,
	achievements achievement.Repository,
	recorder Recorder,
) *LearnerLoader {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &LearnerLoader{
		activity:     activityReader,
		catalog:      catalogReader,
		achievements: achievements,
		recorder:     recorder,
	}
}

// ValidateLearnerID checks that id is a UUID.
func ValidateLearnerID(id string) (activity.LearnerID, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("%w %q: %w", shared.ErrInvalidLearnerID, id, err)
	}
	return activity.LearnerID(id), nil
}

// LoadSnapshot reads the four activity collections and the catalog concurrently.
func (l *LearnerLoader) LoadSnapshot(ctx context.Context, learnerID activity.LearnerID) (activity.Snapshot, error) {
	data, err := l.load(ctx, learnerID, false)
	if err != nil {
		return activity.Snapshot{}, err
	}
	return data.Snapshot, nil
}

// Load reads the snapshot plus the achievement catalog and the unlocked set.
func (l *LearnerLoader) Load(ctx context.Context, learnerID activity.LearnerID) (LearnerData, error) {
	if l.achievements == nil {
		return LearnerData{}, shared.NewDomainError("activity", "Load", shared.ErrInvalidInput, "loader has no achievement repository")
	}
	return l.load(ctx, learnerID, true)
}

func (l *LearnerLoader) load(ctx context.Context, learnerID activity.LearnerID, withAchievements bool) (LearnerData, error) {
	start := time.Now()
	defer func() { l.recorder.ObserveLoad(time.Since(start)) }()

	var (
		lessons  []activity.LessonProgress
		topics   []activity.TopicProgress
		quizzes  []activity.QuizAttempt
		sessions []activity.StudySession
		catTopic []activity.Topic
		subjects []activity.Subject
		catLess  []activity.Lesson
		defs     []achievement.Definition
		unlocked achievement.Set
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		lessons, err = l.activity.LessonProgress(gctx, learnerID)
		return wrapRead("lesson progress", err)
	})
	g.Go(func() (err error) {
		topics, err = l.activity.TopicProgress(gctx, learnerID)
		return wrapRead("topic progress", err)
	})
	g.Go(func() (err error) {
		quizzes, err = l.activity.QuizAttempts(gctx, learnerID)
		return wrapRead("quiz attempts", err)
	})
	g.Go(func() (err error) {
		sessions, err = l.activity.StudySessions(gctx, learnerID)
		return wrapRead("study sessions", err)
	})
	g.Go(func() (err error) {
		catTopic, err = l.catalog.Topics(gctx)
		return wrapRead("topic catalog", err)
	})
	g.Go(func() (err error) {
		subjects, err = l.catalog.Subjects(gctx)
		return wrapRead("subject catalog", err)
	})
	g.Go(func() (err error) {
		catLess, err = l.catalog.Lessons(gctx)
		return wrapRead("lesson catalog", err)
	})
	if withAchievements {
		g.Go(func() (err error) {
			defs, err = l.achievements.Definitions(gctx)
			return wrapRead("achievement catalog", err)
		})
		g.Go(func() (err error) {
			unlocked, err = l.achievements.Unlocked(gctx, learnerID)
			return wrapRead("unlocked achievements", err)
		})
	}

	if err := g.Wait(); err != nil {
		return LearnerData{}, err
	}

	return LearnerData{
		Snapshot: activity.Snapshot{
			LearnerID:     learnerID,
			Lessons:       lessons,
			Topics:        topics,
			QuizAttempts:  quizzes,
			StudySessions: sessions,
			Catalog:       activity.NewCatalog(catTopic, subjects, catLess),
		},
		Definitions: defs,
		Unlocked:    unlocked,
	}, nil
}

func wrapRead(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w (%s): %w", shared.ErrActivityLoad, what, err)
}
