package activity

import (
	"context"
	"time"
)

// Reader defines read access to a learner's activity collections.
// This interface is implemented by the infrastructure layer.
type Reader interface {
	// LessonProgress returns all lesson progress rows of a learner.
	LessonProgress(ctx context.Context, learnerID LearnerID) ([]LessonProgress, error)

	// TopicProgress returns all topic progress rows of a learner.
	TopicProgress(ctx context.Context, learnerID LearnerID) ([]TopicProgress, error)

	// QuizAttempts returns all quiz attempts of a learner, most recent first.
	QuizAttempts(ctx context.Context, learnerID LearnerID) ([]QuizAttempt, error)

	// StudySessions returns all study sessions of a learner.
	StudySessions(ctx context.Context, learnerID LearnerID) ([]StudySession, error)
}

// CatalogReader defines read access to the static reference collections.
type CatalogReader interface {
	// Topics returns every topic in the catalog.
	Topics(ctx context.Context) ([]Topic, error)

	// Subjects returns every subject in the catalog.
	Subjects(ctx context.Context) ([]Subject, error)

	// Lessons returns the lesson to topic mapping.
	Lessons(ctx context.Context) ([]Lesson, error)
}

// ActiveLearnerLister finds learners with recent activity.
type ActiveLearnerLister interface {
	// ActiveLearners returns, in ID order, learners with any activity
	// recorded at or after since.
	ActiveLearners(ctx context.Context, since time.Time) ([]LearnerID, error)
}
