package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/progress-engine/internal/domain/activity"
)

const domainActivity = "activity"

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ActivityRepository implements activity.Reader and activity.CatalogReader.
// Activity tables are written by the lesson and quiz flows; this repository
// only reads them.
type ActivityRepository struct {
	conn *Connection
}

// NewActivityRepository creates a new ActivityRepository.
func NewActivityRepository(conn *Connection) *ActivityRepository {
	return &ActivityRepository{conn: conn}
}

// ─────────────────────────────────────────────────────────────────────────────
// Learner activity
// ─────────────────────────────────────────────────────────────────────────────

// LessonProgress returns all lesson progress rows of a learner.
func (r *ActivityRepository) LessonProgress(ctx context.Context, learnerID activity.LearnerID) ([]activity.LessonProgress, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT lesson_id, completed, updated_at
		FROM lesson_progress
		WHERE learner_id = $1
		ORDER BY lesson_id
	`, learnerID.String())
	if err != nil {
		return nil, storeError(domainActivity, "LessonProgress", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (activity.LessonProgress, error) {
		var p activity.LessonProgress
		err := row.Scan(&p.LessonID, &p.Completed, &p.UpdatedAt)
		p.UpdatedAt = p.UpdatedAt.UTC()
		return p, err
	})
	if err != nil {
		return nil, storeError(domainActivity, "LessonProgress", err)
	}
	return out, nil
}

// TopicProgress returns all topic progress rows of a learner.
func (r *ActivityRepository) TopicProgress(ctx context.Context, learnerID activity.LearnerID) ([]activity.TopicProgress, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT topic_id, progress, completed, updated_at
		FROM topic_progress
		WHERE learner_id = $1
		ORDER BY topic_id
	`, learnerID.String())
	if err != nil {
		return nil, storeError(domainActivity, "TopicProgress", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (activity.TopicProgress, error) {
		var p activity.TopicProgress
		if err := row.Scan(&p.TopicID, &p.Progress, &p.Completed, &p.UpdatedAt); err != nil {
			return p, err
		}
		p.UpdatedAt = p.UpdatedAt.UTC()
		return p, nil
	})
	if err != nil {
		return nil, storeError(domainActivity, "TopicProgress", err)
	}
	return out, nil
}

// QuizAttempts returns all quiz attempts of a learner, most recent first.
func (r *ActivityRepository) QuizAttempts(ctx context.Context, learnerID activity.LearnerID) ([]activity.QuizAttempt, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT topic_id, percentage, created_at
		FROM quiz_attempts
		WHERE learner_id = $1
		ORDER BY created_at DESC, id DESC
	`, learnerID.String())
	if err != nil {
		return nil, storeError(domainActivity, "QuizAttempts", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (activity.QuizAttempt, error) {
		var a activity.QuizAttempt
		if err := row.Scan(&a.TopicID, &a.Percentage, &a.CreatedAt); err != nil {
			return a, err
		}
		a.CreatedAt = a.CreatedAt.UTC()
		return a, nil
	})
	if err != nil {
		return nil, storeError(domainActivity, "QuizAttempts", err)
	}
	return out, nil
}

// StudySessions returns all study sessions of a learner.
func (r *ActivityRepository) StudySessions(ctx context.Context, learnerID activity.LearnerID) ([]activity.StudySession, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT created_at, minutes
		FROM study_sessions
		WHERE learner_id = $1
		ORDER BY created_at DESC, id DESC
	`, learnerID.String())
	if err != nil {
		return nil, storeError(domainActivity, "StudySessions", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (activity.StudySession, error) {
		var s activity.StudySession
		if err := row.Scan(&s.CreatedAt, &s.Minutes); err != nil {
			return s, err
		}
		s.CreatedAt = s.CreatedAt.UTC()
		return s, nil
	})
	if err != nil {
		return nil, storeError(domainActivity, "StudySessions", err)
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Catalog
// ─────────────────────────────────────────────────────────────────────────────

// Topics returns every topic in catalog order.
func (r *ActivityRepository) Topics(ctx context.Context) ([]activity.Topic, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, name, subject_id, grade, is_assessment
		FROM topics
		ORDER BY position, id
	`)
	if err != nil {
		return nil, storeError(domainActivity, "Topics", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (activity.Topic, error) {
		var t activity.Topic
		err := row.Scan(&t.ID, &t.Name, &t.SubjectID, &t.Grade, &t.IsAssessment)
		return t, err
	})
	if err != nil {
		return nil, storeError(domainActivity, "Topics", err)
	}
	return out, nil
}

// Subjects returns every subject.
func (r *ActivityRepository) Subjects(ctx context.Context) ([]activity.Subject, error) {
	rows, err := r.conn.Query(ctx, `SELECT id, name FROM subjects ORDER BY id`)
	if err != nil {
		return nil, storeError(domainActivity, "Subjects", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (activity.Subject, error) {
		var s activity.Subject
		err := row.Scan(&s.ID, &s.Name)
		return s, err
	})
	if err != nil {
		return nil, storeError(domainActivity, "Subjects", err)
	}
	return out, nil
}

// Lessons returns the lesson to topic mapping.
func (r *ActivityRepository) Lessons(ctx context.Context) ([]activity.Lesson, error) {
	rows, err := r.conn.Query(ctx, `SELECT id, topic_id FROM lessons ORDER BY topic_id, position, id`)
	if err != nil {
		return nil, storeError(domainActivity, "Lessons", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (activity.Lesson, error) {
		var l activity.Lesson
		err := row.Scan(&l.ID, &l.TopicID)
		return l, err
	})
	if err != nil {
		return nil, storeError(domainActivity, "Lessons", err)
	}
	return out, nil
}

var (
	_ activity.Reader        = (*ActivityRepository)(nil)
	_ activity.CatalogReader = (*ActivityRepository)(nil)
)

// ActiveLearners returns learners with any activity recorded at or after since.
func (r *ActivityRepository) ActiveLearners(ctx context.Context, since time.Time) ([]activity.LearnerID, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT learner_id::text FROM lesson_progress WHERE updated_at >= $1
		UNION
		SELECT learner_id::text FROM topic_progress WHERE updated_at >= $1
		UNION
		SELECT learner_id::text FROM quiz_attempts WHERE created_at >= $1
		UNION
		SELECT learner_id::text FROM study_sessions WHERE created_at >= $1
		ORDER BY 1
	`, since.UTC())
	if err != nil {
		return nil, storeError(domainActivity, "ActiveLearners", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, storeError(domainActivity, "ActiveLearners", err)
	}

	out := make([]activity.LearnerID, len(ids))
	for i, id := range ids {
		out[i] = activity.LearnerID(id)
	}
	return out, nil
}

var _ activity.ActiveLearnerLister = (*ActivityRepository)(nil)
