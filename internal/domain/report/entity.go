// Package report builds the daily progress report of a learner.
// Build is pure; freshness and persistence are handled by the application
// layer through Repository.
package report

import (
	"time"

	"github.com/alem-hub/progress-engine/internal/domain/activity"
)

// Reason explains why a topic needs work.
type Reason string

const (
	ReasonNotStarted    Reason = "not_started"
	ReasonStaleProgress Reason = "stale_progress"
	ReasonIncomplete    Reason = "incomplete"
	ReasonLowScore      Reason = "low_score"
)

// String returns the string representation of Reason.
func (r Reason) String() string {
	return string(r)
}

// StrugglingTopic is a topic whose mean quiz score is below the threshold.
type StrugglingTopic struct {
	TopicID         string  `json:"topic_id"`
	TopicName       string  `json:"topic_name"`
	SubjectName     string  `json:"subject_name"`
	AverageScore    float64 `json:"average_score"`
	Attempts        int     `json:"attempts"`
	LastAttemptDate string  `json:"last_attempt_date"`
}

// NeedsWorkItem is a catalog topic the learner should return to.
type NeedsWorkItem struct {
	TopicID      string     `json:"topic_id"`
	TopicName    string     `json:"topic_name"`
	SubjectName  string     `json:"subject_name"`
	Reason       Reason     `json:"reason"`
	Progress     *int       `json:"progress,omitempty"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// DAILY REPORT
// ══════════════════════════════════════════════════════════════════════════════

// DailyReport - ежедневный отчёт ученика, не более одного свежего на (ученик, день).
type DailyReport struct {
	ID                 string             `json:"id"`
	LearnerID          activity.LearnerID `json:"learner_id"`
	ReportDate         string             `json:"report_date"` // YYYY-MM-DD
	StrugglingTopics   []StrugglingTopic  `json:"struggling_topics"`
	NeedsWork          []NeedsWorkItem    `json:"needs_work"`
	Recommendations    string             `json:"recommendations"`
	OverallPerformance string             `json:"overall_performance"`
	CreatedAt          time.Time          `json:"created_at"`
}

// IsFresh reports whether the report may be served for date at now.
func (r *DailyReport) IsFresh(date string, now time.Time, window time.Duration) bool {
	if r == nil || r.ReportDate != date {
		return false
	}
	return !r.CreatedAt.Before(now.Add(-window))
}
