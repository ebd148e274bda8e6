// Package progress derives learner metrics from raw activity.
// Everything here is a pure function of the snapshot, the current instant
// and the project-wide location; nothing reads the wall clock.
package progress

import (
	"time"

	"github.com/alem-hub/progress-engine/internal/domain/activity"
	"github.com/alem-hub/progress-engine/pkg/timeutil"
)

// Score thresholds used by the aggregator.
const (
	PerfectScore = 100
	HighScore    = 90

	// NightStudyHour is the first hour counted as night study.
	NightStudyHour = 20
	// EarlyStudyHour is the first hour no longer counted as early study.
	EarlyStudyHour = 8
)

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// Metrics - производные показатели одного ученика.
type Metrics struct {
	// CompletedLessonCount - количество завершённых уроков.
	CompletedLessonCount int

	// CompletedTopicCount - количество завершённых тем.
	CompletedTopicCount int

	// PerfectScoreCount - попытки тестов со 100%.
	PerfectScoreCount int

	// HighScoreCount - попытки тестов с результатом от 90%.
	HighScoreCount int

	// AssessmentAttempts - попытки по темам-аттестациям.
	AssessmentAttempts int

	// AssessmentHasPerfect - хотя бы одна аттестация на 100%.
	AssessmentHasPerfect bool

	// StudyStreakDays - текущая серия дней с учёбой.
	StudyStreakDays int

	// TotalStudyMinutes / TotalStudyHours - суммарное время учёбы.
	TotalStudyMinutes int
	TotalStudyHours   float64

	// TodayTotalMinutes - время учёбы за сегодня.
	TodayTotalMinutes int

	// HasNightStudy / HasEarlyStudy - сегодняшняя сессия после 20:00 / до 08:00.
	HasNightStudy bool
	HasEarlyStudy bool

	// HasWeekendStudy - хотя бы одна сессия в субботу или воскресенье.
	HasWeekendStudy bool

	// HasBothWeekendDays - в истории есть и суббота, и воскресенье.
	HasBothWeekendDays bool

	// CompletedTopicsByGrade / TotalTopicsByGrade - по классам (только темы с классом).
	CompletedTopicsByGrade map[int]int
	TotalTopicsByGrade     map[int]int

	// CompletedTopicsBySubject / TotalTopicsBySubject - по предметам.
	CompletedTopicsBySubject map[string]int
	TotalTopicsBySubject     map[string]int

	// QuizAttemptsToday - попытки тестов за сегодня.
	QuizAttemptsToday int

	// TotalTopics - темы каталога без аттестаций.
	TotalTopics int
}

// HasCompletedSubject reports whether some subject has every topic completed.
func (m Metrics) HasCompletedSubject() bool {
	for subjectID, total := range m.TotalTopicsBySubject {
		if total > 0 && m.CompletedTopicsBySubject[subjectID] >= total {
			return true
		}
	}
	return false
}

// HasCompletedGrade reports whether every topic of a grade is completed.
// A grade with no catalog topics is never considered completed.
func (m Metrics) HasCompletedGrade(grade int) bool {
	total := m.TotalTopicsByGrade[grade]
	return total > 0 && m.CompletedTopicsByGrade[grade] >= total
}

// ComputeMetrics derives Metrics from one learner's snapshot.
// Rows that reference topics missing from the catalog are left out of the
// grade, subject and assessment aggregates.
func ComputeMetrics(snap activity.Snapshot, now time.Time, loc *time.Location) Metrics {
	m := Metrics{
		CompletedTopicsByGrade:   make(map[int]int),
		TotalTopicsByGrade:       make(map[int]int),
		CompletedTopicsBySubject: make(map[string]int),
		TotalTopicsBySubject:     make(map[string]int),
	}
	for _, lesson := range snap.Lessons {
		if lesson.Completed {
			m.CompletedLessonCount++
		}
	}

	for _, topic := range snap.Catalog.Topics {
		m.TotalTopicsBySubject[topic.SubjectID]++
		if topic.HasGrade() {
			m.TotalTopicsByGrade[*topic.Grade]++
		}
		if !topic.IsAssessment {
			m.TotalTopics++
		}
	}

	for _, p := range snap.Topics {
		if !p.IsDone() {
			continue
		}
		m.CompletedTopicCount++

		topic, ok := snap.Catalog.Topic(p.TopicID)
		if !ok {
			continue
		}
		m.CompletedTopicsBySubject[topic.SubjectID]++
		if topic.HasGrade() {
			m.CompletedTopicsByGrade[*topic.Grade]++
		}
	}

	for _, attempt := range snap.QuizAttempts {
		if attempt.Percentage >= PerfectScore {
			m.PerfectScoreCount++
		}
		if attempt.Percentage >= HighScore {
			m.HighScoreCount++
		}
		if timeutil.IsSameDay(attempt.CreatedAt, now, loc) {
			m.QuizAttemptsToday++
		}
		if topic, ok := snap.Catalog.Topic(attempt.TopicID); ok && topic.IsAssessment {
			m.AssessmentAttempts++
			if attempt.Percentage >= PerfectScore {
				m.AssessmentHasPerfect = true
			}
		}
	}

	var saturday, sunday bool
	for _, session := range snap.StudySessions {
		m.TotalStudyMinutes += session.Minutes

		if timeutil.IsWeekend(session.CreatedAt, loc) {
			if timeutil.DayOf(session.CreatedAt, loc).Weekday() == time.Saturday {
				saturday = true
			} else {
				sunday = true
			}
		}

		if !timeutil.IsSameDay(session.CreatedAt, now, loc) {
			continue
		}
		m.TodayTotalMinutes += session.Minutes
		hour := timeutil.HourIn(session.CreatedAt, loc)
		if hour >= NightStudyHour {
			m.HasNightStudy = true
		}
		if hour < EarlyStudyHour {
			m.HasEarlyStudy = true
		}
	}
	m.TotalStudyHours = float64(m.TotalStudyMinutes) / 60.0
	m.HasWeekendStudy = saturday || sunday
	m.HasBothWeekendDays = saturday && sunday

	m.StudyStreakDays = StudyStreak(snap.StudySessions, now, loc)

	return m
}
