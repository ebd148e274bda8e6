package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alem-hub/progress-engine/internal/domain/activity"
)

// Wednesday 2025-06-18 15:00 UTC.
var now = time.Date(2025, 6, 18, 15, 0, 0, 0, time.UTC)

func daysAgo(n int, hour int) time.Time {
	d := now.AddDate(0, 0, -n)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, time.UTC)
}

func grade(n int) *int { return &n }

func testCatalog() activity.Catalog {
	return activity.NewCatalog(
		[]activity.Topic{
			{ID: "t-frac", Name: "Fractions", SubjectID: "math", Grade: grade(5)},
			{ID: "t-dec", Name: "Decimals", SubjectID: "math", Grade: grade(5)},
			{ID: "t-alg", Name: "Algebra", SubjectID: "math", Grade: grade(7)},
			{ID: "t-cells", Name: "Cells", SubjectID: "bio"},
			{ID: "t-exam", Name: "Final Exam", SubjectID: "bio", IsAssessment: true},
		},
		[]activity.Subject{{ID: "math", Name: "Math"}, {ID: "bio", Name: "Biology"}},
		nil,
	)
}

func TestComputeMetrics_NoActivityIsZero(t *testing.T) {
	m := ComputeMetrics(activity.Snapshot{LearnerID: "l-1", Catalog: testCatalog()}, now, time.UTC)

	assert.Zero(t, m.CompletedLessonCount)
	assert.Zero(t, m.CompletedTopicCount)
	assert.Zero(t, m.PerfectScoreCount)
	assert.Zero(t, m.HighScoreCount)
	assert.Zero(t, m.AssessmentAttempts)
	assert.False(t, m.AssessmentHasPerfect)
	assert.Zero(t, m.StudyStreakDays)
	assert.Zero(t, m.TotalStudyMinutes)
	assert.Zero(t, m.TotalStudyHours)
	assert.Zero(t, m.TodayTotalMinutes)
	assert.False(t, m.HasNightStudy || m.HasEarlyStudy || m.HasWeekendStudy || m.HasBothWeekendDays)
	assert.Empty(t, m.CompletedTopicsByGrade)
	assert.Empty(t, m.CompletedTopicsBySubject)
	assert.Zero(t, m.QuizAttemptsToday)
	assert.False(t, m.HasCompletedSubject())

	// Catalog totals do not depend on the learner.
	assert.Equal(t, map[string]int{"math": 3, "bio": 2}, m.TotalTopicsBySubject)
	assert.Equal(t, map[int]int{5: 2, 7: 1}, m.TotalTopicsByGrade)
	assert.Equal(t, 4, m.TotalTopics)
}

func TestComputeMetrics_Counts(t *testing.T) {
	snap := activity.Snapshot{
		LearnerID: "l-1",
		Catalog:   testCatalog(),
		Lessons: []activity.LessonProgress{
			{LessonID: "a", Completed: true},
			{LessonID: "b", Completed: true},
			{LessonID: "c", Completed: false},
		},
		Topics: []activity.TopicProgress{
			{TopicID: "t-frac", Progress: 100, Completed: true},
			{TopicID: "t-dec", Progress: 100, Completed: true},
			{TopicID: "t-cells", Progress: 40},
			{TopicID: "t-gone", Progress: 100, Completed: true}, // not in catalog
		},
		QuizAttempts: []activity.QuizAttempt{
			{TopicID: "t-frac", Percentage: 100, CreatedAt: daysAgo(0, 9)},
			{TopicID: "t-dec", Percentage: 92, CreatedAt: daysAgo(0, 10)},
			{TopicID: "t-exam", Percentage: 100, CreatedAt: daysAgo(3, 10)},
			{TopicID: "t-exam", Percentage: 60, CreatedAt: daysAgo(4, 10)},
			{TopicID: "t-gone", Percentage: 100, CreatedAt: daysAgo(5, 10)},
		},
	}

	m := ComputeMetrics(snap, now, time.UTC)

	assert.Equal(t, 2, m.CompletedLessonCount)
	assert.Equal(t, 3, m.CompletedTopicCount)
	assert.Equal(t, 3, m.PerfectScoreCount)
	assert.Equal(t, 4, m.HighScoreCount)
	assert.Equal(t, 2, m.AssessmentAttempts)
	assert.True(t, m.AssessmentHasPerfect)
	assert.Equal(t, 2, m.QuizAttemptsToday)
	assert.Equal(t, map[int]int{5: 2}, m.CompletedTopicsByGrade)
	assert.Equal(t, map[string]int{"math": 2}, m.CompletedTopicsBySubject)
	assert.True(t, m.HasCompletedGrade(5))
	assert.False(t, m.HasCompletedGrade(7))
	assert.False(t, m.HasCompletedGrade(9))
	assert.False(t, m.HasCompletedSubject())
}

func TestComputeMetrics_SubjectCompletion(t *testing.T) {
	snap := activity.Snapshot{
		Catalog: testCatalog(),
		Topics: []activity.TopicProgress{
			{TopicID: "t-cells", Progress: 100, Completed: true},
			{TopicID: "t-exam", Progress: 100, Completed: true},
		},
	}

	m := ComputeMetrics(snap, now, time.UTC)
	assert.True(t, m.HasCompletedSubject())
}

func TestComputeMetrics_StudyTime(t *testing.T) {
	snap := activity.Snapshot{
		Catalog: testCatalog(),
		StudySessions: []activity.StudySession{
			{CreatedAt: daysAgo(0, 6), Minutes: 30},  // today, early
			{CreatedAt: daysAgo(0, 21), Minutes: 45}, // today, night
			{CreatedAt: daysAgo(1, 12), Minutes: 15},
			{CreatedAt: daysAgo(4, 12), Minutes: 30}, // Saturday 2025-06-14
			{CreatedAt: daysAgo(10, 23), Minutes: 0}, // Sunday 2025-06-08, night but not today
		},
	}

	m := ComputeMetrics(snap, now, time.UTC)

	assert.Equal(t, 120, m.TotalStudyMinutes)
	assert.InDelta(t, 2.0, m.TotalStudyHours, 1e-9)
	assert.Equal(t, 75, m.TodayTotalMinutes)
	assert.True(t, m.HasEarlyStudy)
	assert.True(t, m.HasNightStudy)
	assert.True(t, m.HasWeekendStudy)
	assert.True(t, m.HasBothWeekendDays)
	assert.Equal(t, 2, m.StudyStreakDays)
}

func TestComputeMetrics_UsesLocationForToday(t *testing.T) {
	almaty := time.FixedZone("Asia/Almaty", 5*60*60)
	// 22:00 UTC yesterday is 03:00 today in Almaty.
	snap := activity.Snapshot{
		Catalog:       testCatalog(),
		StudySessions: []activity.StudySession{{CreatedAt: daysAgo(1, 22), Minutes: 20}},
	}

	utc := ComputeMetrics(snap, now, time.UTC)
	local := ComputeMetrics(snap, now, almaty)

	assert.Zero(t, utc.TodayTotalMinutes)
	assert.False(t, utc.HasNightStudy)
	assert.Equal(t, 20, local.TodayTotalMinutes)
	assert.True(t, local.HasEarlyStudy)
}
