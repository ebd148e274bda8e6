package report

import (
	"time"

	"github.com/alem-hub/progress-engine/internal/domain/activity"
	"github.com/alem-hub/progress-engine/pkg/timeutil"
)

// Options tunes the report classifiers.
type Options struct {
	// StrugglingThreshold is the mean percentage below which a topic is struggling.
	StrugglingThreshold float64

	// StaleAfter is the age after which in-progress topics count as stale.
	StaleAfter time.Duration

	// NeedsWorkLimit caps the needs-work list.
	NeedsWorkLimit int

	// RecentQuizCount is the number of recent attempts used for overall performance.
	RecentQuizCount int
}

// DefaultOptions returns the production classifier settings.
func DefaultOptions() Options {
	return Options{
		StrugglingThreshold: 70,
		StaleAfter:          7 * 24 * time.Hour,
		NeedsWorkLimit:      10,
		RecentQuizCount:     10,
	}
}

// Build computes the daily report of a learner. The returned report has no ID;
// CreatedAt is now and ReportDate is the calendar day of now in loc.
func Build(snap activity.Snapshot, now time.Time, loc *time.Location, opts Options) DailyReport {
	struggling := StrugglingTopics(snap, opts.StrugglingThreshold, loc)
	needsWork := NeedsWork(snap, now, opts)

	tier := TierGettingStarted
	if !snap.IsEmpty() {
		tier = ClassifyPerformance(completionRate(snap), recentAverage(snap.QuizAttempts, opts.RecentQuizCount))
	}

	return DailyReport{
		LearnerID:          snap.LearnerID,
		ReportDate:         timeutil.DateKey(now, loc),
		StrugglingTopics:   struggling,
		NeedsWork:          needsWork,
		Recommendations:    Recommendations(snap, struggling, needsWork),
		OverallPerformance: tier.Narrative(),
		CreatedAt:          now,
	}
}
