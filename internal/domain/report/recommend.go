package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/alem-hub/progress-engine/internal/domain/activity"
)

// Recommendation templates.
const (
	templateGettingStarted = "Welcome! Start your first lesson to begin tracking your progress."
	templateWorstTopic     = "Focus on %s: your average quiz score there is %.0f%%."
	templateNotStarted     = "Try starting: %s."
	templateStale          = "Some topics have not been touched in over a week. Pick one up again to keep it fresh."
	templateKeepGoing      = "A few topics still need attention. Finish the ones in progress and retake quizzes where your score was low."
	templateAllGood        = "Great work! You are on track, keep up the momentum."

	maxNotStartedNamed = 3
)

// Recommendations composes the recommendation text from the classified lists.
func Recommendations(snap activity.Snapshot, struggling []StrugglingTopic, needsWork []NeedsWorkItem) string {
	if snap.IsEmpty() {
		return templateGettingStarted
	}

	var sentences []string
	if len(struggling) > 0 {
		worst := struggling[0]
		name := worst.TopicName
		if name == "" {
			name = worst.TopicID
		}
		sentences = append(sentences, fmt.Sprintf(templateWorstTopic, name, worst.AverageScore))
	}

	var notStarted []string
	stale, unfinished := false, false
	for _, item := range needsWork {
		switch item.Reason {
		case ReasonNotStarted:
			if len(notStarted) < maxNotStartedNamed {
				notStarted = append(notStarted, item.TopicName)
			}
		case ReasonStaleProgress:
			stale = true
		case ReasonIncomplete, ReasonLowScore:
			unfinished = true
		}
	}
	if len(notStarted) > 0 {
		sentences = append(sentences, fmt.Sprintf(templateNotStarted, strings.Join(notStarted, ", ")))
	}
	if stale {
		sentences = append(sentences, templateStale)
	}

	// только общая подсказка, если конкретных советов нет
	if len(sentences) == 0 && unfinished {
		return templateKeepGoing
	}
	if len(sentences) == 0 {
		return templateAllGood
	}
	return strings.Join(sentences, " ")
}

// ══════════════════════════════════════════════════════════════════════════════
// OVERALL PERFORMANCE
// ══════════════════════════════════════════════════════════════════════════════

// Tier is a bucket of the overall performance classifier.
type Tier string

const (
	TierExcellent      Tier = "excellent"
	TierGood           Tier = "good"
	TierDeveloping     Tier = "developing"
	TierGettingStarted Tier = "getting_started"
)

var tierNarratives = map[Tier]string{
	TierExcellent:      "Excellent: you have completed most topics with outstanding quiz results.",
	TierGood:           "Good: steady progress across your topics with solid quiz scores.",
	TierDeveloping:     "Developing: you are building momentum. Keep practicing to lift your scores.",
	TierGettingStarted: "Getting started: complete a few lessons and quizzes to see your progress here.",
}

// Narrative returns the display text of the tier.
func (t Tier) Narrative() string {
	return tierNarratives[t]
}

// ClassifyPerformance buckets (topic completion rate 0..1, recent mean score 0..100).
func ClassifyPerformance(completionRate, recentAverage float64) Tier {
	switch {
	case completionRate >= 0.7 && recentAverage >= 85:
		return TierExcellent
	case completionRate >= 0.4 && recentAverage >= 70:
		return TierGood
	case completionRate >= 0.15 || recentAverage >= 50:
		return TierDeveloping
	default:
		return TierGettingStarted
	}
}

// completionRate is the share of non-assessment catalog topics the learner completed.
func completionRate(snap activity.Snapshot) float64 {
	total := 0
	for _, t := range snap.Catalog.Topics {
		if !t.IsAssessment {
			total++
		}
	}
	if total == 0 {
		return 0
	}

	done := 0
	for _, p := range snap.Topics {
		if !p.IsDone() {
			continue
		}
		if t, ok := snap.Catalog.Topic(p.TopicID); ok && !t.IsAssessment {
			done++
		}
	}
	return float64(done) / float64(total)
}

// recentAverage is the mean percentage of the n most recent quiz attempts.
func recentAverage(attempts []activity.QuizAttempt, n int) float64 {
	if len(attempts) == 0 || n <= 0 {
		return 0
	}
	recent := make([]activity.QuizAttempt, len(attempts))
	copy(recent, attempts)
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].CreatedAt.After(recent[j].CreatedAt) })
	if len(recent) > n {
		recent = recent[:n]
	}

	sum := 0
	for _, a := range recent {
		sum += a.Percentage
	}
	return float64(sum) / float64(len(recent))
}
