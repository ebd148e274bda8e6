package report

import (
	"sort"
	"time"

	"github.com/alem-hub/progress-engine/internal/domain/activity"
	"github.com/alem-hub/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STRUGGLING TOPICS
// ══════════════════════════════════════════════════════════════════════════════

type topicScore struct {
	sum      int
	attempts int
	last     time.Time
}

func (s topicScore) mean() float64 {
	if s.attempts == 0 {
		return 0
	}
	return float64(s.sum) / float64(s.attempts)
}

// scoresByTopic groups quiz attempts of known topics.
func scoresByTopic(snap activity.Snapshot) map[string]topicScore {
	out := make(map[string]topicScore)
	for _, a := range snap.QuizAttempts {
		if _, ok := snap.Catalog.Topic(a.TopicID); !ok {
			continue
		}
		s := out[a.TopicID]
		s.sum += a.Percentage
		s.attempts++
		if a.CreatedAt.After(s.last) {
			s.last = a.CreatedAt
		}
		out[a.TopicID] = s
	}
	return out
}

// StrugglingTopics returns topics whose mean quiz percentage is below threshold,
// worst first. Ties are ordered by topic ID.
func StrugglingTopics(snap activity.Snapshot, threshold float64, loc *time.Location) []StrugglingTopic {
	out := make([]StrugglingTopic, 0)
	for topicID, s := range scoresByTopic(snap) {
		avg := s.mean()
		if avg >= threshold {
			continue
		}
		topic, _ := snap.Catalog.Topic(topicID)
		out = append(out, StrugglingTopic{
			TopicID:         topicID,
			TopicName:       topic.Name,
			SubjectName:     snap.Catalog.SubjectName(topic),
			AverageScore:    avg,
			Attempts:        s.attempts,
			LastAttemptDate: timeutil.DateKey(s.last, loc),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].AverageScore != out[j].AverageScore {
			return out[i].AverageScore < out[j].AverageScore
		}
		return out[i].TopicID < out[j].TopicID
	})
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// NEEDS WORK
// ══════════════════════════════════════════════════════════════════════════════

// Rule priorities, lower first.
const (
	priorityNotStarted = iota + 1
	priorityStale
	priorityIncomplete
	priorityLessonRate
	priorityLowScore
)

type candidate struct {
	item     NeedsWorkItem
	priority int
	position int
}

// NeedsWork classifies every non-assessment catalog topic by the first matching
// rule and returns the items ordered by rule priority, then catalog order,
// truncated to limit. A limit of zero or less means no cap.
func NeedsWork(snap activity.Snapshot, now time.Time, opts Options) []NeedsWorkItem {
	progressByTopic := snap.TopicProgressByID()
	lessonsByTopic := snap.Catalog.LessonsByTopic()
	completedLessons := make(map[string]bool, len(snap.Lessons))
	for _, l := range snap.Lessons {
		if l.Completed {
			completedLessons[l.LessonID] = true
		}
	}
	scores := scoresByTopic(snap)

	var candidates []candidate
	for pos, topic := range snap.Catalog.Topics {
		if topic.IsAssessment {
			continue
		}
		p, has := progressByTopic[topic.ID]

		item := NeedsWorkItem{
			TopicID:     topic.ID,
			TopicName:   topic.Name,
			SubjectName: snap.Catalog.SubjectName(topic),
		}
		if has {
			progress := p.Progress
			item.Progress = &progress
			if !p.UpdatedAt.IsZero() {
				updated := p.UpdatedAt
				item.LastActivity = &updated
			}
		}

		priority := 0
		switch {
		case !has || (!p.Completed && p.Progress <= 0):
			priority, item.Reason = priorityNotStarted, ReasonNotStarted
		case p.InProgress() && now.Sub(p.UpdatedAt) > opts.StaleAfter:
			priority, item.Reason = priorityStale, ReasonStaleProgress
		case p.InProgress():
			priority, item.Reason = priorityIncomplete, ReasonIncomplete
		case lessonRate(lessonsByTopic[topic.ID], completedLessons) < 0.5:
			priority, item.Reason = priorityLessonRate, ReasonIncomplete
		case p.IsDone() && scores[topic.ID].attempts > 0 && scores[topic.ID].mean() < opts.StrugglingThreshold:
			priority, item.Reason = priorityLowScore, ReasonLowScore
		default:
			continue
		}

		candidates = append(candidates, candidate{item: item, priority: priority, position: pos})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].priority != candidates[j].priority {
			return candidates[i].priority < candidates[j].priority
		}
		return candidates[i].position < candidates[j].position
	})

	if opts.NeedsWorkLimit > 0 && len(candidates) > opts.NeedsWorkLimit {
		candidates = candidates[:opts.NeedsWorkLimit]
	}

	out := make([]NeedsWorkItem, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.item)
	}
	return out
}

// lessonRate returns the completed share of lessons, or 1 when there are none.
func lessonRate(lessonIDs []string, completed map[string]bool) float64 {
	if len(lessonIDs) == 0 {
		return 1
	}
	done := 0
	for _, id := range lessonIDs {
		if completed[id] {
			done++
		}
	}
	return float64(done) / float64(len(lessonIDs))
}
