// Package activity contains the raw learner activity records and the static
// catalog they refer to. The engine never creates or mutates these records;
// they are produced by the lesson and quiz flows and only read here.
// This is a pure domain layer with zero external dependencies.
package activity

import (
	"time"
)

// LearnerID represents the opaque identifier of a learner.
type LearnerID string

// IsValid checks if the learner ID is non-empty.
func (l LearnerID) IsValid() bool {
	return l != ""
}

// String returns the string representation of LearnerID.
func (l LearnerID) String() string {
	return string(l)
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY RECORDS
// ══════════════════════════════════════════════════════════════════════════════

// LessonProgress records whether a learner has completed a lesson.
type LessonProgress struct {
	LessonID  string
	Completed bool
	UpdatedAt time.Time
}

// TopicProgress is the learner's progress on a topic (one per learner and topic).
// Completed is expected to imply Progress == 100 but callers must not rely on it.
type TopicProgress struct {
	TopicID   string
	Progress  int // 0..100
	Completed bool
	UpdatedAt time.Time
}

// IsDone reports whether the topic should be treated as completed.
func (p TopicProgress) IsDone() bool {
	return p.Completed
}

// InProgress reports whether the topic was started but not finished.
func (p TopicProgress) InProgress() bool {
	return !p.Completed && p.Progress > 0 && p.Progress < 100
}

// QuizAttempt is a single append-only quiz result.
type QuizAttempt struct {
	TopicID    string
	Percentage int // 0..100
	CreatedAt  time.Time
}

// StudySession is a single append-only study session.
type StudySession struct {
	CreatedAt time.Time
	Minutes   int
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// Topic is static reference data shared by all learners.
type Topic struct {
	ID           string
	Name         string
	SubjectID    string
	Grade        *int // nil when the topic is not tied to a grade
	IsAssessment bool
}

// HasGrade reports whether the topic declares a grade.
func (t Topic) HasGrade() bool {
	return t.Grade != nil
}

// Subject is static reference data.
type Subject struct {
	ID   string
	Name string
}

// Lesson links a lesson to the topic it belongs to.
type Lesson struct {
	ID      string
	TopicID string
}

// Catalog bundles the reference collections with lookup indexes.
type Catalog struct {
	Topics   []Topic
	Subjects []Subject
	Lessons  []Lesson

	topicByID   map[string]Topic
	subjectByID map[string]Subject
}

// NewCatalog builds a Catalog and its lookup indexes.
func NewCatalog(topics []Topic, subjects []Subject, lessons []Lesson) Catalog {
	c := Catalog{
		Topics:      topics,
		Subjects:    subjects,
		Lessons:     lessons,
		topicByID:   make(map[string]Topic, len(topics)),
		subjectByID: make(map[string]Subject, len(subjects)),
	}
	for _, t := range topics {
		c.topicByID[t.ID] = t
	}
	for _, s := range subjects {
		c.subjectByID[s.ID] = s
	}
	return c
}

// Topic looks up a topic by ID.
func (c Catalog) Topic(id string) (Topic, bool) {
	t, ok := c.topicByID[id]
	return t, ok
}

// Subject looks up a subject by ID.
func (c Catalog) Subject(id string) (Subject, bool) {
	s, ok := c.subjectByID[id]
	return s, ok
}

// SubjectName returns the subject name of a topic, or "" when unknown.
func (c Catalog) SubjectName(topic Topic) string {
	if s, ok := c.subjectByID[topic.SubjectID]; ok {
		return s.Name
	}
	return ""
}

// LessonsByTopic groups lesson IDs by their topic.
func (c Catalog) LessonsByTopic() map[string][]string {
	out := make(map[string][]string)
	for _, l := range c.Lessons {
		out[l.TopicID] = append(out[l.TopicID], l.ID)
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// Snapshot is a full re-read of one learner's activity plus the catalog.
type Snapshot struct {
	LearnerID     LearnerID
	Lessons       []LessonProgress
	Topics        []TopicProgress
	QuizAttempts  []QuizAttempt // most recent first
	StudySessions []StudySession
	Catalog       Catalog
}

// IsEmpty reports whether the learner has no recorded activity at all.
func (s Snapshot) IsEmpty() bool {
	return len(s.Lessons) == 0 &&
		len(s.Topics) == 0 &&
		len(s.QuizAttempts) == 0 &&
		len(s.StudySessions) == 0
}

// TopicProgressByID indexes topic progress rows by topic ID.
func (s Snapshot) TopicProgressByID() map[string]TopicProgress {
	out := make(map[string]TopicProgress, len(s.Topics))
	for _, p := range s.Topics {
		out[p.TopicID] = p
	}
	return out
}
