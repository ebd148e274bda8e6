// Package memory provides an in-process store with the same conflict policies
// as the postgres store: first-write-wins unlocks and one report per
// (learner, date). It backs tests and the engine's dry-run mode.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/progress-engine/internal/domain/achievement"
	"github.com/alem-hub/progress-engine/internal/domain/activity"
	"github.com/alem-hub/progress-engine/internal/domain/report"
	"github.com/alem-hub/progress-engine/internal/domain/shared"
)

type reportKey struct {
	learnerID activity.LearnerID
	date      string
}

type definitionKey struct {
	ruleKey achievement.RuleKey
	grade   int
}

func keyOf(def achievement.Definition) definitionKey {
	k := definitionKey{ruleKey: def.RuleKey}
	if def.Grade != nil {
		k.grade = *def.Grade
	}
	return k
}

// Store is a concurrency-safe in-memory store.
type Store struct {
	mu sync.RWMutex

	lessons  map[activity.LearnerID]map[string]activity.LessonProgress
	topics   map[activity.LearnerID]map[string]activity.TopicProgress
	quizzes  map[activity.LearnerID][]activity.QuizAttempt
	sessions map[activity.LearnerID][]activity.StudySession

	catalogTopics   []activity.Topic
	catalogSubjects []activity.Subject
	catalogLessons  []activity.Lesson

	definitions []achievement.Definition
	unlocks     map[activity.LearnerID]map[string]time.Time

	reports map[reportKey]report.DailyReport
}

// New creates an empty store.
func New() *Store {
	return &Store{
		lessons:  make(map[activity.LearnerID]map[string]activity.LessonProgress),
		topics:   make(map[activity.LearnerID]map[string]activity.TopicProgress),
		quizzes:  make(map[activity.LearnerID][]activity.QuizAttempt),
		sessions: make(map[activity.LearnerID][]activity.StudySession),
		unlocks:  make(map[activity.LearnerID]map[string]time.Time),
		reports:  make(map[reportKey]report.DailyReport),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SEEDING
// ══════════════════════════════════════════════════════════════════════════════

// SetCatalog replaces the topic, subject and lesson catalog.
func (s *Store) SetCatalog(topics []activity.Topic, subjects []activity.Subject, lessons []activity.Lesson) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalogTopics = append([]activity.Topic(nil), topics...)
	s.catalogSubjects = append([]activity.Subject(nil), subjects...)
	s.catalogLessons = append([]activity.Lesson(nil), lessons...)
}

// PutLessonProgress upserts lesson progress rows keyed by lesson ID.
func (s *Store) PutLessonProgress(learnerID activity.LearnerID, rows ...activity.LessonProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.lessons[learnerID]
	if m == nil {
		m = make(map[string]activity.LessonProgress)
		s.lessons[learnerID] = m
	}
	for _, r := range rows {
		m[r.LessonID] = r
	}
}

// PutTopicProgress upserts topic progress rows keyed by topic ID.
func (s *Store) PutTopicProgress(learnerID activity.LearnerID, rows ...activity.TopicProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.topics[learnerID]
	if m == nil {
		m = make(map[string]activity.TopicProgress)
		s.topics[learnerID] = m
	}
	for _, r := range rows {
		m[r.TopicID] = r
	}
}

// AddQuizAttempts appends quiz attempts.
func (s *Store) AddQuizAttempts(learnerID activity.LearnerID, rows ...activity.QuizAttempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes[learnerID] = append(s.quizzes[learnerID], rows...)
}

// AddStudySessions appends study sessions.
func (s *Store) AddStudySessions(learnerID activity.LearnerID, rows ...activity.StudySession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[learnerID] = append(s.sessions[learnerID], rows...)
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY READER
// ══════════════════════════════════════════════════════════════════════════════

// LessonProgress implements activity.Reader.
func (s *Store) LessonProgress(ctx context.Context, learnerID activity.LearnerID) ([]activity.LessonProgress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]activity.LessonProgress, 0, len(s.lessons[learnerID]))
	for _, r := range s.lessons[learnerID] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LessonID < out[j].LessonID })
	return out, nil
}

// TopicProgress implements activity.Reader.
func (s *Store) TopicProgress(ctx context.Context, learnerID activity.LearnerID) ([]activity.TopicProgress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]activity.TopicProgress, 0, len(s.topics[learnerID]))
	for _, r := range s.topics[learnerID] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TopicID < out[j].TopicID })
	return out, nil
}

// QuizAttempts implements activity.Reader. Most recent first.
func (s *Store) QuizAttempts(ctx context.Context, learnerID activity.LearnerID) ([]activity.QuizAttempt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := append([]activity.QuizAttempt(nil), s.quizzes[learnerID]...)
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// StudySessions implements activity.Reader.
func (s *Store) StudySessions(ctx context.Context, learnerID activity.LearnerID) ([]activity.StudySession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]activity.StudySession(nil), s.sessions[learnerID]...), nil
}

// Topics implements activity.CatalogReader.
func (s *Store) Topics(ctx context.Context) ([]activity.Topic, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]activity.Topic(nil), s.catalogTopics...), nil
}

// Subjects implements activity.CatalogReader.
func (s *Store) Subjects(ctx context.Context) ([]activity.Subject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]activity.Subject(nil), s.catalogSubjects...), nil
}

// Lessons implements activity.CatalogReader.
func (s *Store) Lessons(ctx context.Context) ([]activity.Lesson, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]activity.Lesson(nil), s.catalogLessons...), nil
}

// ActiveLearners implements activity.ActiveLearnerLister. Lesson and topic
// updates, quiz attempts and study sessions all count as activity.
func (s *Store) ActiveLearners(ctx context.Context, since time.Time) ([]activity.LearnerID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make(map[activity.LearnerID]struct{})
	for id, rows := range s.lessons {
		for _, p := range rows {
			if !p.UpdatedAt.Before(since) {
				active[id] = struct{}{}
				break
			}
		}
	}
	for id, rows := range s.topics {
		for _, p := range rows {
			if !p.UpdatedAt.Before(since) {
				active[id] = struct{}{}
				break
			}
		}
	}
	for id, rows := range s.quizzes {
		for _, a := range rows {
			if !a.CreatedAt.Before(since) {
				active[id] = struct{}{}
				break
			}
		}
	}
	for id, rows := range s.sessions {
		for _, sess := range rows {
			if !sess.CreatedAt.Before(since) {
				active[id] = struct{}{}
				break
			}
		}
	}

	out := make([]activity.LearnerID, 0, len(active))
	for id := range active {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

// Definitions implements achievement.Repository.
func (s *Store) Definitions(ctx context.Context) ([]achievement.Definition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := append([]achievement.Definition(nil), s.definitions...)
	s.mu.RUnlock()
	achievement.SortDefinitions(out)
	return out, nil
}

// UpsertDefinitions implements achievement.Repository.
func (s *Store) UpsertDefinitions(ctx context.Context, defs []achievement.Definition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	index := make(map[definitionKey]int, len(s.definitions))
	for i, d := range s.definitions {
		index[keyOf(d)] = i
	}
	for _, d := range defs {
		if i, ok := index[keyOf(d)]; ok {
			existing := s.definitions[i]
			existing.Title = d.Title
			existing.Description = d.Description
			existing.Position = d.Position
			s.definitions[i] = existing
			continue
		}
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		index[keyOf(d)] = len(s.definitions)
		s.definitions = append(s.definitions, d)
	}
	return nil
}

// Unlocked implements achievement.Repository.
func (s *Store) Unlocked(ctx context.Context, learnerID activity.LearnerID) (achievement.Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(achievement.Set, len(s.unlocks[learnerID]))
	for id := range s.unlocks[learnerID] {
		out[id] = struct{}{}
	}
	return out, nil
}

// Unlock implements achievement.Repository. The first write wins.
func (s *Store) Unlock(ctx context.Context, learnerID activity.LearnerID, achievementID string, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.unlocks[learnerID]
	if m == nil {
		m = make(map[string]time.Time)
		s.unlocks[learnerID] = m
	}
	if _, ok := m[achievementID]; ok {
		return false, nil
	}
	m[achievementID] = at
	return true, nil
}

// UnlockedAt returns the stored unlock timestamp.
func (s *Store) UnlockedAt(learnerID activity.LearnerID, achievementID string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.unlocks[learnerID][achievementID]
	return at, ok
}

// ══════════════════════════════════════════════════════════════════════════════
// REPORTS
// ══════════════════════════════════════════════════════════════════════════════

// FindFresh implements report.Repository.
func (s *Store) FindFresh(ctx context.Context, learnerID activity.LearnerID, date string, notBefore time.Time) (*report.DailyReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[reportKey{learnerID, date}]
	if !ok || r.CreatedAt.Before(notBefore) {
		return nil, shared.ErrReportNotFound
	}
	out := cloneReport(r)
	return &out, nil
}

// DeleteStale implements report.Repository.
func (s *Store) DeleteStale(ctx context.Context, learnerID activity.LearnerID, date string, olderThan time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := reportKey{learnerID, date}
	if r, ok := s.reports[key]; ok && r.CreatedAt.Before(olderThan) {
		delete(s.reports, key)
		return 1, nil
	}
	return 0, nil
}

// Upsert implements report.Repository.
func (s *Store) Upsert(ctx context.Context, r *report.DailyReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r == nil || !r.LearnerID.IsValid() || r.ReportDate == "" {
		return shared.NewDomainError("report", "Upsert", shared.ErrInvalidInput, "report requires learner and date")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[reportKey{r.LearnerID, r.ReportDate}] = cloneReport(*r)
	return nil
}

// ReportCount returns the number of stored reports of a learner.
func (s *Store) ReportCount(learnerID activity.LearnerID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for k := range s.reports {
		if k.learnerID == learnerID {
			n++
		}
	}
	return n
}

func cloneReport(r report.DailyReport) report.DailyReport {
	r.StrugglingTopics = slices.Clone(r.StrugglingTopics)
	r.NeedsWork = slices.Clone(r.NeedsWork)
	return r
}
