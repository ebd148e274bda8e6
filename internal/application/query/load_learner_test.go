package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/progress-engine/internal/domain/achievement"
	"github.com/alem-hub/progress-engine/internal/domain/activity"
	"github.com/alem-hub/progress-engine/internal/domain/shared"
	"github.com/alem-hub/progress-engine/internal/infrastructure/persistence/memory"
)

const learnerID = activity.LearnerID("5f0c6d2e-8a43-4b8e-9d1a-2f3c4b5a6d7e")

var now = time.Date(2025, 6, 18, 15, 0, 0, 0, time.UTC)

// MockReader is a mock implementation of activity.Reader.
type MockReader struct {
	mock.Mock
}

func (m *MockReader) LessonProgress(ctx context.Context, id activity.LearnerID) ([]activity.LessonProgress, error) {
	args := m.Called(ctx, id)
	rows, _ := args.Get(0).([]activity.LessonProgress)
	return rows, args.Error(1)
}

func (m *MockReader) TopicProgress(ctx context.Context, id activity.LearnerID) ([]activity.TopicProgress, error) {
	args := m.Called(ctx, id)
	rows, _ := args.Get(0).([]activity.TopicProgress)
	return rows, args.Error(1)
}

func (m *MockReader) QuizAttempts(ctx context.Context, id activity.LearnerID) ([]activity.QuizAttempt, error) {
	args := m.Called(ctx, id)
	rows, _ := args.Get(0).([]activity.QuizAttempt)
	return rows, args.Error(1)
}

func (m *MockReader) StudySessions(ctx context.Context, id activity.LearnerID) ([]activity.StudySession, error) {
	args := m.Called(ctx, id)
	rows, _ := args.Get(0).([]activity.StudySession)
	return rows, args.Error(1)
}

func seededStore() *memory.Store {
	s := memory.New()
	s.SetCatalog(
		[]activity.Topic{
			{ID: "t-frac", Name: "Fractions", SubjectID: "math"},
			{ID: "t-dec", Name: "Decimals", SubjectID: "math"},
		},
		[]activity.Subject{{ID: "math", Name: "Math"}},
		[]activity.Lesson{{ID: "l1", TopicID: "t-frac"}},
	)
	return s
}

func TestLearnerLoader_Load(t *testing.T) {
	ctx := context.Background()
	store := seededStore()
	store.PutLessonProgress(learnerID, activity.LessonProgress{LessonID: "l1", Completed: true})
	store.AddQuizAttempts(learnerID, activity.QuizAttempt{TopicID: "t-frac", Percentage: 80, CreatedAt: now})
	require.NoError(t, store.UpsertDefinitions(ctx, []achievement.Definition{{ID: "a1", RuleKey: achievement.KeyFirstSteps, Title: "First Steps"}}))
	_, err := store.Unlock(ctx, learnerID, "a1", now)
	require.NoError(t, err)

	loader := NewLearnerLoader(store, store, store, nil)
	data, err := loader.Load(ctx, learnerID)

	require.NoError(t, err)
	assert.Equal(t, learnerID, data.Snapshot.LearnerID)
	assert.Len(t, data.Snapshot.Lessons, 1)
	assert.Len(t, data.Snapshot.QuizAttempts, 1)
	assert.Len(t, data.Snapshot.Catalog.Topics, 2)
	_, ok := data.Snapshot.Catalog.Topic("t-dec")
	assert.True(t, ok)
	assert.Len(t, data.Definitions, 1)
	assert.True(t, data.Unlocked.Has("a1"))
}

func TestLearnerLoader_ReadFailureIsStoreUnavailable(t *testing.T) {
	store := seededStore()
	reader := new(MockReader)
	reader.On("LessonProgress", mock.Anything, learnerID).Return([]activity.LessonProgress{}, nil).Maybe()
	reader.On("TopicProgress", mock.Anything, learnerID).Return(nil, errors.New("connection refused"))
	reader.On("QuizAttempts", mock.Anything, learnerID).Return([]activity.QuizAttempt{}, nil).Maybe()
	reader.On("StudySessions", mock.Anything, learnerID).Return([]activity.StudySession{}, nil).Maybe()

	loader := NewLearnerLoader(reader, store, store, nil)
	_, err := loader.LoadSnapshot(context.Background(), learnerID)

	require.Error(t, err)
	assert.True(t, shared.IsStoreUnavailable(err))
	assert.ErrorIs(t, err, shared.ErrActivityLoad)
	assert.Contains(t, err.Error(), "topic progress")
	reader.AssertExpectations(t)
}

func TestLearnerLoader_LoadWithoutAchievementRepository(t *testing.T) {
	store := seededStore()
	loader := NewLearnerLoader(store, store, nil, nil)

	_, err := loader.Load(context.Background(), learnerID)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = loader.LoadSnapshot(context.Background(), learnerID)
	assert.NoError(t, err)
}

func TestValidateLearnerID(t *testing.T) {
	id, err := ValidateLearnerID(string(learnerID))
	require.NoError(t, err)
	assert.Equal(t, learnerID, id)

	_, err = ValidateLearnerID("not-a-uuid")
	assert.ErrorIs(t, err, shared.ErrInvalidID)
	assert.True(t, shared.IsValidation(err))
}
