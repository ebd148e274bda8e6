package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_IsMatchesKindAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapError("activity", "Load", ErrStoreUnavailable, "read failed", cause)

	assert.True(t, errors.Is(err, ErrStoreUnavailable))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "activity.Load: read failed: connection refused", err.Error())
}

func TestDomainError_WrappedByFmt(t *testing.T) {
	err := fmt.Errorf("saga: %w", ErrReportNotFound)

	assert.True(t, IsNotFound(err))
	assert.False(t, IsStoreUnavailable(err))
}

func TestClassifiers(t *testing.T) {
	assert.True(t, IsRetryable(ErrUnlockFailed))
	assert.True(t, IsRetryable(NewDomainError("report", "Upsert", ErrWriteConflict, "conflict")))
	assert.False(t, IsRetryable(ErrInvalidGrade))
	assert.True(t, IsValidation(ErrInvalidLearnerID))
	assert.True(t, errors.Is(ErrInvalidGrade, ErrRuleEvaluation))
}
