package report

import (
	"context"
	"time"

	"github.com/alem-hub/progress-engine/internal/domain/activity"
)

// Repository defines persistence of daily reports.
// This interface is implemented by the infrastructure layer.
type Repository interface {
	// FindFresh returns the report of (learner, date) created at or after notBefore.
	// Returns shared.ErrReportNotFound when there is none.
	FindFresh(ctx context.Context, learnerID activity.LearnerID, date string, notBefore time.Time) (*DailyReport, error)

	// DeleteStale removes reports of (learner, date) created before olderThan.
	DeleteStale(ctx context.Context, learnerID activity.LearnerID, date string, olderThan time.Time) (int64, error)

	// Upsert stores a report, replacing any row with the same (learner, date).
	Upsert(ctx context.Context, r *DailyReport) error
}
