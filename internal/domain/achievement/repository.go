package achievement

import (
	"context"
	"time"

	"github.com/alem-hub/progress-engine/internal/domain/activity"
)

// Repository defines persistence of the achievement catalog and unlocks.
// This interface is implemented by the infrastructure layer.
type Repository interface {
	// Definitions returns the full catalog in catalog order.
	Definitions(ctx context.Context) ([]Definition, error)

	// Unlocked returns the IDs of every achievement the learner holds.
	Unlocked(ctx context.Context, learnerID activity.LearnerID) (Set, error)

	// Unlock records an unlock. The first write wins: when the learner already
	// holds the achievement the stored timestamp is kept and inserted is false.
	Unlock(ctx context.Context, learnerID activity.LearnerID, achievementID string, at time.Time) (inserted bool, err error)

	// UpsertDefinitions seeds or refreshes catalog entries keyed by (rule key, grade).
	// Existing IDs are preserved so that recorded unlocks stay valid.
	UpsertDefinitions(ctx context.Context, defs []Definition) error
}
