package progress

import (
	"sort"
	"time"

	"github.com/alem-hub/progress-engine/internal/domain/activity"
	"github.com/alem-hub/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK (Серия активных дней)
// ══════════════════════════════════════════════════════════════════════════════

// StudyStreak returns the number of consecutive calendar days with at least one
// study session, ending today or yesterday. Yesterday is enough to keep the
// streak alive, so a learner who has not studied yet today keeps it for one day.
// Sessions dated after today are ignored.
func StudyStreak(sessions []activity.StudySession, now time.Time, loc *time.Location) int {
	if len(sessions) == 0 {
		return 0
	}

	today := timeutil.DayOf(now, loc)
	firstOfDay := make(map[timeutil.Day]time.Time, len(sessions))
	for _, s := range sessions {
		d := timeutil.DayOf(s.CreatedAt, loc)
		if today.Before(d) {
			continue
		}
		if _, ok := firstOfDay[d]; !ok {
			firstOfDay[d] = s.CreatedAt
		}
	}
	if len(firstOfDay) == 0 {
		return 0
	}

	// один момент на каждый день, от новых к старым
	instants := make([]time.Time, 0, len(firstOfDay))
	for _, at := range firstOfDay {
		instants = append(instants, at)
	}
	sort.Slice(instants, func(i, j int) bool { return instants[i].After(instants[j]) })

	if timeutil.DaysBetween(instants[0], now, loc) > 1 {
		return 0
	}

	streak := 1
	for i := 1; i < len(instants); i++ {
		if !timeutil.IsConsecutiveDay(instants[i], instants[i-1], loc) {
			break
		}
		streak++
	}
	return streak
}
