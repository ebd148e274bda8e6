package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alem-hub/progress-engine/internal/domain/activity"
)

func sessionsOn(offsets ...int) []activity.StudySession {
	out := make([]activity.StudySession, 0, len(offsets))
	for _, off := range offsets {
		out = append(out, activity.StudySession{CreatedAt: daysAgo(off, 12), Minutes: 10})
	}
	return out
}

func TestStudyStreak(t *testing.T) {
	tests := []struct {
		name     string
		sessions []activity.StudySession
		want     int
	}{
		{"no sessions", nil, 0},
		{"only today", sessionsOn(0), 1},
		{"only yesterday keeps streak", sessionsOn(1), 1},
		{"today and yesterday", sessionsOn(0, 1), 2},
		{"gap before yesterday does not extend", sessionsOn(1, 3, 4), 1},
		{"last study two days ago breaks streak", sessionsOn(2, 3), 0},
		{"multiple sessions per day count once", sessionsOn(0, 0, 1, 1, 2), 3},
		{"unordered input", sessionsOn(3, 0, 2, 1), 4},
		{"week run ending yesterday", sessionsOn(1, 2, 3, 4, 5, 6, 7), 7},
		{"future sessions ignored", sessionsOn(-1, 0), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StudyStreak(tt.sessions, now, time.UTC))
		})
	}
}

func TestStudyStreak_AcrossMonthBoundary(t *testing.T) {
	first := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	sessions := []activity.StudySession{
		{CreatedAt: time.Date(2025, 6, 29, 9, 0, 0, 0, time.UTC)},
		{CreatedAt: time.Date(2025, 6, 30, 9, 0, 0, 0, time.UTC)},
		{CreatedAt: first},
	}

	assert.Equal(t, 3, StudyStreak(sessions, first.Add(3*time.Hour), time.UTC))
}
