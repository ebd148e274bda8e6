package config

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/progress")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "UTC", cfg.App.Timezone)
	assert.Equal(t, time.UTC, cfg.App.Location)
	assert.Equal(t, 30*time.Minute, cfg.Engine.ReportFreshness)
	assert.Equal(t, 7*24*time.Hour, cfg.Engine.StaleAfter)
	assert.Equal(t, 10, cfg.Engine.NeedsWorkLimit)
	assert.Equal(t, 70.0, cfg.Engine.StrugglingThreshold)
	assert.Zero(t, cfg.Engine.PollInterval)
	assert.Empty(t, cfg.Engine.CatalogFile)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/progress")
	t.Setenv("APP_TIMEZONE", "Asia/Almaty")
	t.Setenv("ENGINE_REPORT_FRESHNESS", "15m")
	t.Setenv("ENGINE_STRUGGLING_THRESHOLD", "65.5")
	t.Setenv("ENGINE_POLL_INTERVAL", "1m")
	t.Setenv("ENGINE_LEARNER_IDS", " a, b ,,c ")
	t.Setenv("REDIS_DISABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Asia/Almaty", cfg.App.Location.String())
	assert.Equal(t, 15*time.Minute, cfg.Engine.ReportFreshness)
	assert.Equal(t, 65.5, cfg.Engine.StrugglingThreshold)
	assert.Equal(t, time.Minute, cfg.Engine.PollInterval)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Engine.LearnerIDs)
	assert.True(t, cfg.Redis.Disabled)
}

func TestLoad_DatabaseURLFromParts(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "engine")
	t.Setenv("DB_PASSWORD", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://engine:secret@db:5432/postgres?sslmode=require", cfg.Database.URL)
}

func TestValidate_CollectsErrors(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("APP_TIMEZONE", "Mars/Olympus")
	t.Setenv("ENGINE_NEEDS_WORK_LIMIT", "0")
	t.Setenv("ENGINE_STRUGGLING_THRESHOLD", "150")

	_, err := Load()
	require.Error(t, err)
	for _, want := range []string{
		"DATABASE_URL is required",
		"APP_TIMEZONE",
		"ENGINE_NEEDS_WORK_LIMIT",
		"ENGINE_STRUGGLING_THRESHOLD",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestFeatureFlags(t *testing.T) {
	t.Setenv("FEATURE_ENGINE_DAILY_REPORTS", "false")
	t.Setenv("FEATURE_ENGINE_REPORT_CACHE", "50")

	ff := LoadFeatureFlags()

	assert.True(t, ff.IsEnabled(FeatureAchievements, "learner-1"))
	assert.False(t, ff.IsEnabled(FeatureDailyReports, "learner-1"))
	assert.False(t, ff.IsEnabled("unknown", "learner-1"))

	// 50% rollout is stable per learner and splits a population.
	in := 0
	for i := 0; i < 200; i++ {
		id := fmt.Sprintf("learner-%d", i)
		first := ff.IsEnabled(FeatureReportCache, id)
		assert.Equal(t, first, ff.IsEnabled(FeatureReportCache, id))
		if first {
			in++
		}
	}
	assert.Greater(t, in, 50)
	assert.Less(t, in, 150)

	ff.SetLearnerOverride("learner-1", FeatureDailyReports, true)
	assert.True(t, ff.IsEnabled(FeatureDailyReports, "learner-1"))
	assert.False(t, ff.IsEnabled(FeatureDailyReports, "learner-2"))

	assert.ErrorIs(t, ff.SetRolloutPercent("unknown", 10), ErrFeatureNotFound)
	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureAchievements, 101), ErrInvalidRolloutPercent)
	require.NoError(t, ff.SetRolloutPercent(FeatureAchievements, 0))
	assert.False(t, ff.IsEnabled(FeatureAchievements, ""))
}
