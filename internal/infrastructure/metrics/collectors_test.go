package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/progress-engine/internal/application/query"
)

func TestCollectors_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectors(reg)

	c.AchievementUnlocked("first_steps")
	c.AchievementUnlocked("first_steps")
	c.AchievementUnlocked("night_owl")
	c.RuleFailed("grade_graduate")
	c.UnlockWriteFailed()
	c.ReportServed(query.SourceComputed)
	c.ReportServed(query.SourceStore)
	c.ReportServed(query.SourceStore)
	c.ObserveLoad(20 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.AchievementsUnlocked.WithLabelValues("first_steps")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.AchievementsUnlocked.WithLabelValues("night_owl")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.RuleFailures.WithLabelValues("grade_graduate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.UnlockWriteFailures))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Reports.WithLabelValues(query.SourceStore)))
	assert.Equal(t, 1, testutil.CollectAndCount(c.LoadDuration))

	err := testutil.CollectAndCompare(c.Reports, strings.NewReader(`
# HELP progress_engine_reports_total Daily reports served, by source.
# TYPE progress_engine_reports_total counter
progress_engine_reports_total{source="computed"} 1
progress_engine_reports_total{source="store"} 2
`))
	assert.NoError(t, err)
}

func TestCollectors_RegisterTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollectors(reg)

	assert.Panics(t, func() { NewCollectors(reg) })
	assert.NotPanics(t, func() { NewCollectors(nil) })
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectors(reg)
	c.UnlockWriteFailed()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "progress_engine_unlock_write_failures_total 1")
}
