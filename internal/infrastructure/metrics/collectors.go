// Package metrics exposes engine measurements as Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alem-hub/progress-engine/internal/application/query"
)

const namespace = "progress_engine"

// Collectors implements query.Recorder on top of Prometheus.
type Collectors struct {
	AchievementsUnlocked *prometheus.CounterVec
	RuleFailures         *prometheus.CounterVec
	UnlockWriteFailures  prometheus.Counter
	Reports              *prometheus.CounterVec
	LoadDuration         prometheus.Histogram
}

// NewCollectors creates the collectors and registers them with reg.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		AchievementsUnlocked: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "achievements_unlocked_total",
				Help:      "Achievements unlocked, by rule key.",
			},
			[]string{"rule_key"},
		),
		RuleFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rule_failures_total",
				Help:      "Rules skipped because they could not be evaluated, by rule key.",
			},
			[]string{"rule_key"},
		),
		UnlockWriteFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unlock_write_failures_total",
				Help:      "Unlock writes that failed after retry.",
			},
		),
		Reports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reports_total",
				Help:      "Daily reports served, by source.",
			},
			[]string{"source"},
		),
		LoadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "load_duration_seconds",
				Help:      "Duration of learner data loads.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			c.AchievementsUnlocked,
			c.RuleFailures,
			c.UnlockWriteFailures,
			c.Reports,
			c.LoadDuration,
		)
	}
	return c
}

// ObserveLoad records the duration of a learner data load.
func (c *Collectors) ObserveLoad(d time.Duration) {
	c.LoadDuration.Observe(d.Seconds())
}

// ReportServed counts a report by where it came from.
func (c *Collectors) ReportServed(source string) {
	c.Reports.WithLabelValues(source).Inc()
}

// AchievementUnlocked counts a persisted unlock.
func (c *Collectors) AchievementUnlocked(ruleKey string) {
	c.AchievementsUnlocked.WithLabelValues(ruleKey).Inc()
}

// RuleFailed counts a rule that could not be evaluated.
func (c *Collectors) RuleFailed(ruleKey string) {
	c.RuleFailures.WithLabelValues(ruleKey).Inc()
}

// UnlockWriteFailed counts an unlock write that failed after retry.
func (c *Collectors) UnlockWriteFailed() {
	c.UnlockWriteFailures.Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

var _ query.Recorder = (*Collectors)(nil)
