package redis

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/progress-engine/internal/domain/activity"
	"github.com/alem-hub/progress-engine/internal/domain/report"
	"github.com/alem-hub/progress-engine/internal/domain/shared"
	"github.com/alem-hub/progress-engine/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPORT CACHE
// ══════════════════════════════════════════════════════════════════════════════

// ReportCache caches daily reports by (learner, date).
// The store stays the source of truth; callers re-check freshness on every hit.
type ReportCache struct {
	cache   *Cache
	breaker *circuitbreaker.Breaker
}

// NewReportCache creates a new ReportCache.
func NewReportCache(cache *Cache) *ReportCache {
	return &ReportCache{cache: cache}
}

// WithBreaker guards every call with b. Misses do not count as failures;
// while b is open, calls fail fast as unavailable.
func (c *ReportCache) WithBreaker(b *circuitbreaker.Breaker) *ReportCache {
	c.breaker = b
	return c
}

func (c *ReportCache) guard(ctx context.Context, op string, fn func(context.Context) error) error {
	if c.breaker == nil {
		return fn(ctx)
	}
	err := c.breaker.Execute(ctx, fn)
	if circuitbreaker.IsRejected(err) {
		return shared.WrapError("report_cache", op, shared.ErrStoreUnavailable, "cache circuit open", err)
	}
	return err
}

// ReportKey returns the cache key of a learner's report for a date.
func ReportKey(learnerID activity.LearnerID, date string) string {
	return PrefixReport + learnerID.String() + ":" + date
}

// Get returns the cached report. A miss matches shared.ErrNotFound.
func (c *ReportCache) Get(ctx context.Context, learnerID activity.LearnerID, date string) (*report.DailyReport, error) {
	var r report.DailyReport
	err := c.guard(ctx, "Get", func(ctx context.Context) error {
		if err := c.cache.Get(ctx, ReportKey(learnerID, date), &r); err != nil {
			if errors.Is(err, ErrCacheMiss) {
				return shared.WrapError("report_cache", "Get", shared.ErrNotFound, "report not cached", err)
			}
			return shared.WrapError("report_cache", "Get", shared.ErrStoreUnavailable, "cache read failed", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Set stores a report for ttl.
func (c *ReportCache) Set(ctx context.Context, r *report.DailyReport, ttl time.Duration) error {
	if r == nil {
		return shared.NewDomainError("report_cache", "Set", shared.ErrInvalidInput, "report is nil")
	}
	return c.guard(ctx, "Set", func(ctx context.Context) error {
		if err := c.cache.Set(ctx, ReportKey(r.LearnerID, r.ReportDate), r, ttl); err != nil {
			return shared.WrapError("report_cache", "Set", shared.ErrStoreUnavailable, "cache write failed", err)
		}
		return nil
	})
}

// Invalidate drops the cached report of (learner, date).
func (c *ReportCache) Invalidate(ctx context.Context, learnerID activity.LearnerID, date string) error {
	return c.guard(ctx, "Invalidate", func(ctx context.Context) error {
		if err := c.cache.Delete(ctx, ReportKey(learnerID, date)); err != nil {
			return shared.WrapError("report_cache", "Invalidate", shared.ErrStoreUnavailable, "cache delete failed", err)
		}
		return nil
	})
}
