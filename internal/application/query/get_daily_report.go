package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/progress-engine/internal/domain/activity"
	"github.com/alem-hub/progress-engine/internal/domain/report"
	"github.com/alem-hub/progress-engine/internal/domain/shared"
	"github.com/alem-hub/progress-engine/pkg/logger"
	"github.com/alem-hub/progress-engine/pkg/retry"
	"github.com/alem-hub/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET DAILY REPORT QUERY
// Возвращает свежий отчёт за сегодня или пересчитывает его.
// Свежий отчёт (создан не раньше now-окно, дата = сегодня) отдаётся без
// пересчёта и без записей в хранилище.
// ══════════════════════════════════════════════════════════════════════════════

// GetDailyReportQuery содержит параметры запроса отчёта.
type GetDailyReportQuery struct {
	// LearnerID - UUID ученика.
	LearnerID string

	// Now - текущий момент; задаётся вызывающим.
	Now time.Time
}

// Validate проверяет корректность параметров.
func (q GetDailyReportQuery) Validate() (activity.LearnerID, error) {
	if q.Now.IsZero() {
		return "", shared.NewDomainError("report", "Validate", shared.ErrInvalidInput, "now is required")
	}
	return ValidateLearnerID(q.LearnerID)
}

// ReportCache is an optional read-through cache of daily reports.
// Get returns an error matching shared.ErrNotFound on a miss.
type ReportCache interface {
	Get(ctx context.Context, learnerID activity.LearnerID, date string) (*report.DailyReport, error)
	Set(ctx context.Context, r *report.DailyReport, ttl time.Duration) error
	Invalidate(ctx context.Context, learnerID activity.LearnerID, date string) error
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	GenerateID() string
}

// UUIDGenerator generates random UUIDs.
type UUIDGenerator struct{}

// GenerateID implements IDGenerator.
func (UUIDGenerator) GenerateID() string {
	return uuid.NewString()
}

// GetDailyReportConfig contains configuration of the handler.
type GetDailyReportConfig struct {
	// Freshness is how long a stored report is served without recomputation.
	Freshness time.Duration

	// Location defines calendar days.
	Location *time.Location

	// Options tunes the classifiers.
	Options report.Options

	// Retrier is used for the report upsert. Nil means one retry.
	Retrier *retry.Retrier
}

// DefaultGetDailyReportConfig returns default configuration.
func DefaultGetDailyReportConfig() GetDailyReportConfig {
	return GetDailyReportConfig{
		Freshness: 30 * time.Minute,
		Location:  time.UTC,
		Options:   report.DefaultOptions(),
	}
}

// GetDailyReportHandler обрабатывает запрос отчёта.
type GetDailyReportHandler struct {
	loader   *LearnerLoader
	reports  report.Repository
	cache    ReportCache
	ids      IDGenerator
	config   GetDailyReportConfig
	retrier  *retry.Retrier
	log      *logger.Logger
	recorder Recorder
}

// NewGetDailyReportHandler создаёт новый обработчик. cache, ids, log and
// recorder may be nil.
func NewGetDailyReportHandler(
	loader *LearnerLoader,
	reports report.Repository,
	cache ReportCache,
	ids IDGenerator,
	config GetDailyReportConfig,
	log *logger.Logger,
	recorder Recorder,
) *GetDailyReportHandler {
	if ids == nil {
		ids = UUIDGenerator{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if recorder == nil {
		recorder = NopRecorder{}
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	log = log.With(logger.Component("daily_report"), logger.Operation("get_daily_report"))
	retrier := config.Retrier
	if retrier == nil {
		retrier = retry.StoreWriteRetrier(shared.IsRetryable, retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			log.Warn("retrying report upsert", logger.Int("attempt", attempt), logger.Duration("delay", delay), logger.Err(err))
		}))
	}
	return &GetDailyReportHandler{
		loader:   loader,
		reports:  reports,
		cache:    cache,
		ids:      ids,
		config:   config,
		retrier:  retrier,
		log:      log,
		recorder: recorder,
	}
}

// Handle возвращает свежий отчёт или создаёт новый.
func (h *GetDailyReportHandler) Handle(ctx context.Context, q GetDailyReportQuery) (*report.DailyReport, error) {
	learnerID, err := q.Validate()
	if err != nil {
		return nil, err
	}

	// Stored timestamps have microsecond precision.
	now := q.Now.UTC().Truncate(time.Microsecond)
	date := timeutil.DateKey(now, h.config.Location)
	notBefore := now.Add(-h.config.Freshness)
	log := h.log.With(logger.LearnerID(learnerID.String()), logger.ReportDate(date))

	// Шаг 1: кеш
	if cached := h.fromCache(ctx, learnerID, date, now, log); cached != nil {
		h.recorder.ReportServed(SourceCache)
		return cached, nil
	}

	// Шаг 2: свежий отчёт в хранилище
	stored, err := h.reports.FindFresh(ctx, learnerID, date, notBefore)
	switch {
	case err == nil:
		h.toCache(ctx, stored, now, log)
		h.recorder.ReportServed(SourceStore)
		return stored, nil
	case !shared.IsNotFound(err):
		return nil, shared.WrapError("report", "FindFresh", shared.ErrStoreUnavailable, "failed to read report", err)
	}

	// Шаг 3: удалить устаревшие отчёты за день
	if n, err := h.reports.DeleteStale(ctx, learnerID, date, notBefore); err != nil {
		log.Warn("failed to delete stale reports", logger.Err(err))
	} else if n > 0 {
		log.Debug("deleted stale reports", logger.Int64("count", n))
	}

	// Шаг 4: пересчёт
	snap, err := h.loader.LoadSnapshot(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	built := report.Build(snap, now, h.config.Location, h.config.Options)
	built.ID = h.ids.GenerateID()

	// Шаг 5: сохранение
	err = h.retrier.Do(ctx, func(ctx context.Context) error {
		return h.reports.Upsert(ctx, &built)
	})
	if err != nil {
		err = fmt.Errorf("%w: %w", shared.ErrReportSave, err)
		log.Error("failed to save report", logger.Err(err))
		return nil, err
	}

	h.toCache(ctx, &built, now, log)
	h.recorder.ReportServed(SourceComputed)
	log.Info("daily report computed",
		logger.Int("struggling", len(built.StrugglingTopics)),
		logger.Int("needs_work", len(built.NeedsWork)),
	)
	return &built, nil
}

func (h *GetDailyReportHandler) fromCache(ctx context.Context, learnerID activity.LearnerID, date string, now time.Time, log *logger.Logger) *report.DailyReport {
	if h.cache == nil {
		return nil
	}
	cached, err := h.cache.Get(ctx, learnerID, date)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			log.Warn("report cache read failed", logger.Err(err))
		}
		return nil
	}
	if !cached.IsFresh(date, now, h.config.Freshness) {
		if err := h.cache.Invalidate(ctx, learnerID, date); err != nil {
			log.Warn("failed to drop stale cached report", logger.Err(err))
		}
		return nil
	}
	return cached
}

func (h *GetDailyReportHandler) toCache(ctx context.Context, r *report.DailyReport, now time.Time, log *logger.Logger) {
	if h.cache == nil {
		return
	}
	ttl := h.config.Freshness - now.Sub(r.CreatedAt)
	if ttl <= 0 {
		return
	}
	if err := h.cache.Set(ctx, r, ttl); err != nil {
		log.Warn("report cache write failed", logger.Err(err))
	}
}
