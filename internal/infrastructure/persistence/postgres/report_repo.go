package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/alem-hub/progress-engine/internal/domain/activity"
	"github.com/alem-hub/progress-engine/internal/domain/report"
	"github.com/alem-hub/progress-engine/internal/domain/shared"
	"github.com/alem-hub/progress-engine/pkg/timeutil"
)

const domainReport = "report"

// ══════════════════════════════════════════════════════════════════════════════
// REPORT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ReportRepository implements report.Repository for PostgreSQL.
// Topic lists are stored as JSONB in the same shape the report is served in.
type ReportRepository struct {
	conn *Connection
}

// NewReportRepository creates a new ReportRepository.
func NewReportRepository(conn *Connection) *ReportRepository {
	return &ReportRepository{conn: conn}
}

// FindFresh returns the report of (learner, date) created at or after notBefore.
func (r *ReportRepository) FindFresh(ctx context.Context, learnerID activity.LearnerID, date string, notBefore time.Time) (*report.DailyReport, error) {
	var (
		rep        report.DailyReport
		struggling []byte
		needsWork  []byte
		learner    string
	)
	if err := checkReportDate("FindFresh", date); err != nil {
		return nil, err
	}
	err := r.conn.QueryRow(ctx, `
		SELECT id::text, learner_id::text, to_char(report_date, 'YYYY-MM-DD'),
		       struggling_topics, needs_work, recommendations, overall_performance, created_at
		FROM daily_reports
		WHERE learner_id = $1 AND report_date = $2::date AND created_at >= $3
	`, learnerID.String(), date, notBefore.UTC()).Scan(
		&rep.ID, &learner, &rep.ReportDate,
		&struggling, &needsWork, &rep.Recommendations, &rep.OverallPerformance, &rep.CreatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrReportNotFound
		}
		return nil, storeError(domainReport, "FindFresh", err)
	}

	rep.LearnerID = activity.LearnerID(learner)
	rep.CreatedAt = rep.CreatedAt.UTC()
	if err := json.Unmarshal(struggling, &rep.StrugglingTopics); err != nil {
		return nil, shared.WrapError(domainReport, "FindFresh", shared.ErrInvalidFormat, "corrupt struggling_topics", err)
	}
	if err := json.Unmarshal(needsWork, &rep.NeedsWork); err != nil {
		return nil, shared.WrapError(domainReport, "FindFresh", shared.ErrInvalidFormat, "corrupt needs_work", err)
	}
	if rep.StrugglingTopics == nil {
		rep.StrugglingTopics = []report.StrugglingTopic{}
	}
	if rep.NeedsWork == nil {
		rep.NeedsWork = []report.NeedsWorkItem{}
	}
	return &rep, nil
}

// DeleteStale removes reports of (learner, date) created before olderThan.
func (r *ReportRepository) DeleteStale(ctx context.Context, learnerID activity.LearnerID, date string, olderThan time.Time) (int64, error) {
	if err := checkReportDate("DeleteStale", date); err != nil {
		return 0, err
	}
	tag, err := r.conn.Exec(ctx, `
		DELETE FROM daily_reports
		WHERE learner_id = $1 AND report_date = $2::date AND created_at < $3
	`, learnerID.String(), date, olderThan.UTC())
	if err != nil {
		return 0, storeError(domainReport, "DeleteStale", err)
	}
	return tag.RowsAffected(), nil
}

// Upsert stores a report, replacing any row with the same (learner, date).
func (r *ReportRepository) Upsert(ctx context.Context, rep *report.DailyReport) error {
	if rep == nil {
		return shared.NewDomainError(domainReport, "Upsert", shared.ErrInvalidInput, "report is nil")
	}
	if err := checkReportDate("Upsert", rep.ReportDate); err != nil {
		return err
	}

	struggling, err := marshalList(rep.StrugglingTopics)
	if err != nil {
		return shared.WrapError(domainReport, "Upsert", shared.ErrInvalidFormat, "failed to marshal struggling_topics", err)
	}
	needsWork, err := marshalList(rep.NeedsWork)
	if err != nil {
		return shared.WrapError(domainReport, "Upsert", shared.ErrInvalidFormat, "failed to marshal needs_work", err)
	}

	_, err = r.conn.Exec(ctx, `
		INSERT INTO daily_reports (
			id, learner_id, report_date, struggling_topics, needs_work,
			recommendations, overall_performance, created_at
		) VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8)
		ON CONFLICT (learner_id, report_date) DO UPDATE
		SET id = EXCLUDED.id,
		    struggling_topics = EXCLUDED.struggling_topics,
		    needs_work = EXCLUDED.needs_work,
		    recommendations = EXCLUDED.recommendations,
		    overall_performance = EXCLUDED.overall_performance,
		    created_at = EXCLUDED.created_at
	`,
		rep.ID,
		rep.LearnerID.String(),
		rep.ReportDate,
		struggling,
		needsWork,
		rep.Recommendations,
		rep.OverallPerformance,
		rep.CreatedAt.UTC(),
	)
	if err != nil {
		return storeError(domainReport, "Upsert", err)
	}
	return nil
}

// checkReportDate rejects keys that are not YYYY-MM-DD before they reach $2::date.
func checkReportDate(op, date string) error {
	if _, err := timeutil.ParseDay(date); err != nil {
		return shared.WrapError(domainReport, op, shared.ErrInvalidFormat, "report date must be YYYY-MM-DD", err)
	}
	return nil
}

// marshalList encodes a topic list, writing [] rather than null for nil.
func marshalList[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}

var _ report.Repository = (*ReportRepository)(nil)
