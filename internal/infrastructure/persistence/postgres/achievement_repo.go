package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/progress-engine/internal/domain/achievement"
	"github.com/alem-hub/progress-engine/internal/domain/activity"
	"github.com/alem-hub/progress-engine/internal/domain/shared"
)

const domainAchievement = "achievement"

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AchievementRepository implements achievement.Repository for PostgreSQL.
type AchievementRepository struct {
	conn *Connection
}

// NewAchievementRepository creates a new AchievementRepository.
func NewAchievementRepository(conn *Connection) *AchievementRepository {
	return &AchievementRepository{conn: conn}
}

// Definitions returns the full catalog in catalog order.
func (r *AchievementRepository) Definitions(ctx context.Context) ([]achievement.Definition, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id::text, rule_key, title, description, grade, position
		FROM achievement_definitions
		ORDER BY position, id
	`)
	if err != nil {
		return nil, storeError(domainAchievement, "Definitions", err)
	}

	defs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (achievement.Definition, error) {
		var (
			d     achievement.Definition
			key   string
			grade int
		)
		if err := row.Scan(&d.ID, &key, &d.Title, &d.Description, &grade, &d.Position); err != nil {
			return d, err
		}
		d.RuleKey = achievement.RuleKey(key)
		d.Grade = gradeFromColumn(grade)
		return d, nil
	})
	if err != nil {
		return nil, storeError(domainAchievement, "Definitions", err)
	}
	return defs, nil
}

// Unlocked returns the IDs of every achievement the learner holds.
func (r *AchievementRepository) Unlocked(ctx context.Context, learnerID activity.LearnerID) (achievement.Set, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT achievement_id::text
		FROM achievement_unlocks
		WHERE learner_id = $1 AND unlocked
	`, learnerID.String())
	if err != nil {
		return nil, storeError(domainAchievement, "Unlocked", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, storeError(domainAchievement, "Unlocked", err)
	}
	return achievement.NewSet(ids...), nil
}

// Unlock records an unlock. An existing unlocked row is left untouched, so
// the first writer's timestamp wins and later writers see inserted == false.
func (r *AchievementRepository) Unlock(ctx context.Context, learnerID activity.LearnerID, achievementID string, at time.Time) (bool, error) {
	tag, err := r.conn.Exec(ctx, `
		INSERT INTO achievement_unlocks (learner_id, achievement_id, unlocked, unlocked_at)
		VALUES ($1, $2, TRUE, $3)
		ON CONFLICT (learner_id, achievement_id) DO UPDATE
		SET unlocked = TRUE, unlocked_at = EXCLUDED.unlocked_at
		WHERE NOT achievement_unlocks.unlocked
	`, learnerID.String(), achievementID, at.UTC())
	if err != nil {
		return false, unlockError(achievementID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// unlockError reports an unknown achievement id as ErrAchievementNotFound.
func unlockError(achievementID string, err error) error {
	wrapped := storeError(domainAchievement, "Unlock", err)
	if pgCode(err) == codeForeignKeyViolation {
		return fmt.Errorf("%w %q: %w", shared.ErrAchievementNotFound, achievementID, wrapped)
	}
	return wrapped
}

// UpsertDefinitions seeds or refreshes catalog entries keyed by (rule_key, grade).
// The whole batch is applied in one transaction.
func (r *AchievementRepository) UpsertDefinitions(ctx context.Context, defs []achievement.Definition) error {
	if len(defs) == 0 {
		return nil
	}

	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, d := range defs {
			batch.Queue(`
				INSERT INTO achievement_definitions (id, rule_key, grade, title, description, position)
				VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6)
				ON CONFLICT (rule_key, grade) DO UPDATE
				SET title = EXCLUDED.title,
				    description = EXCLUDED.description,
				    position = EXCLUDED.position,
				    updated_at = NOW()
			`, d.ID, d.RuleKey.String(), gradeToColumn(d.Grade), d.Title, d.Description, d.Position)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return storeError(domainAchievement, "UpsertDefinitions", err)
	}
	return nil
}

// grade column: 0 stands for "no grade".
func gradeToColumn(g *int) int {
	if g == nil {
		return 0
	}
	return *g
}

func gradeFromColumn(g int) *int {
	if g == 0 {
		return nil
	}
	return &g
}

var _ achievement.Repository = (*AchievementRepository)(nil)
