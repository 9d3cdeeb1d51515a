package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"codequest/internal/common"
	"codequest/internal/domain/model"
)

type AchievementRepository interface {
	UpsertAchievement(ctx context.Context, a model.Achievement) error
	ListAchievements(ctx context.Context) ([]model.Achievement, error)
	ListUnlockedIDs(ctx context.Context, userID string) ([]string, error)
	// Unlock inserts the (user, achievement) pair and, only when the insert
	// took effect, credits the achievement's XP reward. It reports whether
	// this call performed the unlock.
	Unlock(ctx context.Context, userID string, a model.Achievement, at time.Time) (bool, error)
	ListUnlockedBetween(ctx context.Context, userID string, from, to time.Time) ([]model.UserAchievement, error)
}

type pgAchievementRepository struct {
	db *sql.DB
}

func NewPgAchievementRepository(db *sql.DB) AchievementRepository {
	return &pgAchievementRepository{db: db}
}

func (r *pgAchievementRepository) UpsertAchievement(ctx context.Context, a model.Achievement) error {
	query := `INSERT INTO achievements (id, name, description, requirement, xp_reward)
	          VALUES ($1, $2, $3, $4, $5)
	          ON CONFLICT (id) DO UPDATE SET
	              name = EXCLUDED.name,
	              description = EXCLUDED.description,
	              requirement = EXCLUDED.requirement,
	              xp_reward = EXCLUDED.xp_reward`
	if _, err := r.db.ExecContext(ctx, query, a.ID, a.Name, a.Description, a.Requirement, a.XPReward); err != nil {
		return fmt.Errorf("pgAchievementRepository.UpsertAchievement: %w", err)
	}
	return nil
}

func (r *pgAchievementRepository) ListAchievements(ctx context.Context) ([]model.Achievement, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, description, requirement, xp_reward FROM achievements ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("pgAchievementRepository.ListAchievements query: %w", err)
	}
	defer rows.Close()

	var out []model.Achievement
	for rows.Next() {
		var a model.Achievement
		if err := rows.Scan(&a.ID, &a.Name, &a.Description, &a.Requirement, &a.XPReward); err != nil {
			return nil, fmt.Errorf("pgAchievementRepository.ListAchievements scan: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *pgAchievementRepository) ListUnlockedIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT achievement_id FROM user_achievements WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("pgAchievementRepository.ListUnlockedIDs query: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("pgAchievementRepository.ListUnlockedIDs scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *pgAchievementRepository) Unlock(ctx context.Context, userID string, a model.Achievement, at time.Time) (unlocked bool, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("pgAchievementRepository.Unlock begin: %w", err)
	}
	defer func() {
		if err != nil || !unlocked {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO user_achievements (user_id, achievement_id, unlocked_at) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, achievement_id) DO NOTHING`, userID, a.ID, at)
	if err != nil {
		return false, fmt.Errorf("pgAchievementRepository.Unlock insert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("pgAchievementRepository.Unlock rows: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if a.XPReward > 0 {
		var xp int
		if err = tx.QueryRowContext(ctx, `SELECT xp FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&xp); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				err = common.ErrNotFound
			}
			return false, fmt.Errorf("pgAchievementRepository.Unlock read xp: %w", err)
		}
		xp += a.XPReward
		if _, err = tx.ExecContext(ctx,
			`UPDATE users SET xp = $2, level = $3, updated_at = NOW() WHERE id = $1`, userID, xp, model.LevelForXP(xp)); err != nil {
			return false, fmt.Errorf("pgAchievementRepository.Unlock credit xp: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("pgAchievementRepository.Unlock commit: %w", err)
	}
	return true, nil
}

func (r *pgAchievementRepository) ListUnlockedBetween(ctx context.Context, userID string, from, to time.Time) ([]model.UserAchievement, error) {
	query := `SELECT ua.user_id, ua.achievement_id, ua.unlocked_at, a.id, a.name, a.description, a.requirement, a.xp_reward
	          FROM user_achievements ua
	          JOIN achievements a ON a.id = ua.achievement_id
	          WHERE ua.user_id = $1 AND ua.unlocked_at BETWEEN $2 AND $3
	          ORDER BY ua.unlocked_at, ua.achievement_id`
	rows, err := r.db.QueryContext(ctx, query, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("pgAchievementRepository.ListUnlockedBetween query: %w", err)
	}
	defer rows.Close()

	var out []model.UserAchievement
	for rows.Next() {
		var ua model.UserAchievement
		if err := rows.Scan(&ua.UserID, &ua.AchievementID, &ua.UnlockedAt,
			&ua.Achievement.ID, &ua.Achievement.Name, &ua.Achievement.Description, &ua.Achievement.Requirement, &ua.Achievement.XPReward); err != nil {
			return nil, fmt.Errorf("pgAchievementRepository.ListUnlockedBetween scan: %w", err)
		}
		out = append(out, ua)
	}
	return out, rows.Err()
}
