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

type DailyChallengeRepository interface {
	// FindByDate looks up the challenge for the UTC calendar date of day.
	FindByDate(ctx context.Context, day time.Time) (*model.DailyChallenge, error)
	Upsert(ctx context.Context, dc model.DailyChallenge) error
}

type pgDailyChallengeRepository struct {
	db *sql.DB
}

func NewPgDailyChallengeRepository(db *sql.DB) DailyChallengeRepository {
	return &pgDailyChallengeRepository{db: db}
}

func (r *pgDailyChallengeRepository) FindByDate(ctx context.Context, day time.Time) (*model.DailyChallenge, error) {
	key := day.UTC().Format(time.DateOnly)
	dc := &model.DailyChallenge{}
	err := r.db.QueryRowContext(ctx,
		`SELECT problem_id, xp_bonus FROM daily_challenges WHERE challenge_date = $1::date`, key,
	).Scan(&dc.ProblemID, &dc.XPBonus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgDailyChallengeRepository.FindByDate: %w", err)
	}
	dc.Date, _ = time.Parse(time.DateOnly, key)
	return dc, nil
}

func (r *pgDailyChallengeRepository) Upsert(ctx context.Context, dc model.DailyChallenge) error {
	query := `INSERT INTO daily_challenges (challenge_date, problem_id, xp_bonus) VALUES ($1::date, $2, $3)
	          ON CONFLICT (challenge_date) DO UPDATE SET problem_id = EXCLUDED.problem_id, xp_bonus = EXCLUDED.xp_bonus`
	if _, err := r.db.ExecContext(ctx, query, dc.Date.UTC().Format(time.DateOnly), dc.ProblemID, dc.XPBonus); err != nil {
		return fmt.Errorf("pgDailyChallengeRepository.Upsert: %w", err)
	}
	return nil
}
