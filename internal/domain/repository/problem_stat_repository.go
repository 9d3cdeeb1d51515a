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

// LedgerTx is the view of storage inside one serializable reward transaction.
type LedgerTx interface {
	// GetProblemStat locks and returns the stat, or nil when none exists yet.
	GetProblemStat(ctx context.Context, userID, problemID string) (*model.ProblemStat, error)
	SaveProblemStat(ctx context.Context, stat *model.ProblemStat) error
	GetUserXP(ctx context.Context, userID string) (int, error)
	SetUserXP(ctx context.Context, userID string, xp, level int) error
}

// SolvedSummary counts a user's solved problems.
type SolvedSummary struct {
	Total        int
	Easy         int
	Medium       int
	Hard         int
	WithoutHints int
}

type ProblemStatRepository interface {
	// RunSerializable runs fn in one SERIALIZABLE transaction, committing when
	// fn returns nil. Concurrency failures come back unwrapped enough for
	// common.IsRetryableTxError to see them.
	RunSerializable(ctx context.Context, fn func(tx LedgerTx) error) error

	GetProblemStat(ctx context.Context, userID, problemID string) (*model.ProblemStat, error)
	// RecordAttempt increments attempts without touching the solved state.
	RecordAttempt(ctx context.Context, userID, problemID string) error

	SolvedSummary(ctx context.Context, userID string) (SolvedSummary, error)
	// SolveDates returns the distinct UTC dates with a solve, newest first.
	SolveDates(ctx context.Context, userID string) ([]time.Time, error)
	CountSolvedTags(ctx context.Context, userID string) (int, error)
}

type pgProblemStatRepository struct {
	db *sql.DB
}

func NewPgProblemStatRepository(db *sql.DB) ProblemStatRepository {
	return &pgProblemStatRepository{db: db}
}

func (r *pgProblemStatRepository) RunSerializable(ctx context.Context, fn func(tx LedgerTx) error) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("pgProblemStatRepository.RunSerializable begin: %w", err)
	}
	if err := fn(&pgLedgerTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pgProblemStatRepository.RunSerializable commit: %w", err)
	}
	return nil
}

const statColumns = `user_id, problem_id, attempts, solved, status, solved_at, xp_earned, hints_used`

func scanStat(row interface{ Scan(...any) error }) (*model.ProblemStat, error) {
	st := &model.ProblemStat{}
	var solvedAt sql.NullTime
	if err := row.Scan(&st.UserID, &st.ProblemID, &st.Attempts, &st.Solved, &st.Status, &solvedAt, &st.XPEarned, &st.HintsUsed); err != nil {
		return nil, err
	}
	if solvedAt.Valid {
		t := solvedAt.Time
		st.SolvedAt = &t
	}
	return st, nil
}

func (r *pgProblemStatRepository) GetProblemStat(ctx context.Context, userID, problemID string) (*model.ProblemStat, error) {
	st, err := scanStat(r.db.QueryRowContext(ctx,
		`SELECT `+statColumns+` FROM problem_stats WHERE user_id = $1 AND problem_id = $2`, userID, problemID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgProblemStatRepository.GetProblemStat: %w", err)
	}
	return st, nil
}

func (r *pgProblemStatRepository) RecordAttempt(ctx context.Context, userID, problemID string) error {
	query := `INSERT INTO problem_stats (user_id, problem_id, attempts, solved, status)
	          VALUES ($1, $2, 1, FALSE, 'ATTEMPTED')
	          ON CONFLICT (user_id, problem_id) DO UPDATE SET attempts = problem_stats.attempts + 1`
	if _, err := r.db.ExecContext(ctx, query, userID, problemID); err != nil {
		return fmt.Errorf("pgProblemStatRepository.RecordAttempt: %w", err)
	}
	return nil
}

func (r *pgProblemStatRepository) SolvedSummary(ctx context.Context, userID string) (SolvedSummary, error) {
	query := `SELECT COUNT(*),
	                 COUNT(*) FILTER (WHERE p.difficulty = 'EASY'),
	                 COUNT(*) FILTER (WHERE p.difficulty = 'MEDIUM'),
	                 COUNT(*) FILTER (WHERE p.difficulty = 'HARD'),
	                 COUNT(*) FILTER (WHERE NOT ps.hints_used)
	          FROM problem_stats ps
	          JOIN problems p ON p.id = ps.problem_id
	          WHERE ps.user_id = $1 AND ps.solved`
	var s SolvedSummary
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&s.Total, &s.Easy, &s.Medium, &s.Hard, &s.WithoutHints); err != nil {
		return SolvedSummary{}, fmt.Errorf("pgProblemStatRepository.SolvedSummary: %w", err)
	}
	return s, nil
}

func (r *pgProblemStatRepository) SolveDates(ctx context.Context, userID string) ([]time.Time, error) {
	query := `SELECT DISTINCT to_char(solved_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS d
	          FROM problem_stats
	          WHERE user_id = $1 AND solved AND solved_at IS NOT NULL
	          ORDER BY d DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("pgProblemStatRepository.SolveDates query: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("pgProblemStatRepository.SolveDates scan: %w", err)
		}
		d, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return nil, fmt.Errorf("pgProblemStatRepository.SolveDates parse %q: %w", raw, err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

func (r *pgProblemStatRepository) CountSolvedTags(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(DISTINCT pt.tag_id)
	          FROM problem_stats ps
	          JOIN problem_tags pt ON pt.problem_id = ps.problem_id
	          WHERE ps.user_id = $1 AND ps.solved`
	var n int
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("pgProblemStatRepository.CountSolvedTags: %w", err)
	}
	return n, nil
}

type pgLedgerTx struct {
	tx *sql.Tx
}

func (l *pgLedgerTx) GetProblemStat(ctx context.Context, userID, problemID string) (*model.ProblemStat, error) {
	st, err := scanStat(l.tx.QueryRowContext(ctx,
		`SELECT `+statColumns+` FROM problem_stats WHERE user_id = $1 AND problem_id = $2 FOR UPDATE`, userID, problemID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("pgLedgerTx.GetProblemStat: %w", err)
	}
	return st, nil
}

func (l *pgLedgerTx) SaveProblemStat(ctx context.Context, st *model.ProblemStat) error {
	query := `INSERT INTO problem_stats (` + statColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	          ON CONFLICT (user_id, problem_id) DO UPDATE SET
	              attempts = EXCLUDED.attempts,
	              solved = EXCLUDED.solved,
	              status = EXCLUDED.status,
	              solved_at = EXCLUDED.solved_at,
	              xp_earned = EXCLUDED.xp_earned,
	              hints_used = EXCLUDED.hints_used`
	var solvedAt sql.NullTime
	if st.SolvedAt != nil {
		solvedAt = sql.NullTime{Time: *st.SolvedAt, Valid: true}
	}
	_, err := l.tx.ExecContext(ctx, query,
		st.UserID, st.ProblemID, st.Attempts, st.Solved, st.Status, solvedAt, st.XPEarned, st.HintsUsed)
	if err != nil {
		return fmt.Errorf("pgLedgerTx.SaveProblemStat: %w", err)
	}
	return nil
}

func (l *pgLedgerTx) GetUserXP(ctx context.Context, userID string) (int, error) {
	var xp int
	err := l.tx.QueryRowContext(ctx, `SELECT xp FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&xp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrNotFound
		}
		return 0, fmt.Errorf("pgLedgerTx.GetUserXP: %w", err)
	}
	return xp, nil
}

func (l *pgLedgerTx) SetUserXP(ctx context.Context, userID string, xp, level int) error {
	_, err := l.tx.ExecContext(ctx,
		`UPDATE users SET xp = $2, level = $3, updated_at = NOW() WHERE id = $1`, userID, xp, level)
	if err != nil {
		return fmt.Errorf("pgLedgerTx.SetUserXP: %w", err)
	}
	return nil
}
