package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"codequest/internal/common"
	"codequest/internal/domain/model"

	"github.com/gosimple/slug"
)

// ProblemRepository is read-only during grading; the write methods exist
// for seeding and tests.
type ProblemRepository interface {
	CreateProblem(ctx context.Context, tx *sql.Tx, problem *model.Problem) error
	FindProblemByID(ctx context.Context, id string) (*model.Problem, error)
	FindProblemBySlug(ctx context.Context, slug string) (*model.Problem, error)

	AddTestCasesToProblem(ctx context.Context, tx *sql.Tx, problemID string, testCases []model.TestCase) error
	GetTestCasesByProblemID(ctx context.Context, problemID string) ([]model.TestCase, error) // ordered by order_index
	CountTestCases(ctx context.Context, problemID string) (int, error)

	AddTagsToProblem(ctx context.Context, tx *sql.Tx, problemID string, tagNames []string) error
}

type pgProblemRepository struct {
	db *sql.DB
}

func NewPgProblemRepository(db *sql.DB) ProblemRepository {
	return &pgProblemRepository{db: db}
}

const problemColumns = `id, slug, title, difficulty, status, is_premium, runtime_limit_ms, memory_limit_kb, created_at`

func (r *pgProblemRepository) CreateProblem(ctx context.Context, tx *sql.Tx, p *model.Problem) error {
	query := `INSERT INTO problems (id, slug, title, difficulty, status, is_premium, runtime_limit_ms, memory_limit_kb)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	          RETURNING created_at`

	err := conn(r.db, tx).QueryRowContext(ctx, query,
		p.ID, p.Slug, p.Title, p.Difficulty, p.Status, p.IsPremium, p.RuntimeLimitMs, p.MemoryLimitKb,
	).Scan(&p.CreatedAt)
	if err != nil {
		if common.IsUniqueViolation(err) {
			return fmt.Errorf("problem with this slug already exists: %w", common.ErrConflict)
		}
		return fmt.Errorf("pgProblemRepository.CreateProblem: %w", err)
	}
	return nil
}

func (r *pgProblemRepository) FindProblemByID(ctx context.Context, id string) (*model.Problem, error) {
	return r.findOne(ctx, `SELECT `+problemColumns+` FROM problems WHERE id = $1`, id)
}

func (r *pgProblemRepository) FindProblemBySlug(ctx context.Context, s string) (*model.Problem, error) {
	return r.findOne(ctx, `SELECT `+problemColumns+` FROM problems WHERE slug = $1`, s)
}

func (r *pgProblemRepository) findOne(ctx context.Context, query string, arg string) (*model.Problem, error) {
	p := &model.Problem{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&p.ID, &p.Slug, &p.Title, &p.Difficulty, &p.Status, &p.IsPremium,
		&p.RuntimeLimitMs, &p.MemoryLimitKb, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgProblemRepository.findOne: %w", err)
	}
	return p, nil
}

func (r *pgProblemRepository) AddTestCasesToProblem(ctx context.Context, tx *sql.Tx, problemID string, testCases []model.TestCase) error {
	if len(testCases) == 0 {
		return nil
	}
	query := `INSERT INTO test_cases (id, problem_id, order_index, input, expected_output, alternative_outputs, is_hidden)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`

	q := conn(r.db, tx)
	for i := range testCases {
		tc := &testCases[i]
		tc.ProblemID = problemID
		alts := tc.AlternativeOutputs
		if alts == nil {
			alts = []string{}
		}
		altJSON, err := json.Marshal(alts)
		if err != nil {
			return fmt.Errorf("pgProblemRepository.AddTestCasesToProblem marshal %s: %w", tc.ID, err)
		}
		if _, err := q.ExecContext(ctx, query, tc.ID, problemID, tc.OrderIndex, tc.Input, tc.ExpectedOutput, string(altJSON), tc.IsHidden); err != nil {
			return fmt.Errorf("pgProblemRepository.AddTestCasesToProblem exec for test case %s: %w", tc.ID, err)
		}
	}
	return nil
}

func (r *pgProblemRepository) GetTestCasesByProblemID(ctx context.Context, problemID string) ([]model.TestCase, error) {
	query := `SELECT id, problem_id, order_index, input, expected_output, alternative_outputs, is_hidden
	          FROM test_cases WHERE problem_id = $1 ORDER BY order_index ASC`
	rows, err := r.db.QueryContext(ctx, query, problemID)
	if err != nil {
		return nil, fmt.Errorf("pgProblemRepository.GetTestCasesByProblemID query: %w", err)
	}
	defer rows.Close()

	var testCases []model.TestCase
	for rows.Next() {
		var tc model.TestCase
		var altJSON []byte
		if err := rows.Scan(&tc.ID, &tc.ProblemID, &tc.OrderIndex, &tc.Input, &tc.ExpectedOutput, &altJSON, &tc.IsHidden); err != nil {
			return nil, fmt.Errorf("pgProblemRepository.GetTestCasesByProblemID scan: %w", err)
		}
		if len(altJSON) > 0 {
			if err := json.Unmarshal(altJSON, &tc.AlternativeOutputs); err != nil {
				return nil, fmt.Errorf("pgProblemRepository.GetTestCasesByProblemID alternatives of %s: %w", tc.ID, err)
			}
		}
		if len(tc.AlternativeOutputs) == 0 {
			tc.AlternativeOutputs = nil
		}
		testCases = append(testCases, tc)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgProblemRepository.GetTestCasesByProblemID rows.Err: %w", err)
	}
	return testCases, nil
}

func (r *pgProblemRepository) CountTestCases(ctx context.Context, problemID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM test_cases WHERE problem_id = $1`, problemID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("pgProblemRepository.CountTestCases: %w", err)
	}
	return n, nil
}

// AddTagsToProblem creates missing tags, keyed by the slug of their name.
func (r *pgProblemRepository) AddTagsToProblem(ctx context.Context, tx *sql.Tx, problemID string, tagNames []string) error {
	q := conn(r.db, tx)
	for _, name := range tagNames {
		tagID := slug.Make(name)
		if _, err := q.ExecContext(ctx,
			`INSERT INTO tags (id, name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`, tagID, name); err != nil {
			return fmt.Errorf("pgProblemRepository.AddTagsToProblem tag %q: %w", name, err)
		}
		if _, err := q.ExecContext(ctx,
			`INSERT INTO problem_tags (problem_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, problemID, tagID); err != nil {
			return fmt.Errorf("pgProblemRepository.AddTagsToProblem link %q: %w", name, err)
		}
	}
	return nil
}
