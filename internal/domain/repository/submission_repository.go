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

// SubmissionFinal is the terminal state written once onto a PENDING submission.
type SubmissionFinal struct {
	Verdict         model.Verdict
	RuntimeMs       int
	MemoryKb        int
	TestCasesPassed int
	CompletedAt     time.Time
}

type SubmissionRepository interface {
	CreateSubmission(ctx context.Context, tx *sql.Tx, sub *model.Submission) error
	GetSubmissionByID(ctx context.Context, id string) (*model.Submission, error)
	// FinalizeSubmission reports false when the submission was no longer PENDING.
	FinalizeSubmission(ctx context.Context, id string, final SubmissionFinal) (bool, error)

	// CreateTestResult reports false when a result for the same test case
	// already exists.
	CreateTestResult(ctx context.Context, result *model.TestResult) (bool, error)
	GetSubmissionTestResults(ctx context.Context, submissionID string) ([]model.TestResult, error)
	CountTestResults(ctx context.Context, submissionID string) (passed int, recorded int, err error)

	ListAcceptedLanguages(ctx context.Context, userID string) ([]string, error)
}

type pgSubmissionRepository struct {
	db *sql.DB
}

func NewPgSubmissionRepository(db *sql.DB) SubmissionRepository {
	return &pgSubmissionRepository{db: db}
}

func (r *pgSubmissionRepository) CreateSubmission(ctx context.Context, tx *sql.Tx, s *model.Submission) error {
	query := `INSERT INTO submissions (id, user_id, problem_id, code, language, verdict, runtime_ms, memory_kb, test_cases_passed, total_test_cases)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	          RETURNING created_at`
	err := conn(r.db, tx).QueryRowContext(ctx, query,
		s.ID, s.UserID, s.ProblemID, s.Code, s.Language, s.Verdict, s.RuntimeMs, s.MemoryKb, s.TestCasesPassed, s.TotalTestCases,
	).Scan(&s.CreatedAt)
	if err != nil {
		return fmt.Errorf("pgSubmissionRepository.CreateSubmission: %w", err)
	}
	return nil
}

func (r *pgSubmissionRepository) GetSubmissionByID(ctx context.Context, id string) (*model.Submission, error) {
	query := `SELECT id, user_id, problem_id, code, language, verdict, runtime_ms, memory_kb,
	                 test_cases_passed, total_test_cases, created_at, completed_at
	          FROM submissions WHERE id = $1`
	s := &model.Submission{}
	var completedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.UserID, &s.ProblemID, &s.Code, &s.Language, &s.Verdict, &s.RuntimeMs, &s.MemoryKb,
		&s.TestCasesPassed, &s.TotalTestCases, &s.CreatedAt, &completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgSubmissionRepository.GetSubmissionByID: %w", err)
	}
	if completedAt.Valid {
		s.CompletedAt = &completedAt.Time
	}
	return s, nil
}

func (r *pgSubmissionRepository) FinalizeSubmission(ctx context.Context, id string, f SubmissionFinal) (bool, error) {
	query := `UPDATE submissions
	          SET verdict = $2, runtime_ms = $3, memory_kb = $4, test_cases_passed = $5, completed_at = $6
	          WHERE id = $1 AND verdict = 'PENDING'`
	res, err := r.db.ExecContext(ctx, query, id, f.Verdict, f.RuntimeMs, f.MemoryKb, f.TestCasesPassed, f.CompletedAt)
	if err != nil {
		return false, fmt.Errorf("pgSubmissionRepository.FinalizeSubmission: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("pgSubmissionRepository.FinalizeSubmission rows: %w", err)
	}
	return n == 1, nil
}

func (r *pgSubmissionRepository) CreateTestResult(ctx context.Context, tr *model.TestResult) (bool, error) {
	query := `INSERT INTO test_results (id, submission_id, test_case_id, passed, actual_output, expected_output,
	                                    runtime_ms, memory_kb, error_message, error_category, judge_status)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11)
	          ON CONFLICT (submission_id, test_case_id) DO NOTHING
	          RETURNING created_at`
	err := r.db.QueryRowContext(ctx, query,
		tr.ID, tr.SubmissionID, tr.TestCaseID, tr.Passed, tr.ActualOutput, tr.ExpectedOutput,
		tr.RuntimeMs, tr.MemoryKb, nullString(tr.ErrorMessage), string(tr.ErrorCategory), tr.JudgeStatus,
	).Scan(&tr.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("pgSubmissionRepository.CreateTestResult: %w", err)
	}
	return true, nil
}

func (r *pgSubmissionRepository) GetSubmissionTestResults(ctx context.Context, submissionID string) ([]model.TestResult, error) {
	query := `SELECT tr.id, tr.submission_id, tr.test_case_id, tr.passed, tr.actual_output, tr.expected_output,
	                 tr.runtime_ms, tr.memory_kb, tr.error_message, COALESCE(tr.error_category, ''), tr.judge_status, tr.created_at
	          FROM test_results tr
	          JOIN test_cases tc ON tc.id = tr.test_case_id
	          WHERE tr.submission_id = $1
	          ORDER BY tc.order_index ASC`
	rows, err := r.db.QueryContext(ctx, query, submissionID)
	if err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository.GetSubmissionTestResults query: %w", err)
	}
	defer rows.Close()

	var results []model.TestResult
	for rows.Next() {
		var tr model.TestResult
		var errMsg sql.NullString
		var category string
		if err := rows.Scan(&tr.ID, &tr.SubmissionID, &tr.TestCaseID, &tr.Passed, &tr.ActualOutput, &tr.ExpectedOutput,
			&tr.RuntimeMs, &tr.MemoryKb, &errMsg, &category, &tr.JudgeStatus, &tr.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgSubmissionRepository.GetSubmissionTestResults scan: %w", err)
		}
		if errMsg.Valid {
			tr.ErrorMessage = &errMsg.String
		}
		tr.ErrorCategory = model.ErrorCategory(category)
		results = append(results, tr)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository.GetSubmissionTestResults rows.Err: %w", err)
	}
	return results, nil
}

func (r *pgSubmissionRepository) CountTestResults(ctx context.Context, submissionID string) (int, int, error) {
	var passed, recorded int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FILTER (WHERE passed), COUNT(*) FROM test_results WHERE submission_id = $1`, submissionID,
	).Scan(&passed, &recorded)
	if err != nil {
		return 0, 0, fmt.Errorf("pgSubmissionRepository.CountTestResults: %w", err)
	}
	return passed, recorded, nil
}

func (r *pgSubmissionRepository) ListAcceptedLanguages(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT language FROM submissions WHERE user_id = $1 AND verdict = 'ACCEPTED' ORDER BY language`, userID)
	if err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository.ListAcceptedLanguages query: %w", err)
	}
	defer rows.Close()

	var langs []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, fmt.Errorf("pgSubmissionRepository.ListAcceptedLanguages scan: %w", err)
		}
		langs = append(langs, l)
	}
	return langs, rows.Err()
}
