package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"

	"codequest/internal/common"
	"codequest/internal/domain/model"
	"codequest/internal/domain/repository"
)

const (
	defaultRuntimeLimitMs = 2000
	defaultMemoryLimitKb  = 256 * 1024
)

// ProblemService loads problem fixtures. Problem authoring lives elsewhere;
// this exists so a fresh database has something to grade against.
type ProblemService struct {
	problemRepo repository.ProblemRepository
	db          *sql.DB // nil when the repository is not Postgres-backed
	log         *zap.Logger
}

func NewProblemService(problemRepo repository.ProblemRepository, db *sql.DB, log *zap.Logger) *ProblemService {
	return &ProblemService{problemRepo: problemRepo, db: db, log: log}
}

type ProblemDefinition struct {
	Slug           string                  `toml:"slug"`
	Title          string                  `toml:"title"`
	Difficulty     model.ProblemDifficulty `toml:"difficulty"`
	Published      bool                    `toml:"published"`
	Premium        bool                    `toml:"premium"`
	RuntimeLimitMs int                     `toml:"runtime_limit_ms"`
	MemoryLimitKb  int                     `toml:"memory_limit_kb"`
	Tags           []string                `toml:"tags"`
	TestCases      []TestCaseDefinition    `toml:"test_case"`
}

type TestCaseDefinition struct {
	Input              string   `toml:"input"`
	ExpectedOutput     string   `toml:"expected_output"`
	AlternativeOutputs []string `toml:"alternative_outputs"`
	Hidden             bool     `toml:"hidden"`
}

func ParseProblems(data []byte) ([]ProblemDefinition, error) {
	var f struct {
		Problems []ProblemDefinition `toml:"problem"`
	}
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse problem file: %w", err)
	}
	return f.Problems, nil
}

// ImportProblems creates every definition whose slug is not taken yet and
// returns the number created. Each problem is written in its own transaction.
func (s *ProblemService) ImportProblems(ctx context.Context, defs []ProblemDefinition) (int, error) {
	created := 0
	for _, def := range defs {
		p, err := s.CreateProblem(ctx, def)
		if errors.Is(err, common.ErrConflict) {
			s.log.Info("problem already exists, skipping", zap.String("title", def.Title))
			continue
		}
		if err != nil {
			return created, err
		}
		s.log.Info("problem imported", zap.String("problem_id", p.ID), zap.String("slug", p.Slug), zap.Int("test_cases", len(p.TestCases)))
		created++
	}
	return created, nil
}

func (s *ProblemService) CreateProblem(ctx context.Context, def ProblemDefinition) (*model.Problem, error) {
	if err := validateProblemDefinition(def); err != nil {
		return nil, err
	}

	problem := &model.Problem{
		ID:             uuid.NewString(),
		Slug:           slug.Make(def.Slug),
		Title:          strings.TrimSpace(def.Title),
		Difficulty:     def.Difficulty,
		Status:         model.StatusDraft,
		IsPremium:      def.Premium,
		RuntimeLimitMs: def.RuntimeLimitMs,
		MemoryLimitKb:  def.MemoryLimitKb,
	}
	if problem.Slug == "" {
		problem.Slug = slug.Make(def.Title)
	}
	if def.Published {
		problem.Status = model.StatusPublished
	}
	if problem.RuntimeLimitMs == 0 {
		problem.RuntimeLimitMs = defaultRuntimeLimitMs
	}
	if problem.MemoryLimitKb == 0 {
		problem.MemoryLimitKb = defaultMemoryLimitKb
	}

	if _, err := s.problemRepo.FindProblemBySlug(ctx, problem.Slug); err == nil {
		return nil, common.Errorf("problem %q: %w", problem.Slug, common.ErrConflict)
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, common.Errorf("failed to check problem slug: %w", err)
	}

	for i, tc := range def.TestCases {
		problem.TestCases = append(problem.TestCases, model.TestCase{
			ID:                 uuid.NewString(),
			OrderIndex:         i + 1,
			Input:              tc.Input,
			ExpectedOutput:     tc.ExpectedOutput,
			AlternativeOutputs: tc.AlternativeOutputs,
			IsHidden:           tc.Hidden,
		})
	}

	var tx *sql.Tx
	if s.db != nil {
		var err error
		tx, err = s.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, common.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()
	}

	if err := s.problemRepo.CreateProblem(ctx, tx, problem); err != nil {
		if common.IsUniqueViolation(err) {
			return nil, common.Errorf("problem %q: %w", problem.Slug, common.ErrConflict)
		}
		return nil, common.Errorf("failed to create problem in DB: %w", err)
	}
	if len(def.Tags) > 0 {
		if err := s.problemRepo.AddTagsToProblem(ctx, tx, problem.ID, def.Tags); err != nil {
			return nil, common.Errorf("failed to add tags to problem: %w", err)
		}
	}
	if err := s.problemRepo.AddTestCasesToProblem(ctx, tx, problem.ID, problem.TestCases); err != nil {
		return nil, common.Errorf("failed to add test cases to problem: %w", err)
	}

	if tx != nil {
		if err := tx.Commit(); err != nil {
			return nil, common.Errorf("failed to commit transaction: %w", err)
		}
	}
	return problem, nil
}

func validateProblemDefinition(def ProblemDefinition) error {
	if strings.TrimSpace(def.Title) == "" {
		return common.Errorf("problem title is required: %w", common.ErrValidation)
	}
	if def.Difficulty.BaseXP() == 0 {
		return common.Errorf("problem %q has unknown difficulty %q: %w", def.Title, def.Difficulty, common.ErrValidation)
	}
	if len(def.TestCases) == 0 {
		return common.Errorf("problem %q has no test cases: %w", def.Title, common.ErrValidation)
	}
	if def.RuntimeLimitMs < 0 || def.MemoryLimitKb < 0 {
		return common.Errorf("problem %q has negative limits: %w", def.Title, common.ErrValidation)
	}
	for i, tc := range def.TestCases {
		if strings.TrimSpace(tc.ExpectedOutput) == "" && len(tc.AlternativeOutputs) == 0 {
			return common.Errorf("problem %q test case %d has no expected output: %w", def.Title, i+1, common.ErrValidation)
		}
	}
	return nil
}
