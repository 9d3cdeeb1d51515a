package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"codequest/internal/common"
	"codequest/internal/domain/model"
	"codequest/internal/domain/repository"
)

const (
	MaxCodeBytes = 64 * 1024

	MinTimeLimitMs   = 100
	MaxTimeLimitMs   = 15000
	MinMemoryLimitKb = 16 * 1024
	MaxMemoryLimitKb = 512 * 1024

	// achievements unlocked this long after completion still belong to it
	achievementWindowSlack = 5 * time.Second
)

// Caller is the authenticated identity behind a request.
type Caller struct {
	UserID string
	Role   string
}

func (c Caller) IsAdmin() bool {
	return c.Role == model.RoleAdmin
}

// SubmissionService validates and stores new submissions, hands them to the
// Scheduler and serves the poll endpoint.
type SubmissionService struct {
	submissionRepo  repository.SubmissionRepository
	problemRepo     repository.ProblemRepository
	userRepo        repository.UserRepository
	achievementRepo repository.AchievementRepository
	scheduler       Scheduler
	log             *zap.Logger
	now             func() time.Time
}

func NewSubmissionService(
	subRepo repository.SubmissionRepository,
	probRepo repository.ProblemRepository,
	userRepo repository.UserRepository,
	achievementRepo repository.AchievementRepository,
	scheduler Scheduler,
	log *zap.Logger,
) *SubmissionService {
	return &SubmissionService{
		submissionRepo:  subRepo,
		problemRepo:     probRepo,
		userRepo:        userRepo,
		achievementRepo: achievementRepo,
		scheduler:       scheduler,
		log:             log,
		now:             time.Now,
	}
}

// CreateSubmissionRequest carries optional per-submission limit overrides.
type CreateSubmissionRequest struct {
	Problem       string `json:"problem"` // id or slug
	Code          string `json:"code"`
	Language      string `json:"language"`
	TimeLimitMs   *int   `json:"time_limit_ms,omitempty"`
	MemoryLimitKb *int   `json:"memory_limit_kb,omitempty"`
}

type CreateSubmissionResponse struct {
	SubmissionID   string `json:"submission_id"`
	TotalTestCases int    `json:"total_test_cases"`
}

// CreateSubmission validates req, stores a PENDING submission and schedules
// grading. It returns as soon as the job is handed off.
func (s *SubmissionService) CreateSubmission(ctx context.Context, caller Caller, req CreateSubmissionRequest) (*CreateSubmissionResponse, error) {
	if err := validateSubmissionRequest(req); err != nil {
		return nil, err
	}

	problem, err := s.resolveProblem(ctx, req.Problem)
	if err != nil {
		return nil, err
	}
	if !problem.IsPublished() && !caller.IsAdmin() {
		// unpublished problems are invisible to regular users
		return nil, common.Errorf("problem %q: %w", req.Problem, common.ErrNotFound)
	}
	if problem.IsPremium && !caller.IsAdmin() {
		user, err := s.userRepo.FindByID(ctx, caller.UserID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return nil, common.Errorf("unknown user: %w", common.ErrUnauthorized)
			}
			return nil, common.Errorf("failed to load user: %w", err)
		}
		if !user.IsPro {
			return nil, common.Errorf("problem requires a pro subscription: %w", common.ErrForbidden)
		}
	}

	total, err := s.problemRepo.CountTestCases(ctx, problem.ID)
	if err != nil {
		return nil, common.Errorf("failed to count test cases: %w", err)
	}
	if total == 0 {
		return nil, common.Errorf("problem has no test cases: %w", common.ErrValidation)
	}

	submission := &model.Submission{
		ID:             uuid.NewString(),
		UserID:         caller.UserID,
		ProblemID:      problem.ID,
		Code:           req.Code,
		Language:       req.Language,
		Verdict:        model.VerdictPending,
		TotalTestCases: total,
	}
	if err := s.submissionRepo.CreateSubmission(ctx, nil, submission); err != nil {
		return nil, common.Errorf("failed to create submission: %w", err)
	}

	job := model.GradingJob{
		SubmissionID:  submission.ID,
		UserID:        caller.UserID,
		Privileged:    caller.IsAdmin(),
		TimeLimitMs:   req.TimeLimitMs,
		MemoryLimitKb: req.MemoryLimitKb,
	}
	if err := s.scheduler.Schedule(ctx, job); err != nil {
		s.log.Error("failed to schedule grading", zap.String("submission_id", submission.ID), zap.Error(err))
		if _, ferr := s.submissionRepo.FinalizeSubmission(context.WithoutCancel(ctx), submission.ID, repository.SubmissionFinal{
			Verdict:     model.VerdictRejected,
			CompletedAt: s.now().UTC(),
		}); ferr != nil {
			s.log.Error("failed to reject unscheduled submission", zap.String("submission_id", submission.ID), zap.Error(ferr))
		}
		return nil, common.Errorf("grading is unavailable: %w", common.ErrServiceUnavailable)
	}

	s.log.Info("submission created",
		zap.String("submission_id", submission.ID),
		zap.String("user_id", caller.UserID),
		zap.String("problem_id", problem.ID),
		zap.String("language", req.Language),
	)
	return &CreateSubmissionResponse{SubmissionID: submission.ID, TotalTestCases: total}, nil
}

func validateSubmissionRequest(req CreateSubmissionRequest) error {
	if strings.TrimSpace(req.Problem) == "" {
		return common.Errorf("problem is required: %w", common.ErrValidation)
	}
	if strings.TrimSpace(req.Code) == "" {
		return common.Errorf("code must not be empty: %w", common.ErrValidation)
	}
	if len(req.Code) > MaxCodeBytes {
		return common.Errorf("code exceeds %d bytes: %w", MaxCodeBytes, common.ErrValidation)
	}
	if _, ok := model.LookupLanguage(req.Language); !ok {
		return common.Errorf("unsupported language %q: %w", req.Language, common.ErrValidation)
	}
	if req.TimeLimitMs != nil && (*req.TimeLimitMs < MinTimeLimitMs || *req.TimeLimitMs > MaxTimeLimitMs) {
		return common.Errorf("time limit must be between %d and %d ms: %w", MinTimeLimitMs, MaxTimeLimitMs, common.ErrValidation)
	}
	if req.MemoryLimitKb != nil && (*req.MemoryLimitKb < MinMemoryLimitKb || *req.MemoryLimitKb > MaxMemoryLimitKb) {
		return common.Errorf("memory limit must be between %d and %d KB: %w", MinMemoryLimitKb, MaxMemoryLimitKb, common.ErrValidation)
	}
	return nil
}

func (s *SubmissionService) resolveProblem(ctx context.Context, ref string) (*model.Problem, error) {
	ref = strings.TrimSpace(ref)
	problem, err := s.problemRepo.FindProblemByID(ctx, ref)
	if err == nil {
		return problem, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, common.Errorf("failed to load problem: %w", err)
	}
	problem, err = s.problemRepo.FindProblemBySlug(ctx, slug.Make(ref))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.Errorf("problem %q: %w", ref, common.ErrNotFound)
		}
		return nil, common.Errorf("failed to load problem: %w", err)
	}
	return problem, nil
}

// SubmissionDetails is what a polling client sees.
type SubmissionDetails struct {
	*model.Submission
	Achievements []model.UserAchievement `json:"achievements,omitempty"`
}

// GetSubmission returns the submission with the results recorded so far.
// Once the submission is terminal it also carries the achievements unlocked
// around its completion.
func (s *SubmissionService) GetSubmission(ctx context.Context, caller Caller, id string) (*SubmissionDetails, error) {
	sub, err := s.submissionRepo.GetSubmissionByID(ctx, id)
	if err != nil {
		return nil, common.Errorf("submission %s: %w", id, err)
	}
	if sub.UserID != caller.UserID && !caller.IsAdmin() {
		// don't leak existence to other users
		return nil, common.Errorf("submission %s: %w", id, common.ErrNotFound)
	}

	results, err := s.submissionRepo.GetSubmissionTestResults(ctx, id)
	if err != nil {
		return nil, common.Errorf("failed to load test results: %w", err)
	}
	if !caller.IsAdmin() && len(results) > 0 {
		if err := s.redactHidden(ctx, sub.ProblemID, results); err != nil {
			return nil, err
		}
	}
	sub.TestResults = results

	details := &SubmissionDetails{Submission: sub}
	if sub.Verdict.IsTerminal() && sub.CompletedAt != nil {
		unlocked, err := s.achievementRepo.ListUnlockedBetween(ctx, sub.UserID, sub.CreatedAt, sub.CompletedAt.Add(achievementWindowSlack))
		if err != nil {
			return nil, common.Errorf("failed to load achievements: %w", err)
		}
		details.Achievements = unlocked
	}
	return details, nil
}

func (s *SubmissionService) redactHidden(ctx context.Context, problemID string, results []model.TestResult) error {
	tcs, err := s.problemRepo.GetTestCasesByProblemID(ctx, problemID)
	if err != nil {
		return common.Errorf("failed to load test cases: %w", err)
	}
	hidden := make(map[string]bool, len(tcs))
	for _, tc := range tcs {
		hidden[tc.ID] = tc.IsHidden
	}
	for i := range results {
		if hidden[results[i].TestCaseID] {
			results[i].ActualOutput = ""
			results[i].ExpectedOutput = ""
		}
	}
	return nil
}

// Languages lists what CreateSubmission accepts.
func (s *SubmissionService) Languages() []model.Language {
	return model.SupportedLanguages()
}
