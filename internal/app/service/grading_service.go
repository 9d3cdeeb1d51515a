package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"codequest/internal/app/grading"
	"codequest/internal/app/judge"
	"codequest/internal/common"
	"codequest/internal/domain/model"
	"codequest/internal/domain/repository"
)

// JudgeClient is the subset of judge.Client the orchestrator needs.
type JudgeClient interface {
	DispatchBatch(ctx context.Context, reqs []judge.ExecutionRequest) ([]string, error)
	FetchBatch(ctx context.Context, tokens []string) ([]judge.Result, error)
}

// GradingOptions bounds the poll loop: PollAttempts fetches, PollInterval
// apart.
type GradingOptions struct {
	PollAttempts int
	PollInterval time.Duration
}

// DefaultGradingOptions polls for up to 30 seconds.
func DefaultGradingOptions() GradingOptions {
	return GradingOptions{PollAttempts: 30, PollInterval: time.Second}
}

const (
	finalizeTimeout    = 10 * time.Second
	finalizeMaxRetries = 3
)

// GradingService drives one submission from PENDING to a terminal verdict:
// dispatch, poll, persist results as they finish, then reward and finalize.
type GradingService struct {
	submissions  repository.SubmissionRepository
	problems     repository.ProblemRepository
	judge        JudgeClient
	rewards      *RewardService
	achievements *AchievementService
	opts         GradingOptions
	log          *zap.Logger
	now          func() time.Time
}

func NewGradingService(
	submissions repository.SubmissionRepository,
	problems repository.ProblemRepository,
	judgeClient JudgeClient,
	rewards *RewardService,
	achievements *AchievementService,
	opts GradingOptions,
	log *zap.Logger,
) *GradingService {
	if opts.PollAttempts <= 0 {
		opts.PollAttempts = DefaultGradingOptions().PollAttempts
	}
	if opts.PollInterval < 0 {
		opts.PollInterval = 0
	}
	return &GradingService{
		submissions:  submissions,
		problems:     problems,
		judge:        judgeClient,
		rewards:      rewards,
		achievements: achievements,
		opts:         opts,
		log:          log,
		now:          time.Now,
	}
}

// gradingRun is the mutable state of one Grade call.
type gradingRun struct {
	job       model.GradingJob
	sub       *model.Submission
	problem   *model.Problem
	testCases []model.TestCase
	processed []bool
	remaining int
	maxTimeMs int
	maxMemKb  int
	log       *zap.Logger
}

// Grade never returns with the submission still PENDING: every failure path,
// including a panic, ends in a REJECTED write.
func (s *GradingService) Grade(ctx context.Context, job model.GradingJob) {
	log := s.log.With(zap.String("submission_id", job.SubmissionID))
	defer func() {
		if r := recover(); r != nil {
			log.Error("grading panicked", zap.Any("panic", r), zap.Stack("stack"))
			s.forceReject(ctx, job.SubmissionID, log)
		}
	}()

	if err := s.grade(ctx, job, log); err != nil {
		log.Error("grading failed", zap.Error(err))
		s.forceReject(ctx, job.SubmissionID, log)
	}
}

func (s *GradingService) grade(ctx context.Context, job model.GradingJob, log *zap.Logger) error {
	sub, err := s.submissions.GetSubmissionByID(ctx, job.SubmissionID)
	if err != nil {
		return common.Errorf("load submission: %w", err)
	}
	if sub.Verdict.IsTerminal() {
		log.Info("submission already graded", zap.String("verdict", string(sub.Verdict)))
		return nil
	}

	run := &gradingRun{job: job, sub: sub, log: log}
	if reason := s.loadProblem(ctx, run); reason != "" {
		log.Warn("rejecting submission before dispatch", zap.String("reason", reason))
		return s.finalize(ctx, run, model.VerdictRejected, 0)
	}
	run.processed = make([]bool, len(run.testCases))
	run.remaining = len(run.testCases)

	log.Debug("dispatching", zap.Int("test_cases", len(run.testCases)))
	tokens, err := s.dispatch(ctx, run)
	if err != nil {
		log.Error("judge dispatch failed", zap.Error(err))
		s.failRemaining(ctx, run, func(tc model.TestCase) grading.Outcome {
			return grading.InternalFailure(tc, err.Error())
		})
	} else {
		log.Debug("polling", zap.Int("attempts", s.opts.PollAttempts))
		s.poll(ctx, run, tokens)
		s.failRemaining(ctx, run, grading.TimedOut)
	}

	passed, recorded, err := s.submissions.CountTestResults(ctx, sub.ID)
	if err != nil {
		return common.Errorf("count test results: %w", err)
	}
	total := len(run.testCases)
	if passed != total || recorded != total {
		log.Debug("finalizing rejected", zap.Int("passed", passed), zap.Int("recorded", recorded), zap.Int("total", total))
		if err := s.rewards.RecordAttempt(ctx, sub.UserID, run.problem.ID); err != nil {
			log.Error("failed to record attempt", zap.Error(err))
		}
		return s.finalize(ctx, run, model.VerdictRejected, passed)
	}

	log.Debug("finalizing accepted", zap.Int("passed", passed))
	reward, err := s.rewards.Award(ctx, sub, run.problem)
	if err != nil {
		return err
	}
	var unlocked []model.Achievement
	if s.achievements != nil {
		unlocked, err = s.achievements.Evaluate(ctx, EvaluationContext{
			UserID:      sub.UserID,
			SubmittedAt: sub.CreatedAt,
			Language:    sub.Language,
			FirstTry:    reward.Attempts == 1,
		})
		if err != nil {
			log.Warn("achievement evaluation failed", zap.Error(err))
		}
		if len(unlocked) > 0 {
			log.Debug("achievements unlocked", zap.Int("count", len(unlocked)))
		}
	}
	if reward.FirstSolve || len(unlocked) > 0 {
		s.rewards.PublishScore(ctx, sub.UserID)
	}
	return s.finalize(ctx, run, model.VerdictAccepted, passed)
}

// loadProblem fills run with the problem and its test cases. A non-empty
// return is the reason the submission cannot be graded at all.
func (s *GradingService) loadProblem(ctx context.Context, run *gradingRun) string {
	problem, err := s.problems.FindProblemByID(ctx, run.sub.ProblemID)
	if err != nil {
		return fmt.Sprintf("problem %s unavailable: %v", run.sub.ProblemID, err)
	}
	run.problem = problem
	if !problem.IsPublished() && !run.job.Privileged {
		return "problem is not published"
	}
	if _, ok := model.LookupLanguage(run.sub.Language); !ok {
		return fmt.Sprintf("unsupported language %q", run.sub.Language)
	}
	tcs, err := s.problems.GetTestCasesByProblemID(ctx, problem.ID)
	if err != nil {
		return fmt.Sprintf("test cases unavailable: %v", err)
	}
	if len(tcs) == 0 {
		return "problem has no test cases"
	}
	run.testCases = tcs
	return ""
}

func (s *GradingService) dispatch(ctx context.Context, run *gradingRun) ([]string, error) {
	lang, _ := model.LookupLanguage(run.sub.Language)
	timeLimit := run.problem.RuntimeLimitMs
	if run.job.TimeLimitMs != nil {
		timeLimit = *run.job.TimeLimitMs
	}
	memLimit := run.problem.MemoryLimitKb
	if run.job.MemoryLimitKb != nil {
		memLimit = *run.job.MemoryLimitKb
	}

	reqs := make([]judge.ExecutionRequest, len(run.testCases))
	for i, tc := range run.testCases {
		reqs[i] = judge.ExecutionRequest{
			SourceCode:    run.sub.Code,
			LanguageID:    lang.JudgeID,
			Stdin:         tc.Input,
			TimeLimitMs:   timeLimit,
			MemoryLimitKb: memLimit,
		}
		if !tc.IsMultiAnswer() {
			expected := tc.ExpectedOutput
			reqs[i].ExpectedOutput = &expected
		}
	}

	tokens, err := s.judge.DispatchBatch(ctx, reqs)
	if err != nil {
		return nil, err
	}
	if len(tokens) != len(reqs) {
		return nil, fmt.Errorf("requested %d executions, got %d tokens: %w", len(reqs), len(tokens), judge.ErrBatchSizeMismatch)
	}
	return tokens, nil
}

func (s *GradingService) poll(ctx context.Context, run *gradingRun, tokens []string) {
	for attempt := 1; attempt <= s.opts.PollAttempts && run.remaining > 0; attempt++ {
		if attempt > 1 && !sleepCtx(ctx, s.opts.PollInterval) {
			run.log.Warn("polling interrupted", zap.Error(ctx.Err()))
			return
		}

		results, err := s.judge.FetchBatch(ctx, tokens)
		if err != nil {
			if attempt == s.opts.PollAttempts {
				run.log.Error("judge fetch failed on final attempt", zap.Error(err))
				s.failRemaining(ctx, run, func(tc model.TestCase) grading.Outcome {
					return grading.InternalFailure(tc, "fetch judge results: "+err.Error())
				})
				return
			}
			run.log.Warn("judge fetch failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		for i, res := range results {
			if i >= len(run.testCases) || run.processed[i] || !res.Status.IsFinished() {
				continue
			}
			s.record(ctx, run, i, grading.Classify(res, run.testCases[i]))
		}
	}
}

func (s *GradingService) failRemaining(ctx context.Context, run *gradingRun, outcome func(model.TestCase) grading.Outcome) {
	for i, tc := range run.testCases {
		if !run.processed[i] {
			s.record(ctx, run, i, outcome(tc))
		}
	}
}

// record persists the outcome for test case i. A storage failure is logged
// and the case still counts as processed; the durable recount then keeps the
// verdict from being ACCEPTED.
func (s *GradingService) record(ctx context.Context, run *gradingRun, i int, o grading.Outcome) {
	tc := run.testCases[i]
	run.processed[i] = true
	run.remaining--
	run.maxTimeMs = max(run.maxTimeMs, o.RuntimeMs)
	run.maxMemKb = max(run.maxMemKb, o.MemoryKb)

	tr := &model.TestResult{
		ID:             uuid.NewString(),
		SubmissionID:   run.sub.ID,
		TestCaseID:     tc.ID,
		Passed:         o.Passed,
		ActualOutput:   o.ActualOutput,
		ExpectedOutput: tc.ExpectedOutput,
		RuntimeMs:      o.RuntimeMs,
		MemoryKb:       o.MemoryKb,
		ErrorCategory:  o.Category,
		JudgeStatus:    int(o.Status),
	}
	if o.ErrorMessage != "" {
		msg := o.ErrorMessage
		tr.ErrorMessage = &msg
	}

	created, err := s.submissions.CreateTestResult(ctx, tr)
	switch {
	case err != nil:
		run.log.Error("failed to persist test result", zap.String("test_case_id", tc.ID), zap.Error(err))
	case !created:
		run.log.Info("test result already recorded", zap.String("test_case_id", tc.ID))
	}
}

// finalize writes the terminal verdict. On the accepted path the ledger has
// already committed, so the write is retried before the caller falls back to
// forceReject. Retries are safe because only a PENDING row is updated.
func (s *GradingService) finalize(ctx context.Context, run *gradingRun, verdict model.Verdict, passed int) error {
	final := repository.SubmissionFinal{
		Verdict:         verdict,
		RuntimeMs:       run.maxTimeMs,
		MemoryKb:        run.maxMemKb,
		TestCasesPassed: passed,
		CompletedAt:     s.now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond

	var ok bool
	err := backoff.RetryNotify(func() error {
		var err error
		ok, err = s.submissions.FinalizeSubmission(ctx, run.sub.ID, final)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, finalizeMaxRetries), ctx), func(err error, next time.Duration) {
		run.log.Warn("finalize failed, retrying", zap.Error(err), zap.Duration("backoff", next))
	})
	if err != nil {
		return common.Errorf("finalize submission: %w", err)
	}
	if !ok {
		run.log.Warn("submission was finalized concurrently")
		return nil
	}
	run.log.Info("submission graded",
		zap.String("verdict", string(verdict)),
		zap.Int("passed", passed),
		zap.Int("total", len(run.testCases)),
		zap.Int("runtime_ms", final.RuntimeMs),
		zap.Int("memory_kb", final.MemoryKb),
	)
	return nil
}

// forceReject is the last-resort terminal write. It runs on a context that
// outlives cancellation of the grading context.
func (s *GradingService) forceReject(ctx context.Context, submissionID string, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	ok, err := s.submissions.FinalizeSubmission(ctx, submissionID, repository.SubmissionFinal{
		Verdict:     model.VerdictRejected,
		CompletedAt: s.now().UTC(),
	})
	switch {
	case err != nil:
		log.Error("failed to force-reject submission", zap.Error(err))
	case ok:
		log.Warn("submission force-rejected")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

var _ Grader = (*GradingService)(nil)
