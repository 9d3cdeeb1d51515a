package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"codequest/internal/app/judge"
	"codequest/internal/domain/model"
	"codequest/internal/domain/repository"
)

var testNow = time.Date(2026, 10, 17, 14, 0, 0, 0, time.UTC)

// fakeJudge runs "programs" in-process. Without ExpectedOutput it reports
// Accepted for any clean exit, like the real judge.
type fakeJudge struct {
	mu sync.Mutex

	run            func(req judge.ExecutionRequest) judge.Result
	dispatchErr    error
	dropToken      bool
	fetchErrs      int          // leading fetch calls that fail
	pendingFetches int          // successful fetches that still report Processing
	neverFinish    map[int]bool // request indexes that stay Processing
	panicOnFetch   bool

	reqs       map[string]judge.ExecutionRequest
	index      map[string]int
	dispatched [][]judge.ExecutionRequest
	fetches    int
	nextToken  int
}

// answering returns a judge whose program prints answers[stdin].
func answering(answers map[string]string) *fakeJudge {
	return &fakeJudge{run: func(req judge.ExecutionRequest) judge.Result {
		return judge.Result{Status: judge.StatusAccepted, Stdout: answers[req.Stdin] + "\n", TimeMs: 12, MemoryKb: 3000}
	}}
}

func (f *fakeJudge) DispatchBatch(_ context.Context, reqs []judge.ExecutionRequest) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatched = append(f.dispatched, reqs)
	if f.dispatchErr != nil {
		return nil, f.dispatchErr
	}
	if f.reqs == nil {
		f.reqs = make(map[string]judge.ExecutionRequest)
		f.index = make(map[string]int)
	}
	tokens := make([]string, 0, len(reqs))
	for i, r := range reqs {
		f.nextToken++
		tok := fmt.Sprintf("tok-%d", f.nextToken)
		f.reqs[tok] = r
		f.index[tok] = i
		tokens = append(tokens, tok)
	}
	if f.dropToken {
		tokens = tokens[:len(tokens)-1]
	}
	return tokens, nil
}

func (f *fakeJudge) FetchBatch(_ context.Context, tokens []string) ([]judge.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOnFetch {
		panic("judge exploded")
	}
	f.fetches++
	if f.fetches <= f.fetchErrs {
		return nil, errors.New("judge unavailable")
	}
	pending := f.fetches-f.fetchErrs <= f.pendingFetches

	out := make([]judge.Result, len(tokens))
	for i, tok := range tokens {
		req := f.reqs[tok]
		if pending || f.neverFinish[f.index[tok]] {
			out[i] = judge.Result{Token: tok, Status: judge.StatusProcessing}
			continue
		}
		res := f.run(req)
		res.Token = tok
		if req.ExpectedOutput != nil && res.Status == judge.StatusAccepted &&
			strings.TrimSpace(res.Stdout) != strings.TrimSpace(*req.ExpectedOutput) {
			res.Status = judge.StatusWrongAnswer
		}
		out[i] = res
	}
	return out, nil
}

func (f *fakeJudge) lastBatch() []judge.ExecutionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.dispatched) == 0 {
		return nil
	}
	return f.dispatched[len(f.dispatched)-1]
}

var twoSumAnswers = map[string]string{"1 2": "3", "2 2": "4", "5 5": "10"}

type fixture struct {
	store        *repository.MemStore
	judge        *fakeJudge
	rewards      *RewardService
	achievements *AchievementService
	grader       *GradingService
}

func newFixture(t *testing.T, fj *fakeJudge) *fixture {
	t.Helper()
	ctx := context.Background()
	log := zaptest.NewLogger(t)
	store := repository.NewMemStore()

	for _, u := range []*model.User{
		{ID: "u1", Username: "ada", Role: model.RoleUser},
		{ID: "u2", Username: "grace", Role: model.RoleUser, IsPro: true},
		{ID: "admin", Username: "root", Role: model.RoleAdmin},
	} {
		require.NoError(t, store.Create(ctx, u))
	}

	require.NoError(t, store.CreateProblem(ctx, nil, &model.Problem{
		ID: "p-two-sum", Slug: "two-sum", Title: "Two Sum", Difficulty: model.DifficultyEasy,
		Status: model.StatusPublished, RuntimeLimitMs: 2000, MemoryLimitKb: 262144,
	}))
	require.NoError(t, store.AddTestCasesToProblem(ctx, nil, "p-two-sum", []model.TestCase{
		{ID: "ts-1", OrderIndex: 1, Input: "1 2", ExpectedOutput: "3", IsHidden: false},
		{ID: "ts-2", OrderIndex: 2, Input: "2 2", ExpectedOutput: "4", IsHidden: true},
		{ID: "ts-3", OrderIndex: 3, Input: "5 5", ExpectedOutput: "10", IsHidden: true},
	}))
	require.NoError(t, store.AddTagsToProblem(ctx, nil, "p-two-sum", []string{"Array", "Hash Table"}))

	rewards := NewRewardService(store, store, store, store, log)
	rewards.now = func() time.Time { return testNow }
	ach := NewAchievementService(store, store, store, store, log)
	ach.now = func() time.Time { return testNow }
	grader := NewGradingService(store, store, fj, rewards, ach,
		GradingOptions{PollAttempts: 5, PollInterval: time.Millisecond}, log)
	grader.now = func() time.Time { return testNow }

	return &fixture{store: store, judge: fj, rewards: rewards, achievements: ach, grader: grader}
}

// pending stores a PENDING submission created a minute before testNow.
func (f *fixture) pending(t *testing.T, userID, problemID, lang string) *model.Submission {
	t.Helper()
	n, err := f.store.CountTestCases(context.Background(), problemID)
	require.NoError(t, err)
	sub := &model.Submission{
		ID:             uuid.NewString(),
		UserID:         userID,
		ProblemID:      problemID,
		Code:           "print(sum(map(int, input().split())))",
		Language:       lang,
		Verdict:        model.VerdictPending,
		TotalTestCases: n,
		CreatedAt:      testNow.Add(-time.Minute),
	}
	require.NoError(t, f.store.CreateSubmission(context.Background(), nil, sub))
	return sub
}

func (f *fixture) grade(t *testing.T, sub *model.Submission) *model.Submission {
	t.Helper()
	f.grader.Grade(context.Background(), model.GradingJob{SubmissionID: sub.ID, UserID: sub.UserID})
	got, err := f.store.GetSubmissionByID(context.Background(), sub.ID)
	require.NoError(t, err)
	return got
}

func (f *fixture) results(t *testing.T, subID string) []model.TestResult {
	t.Helper()
	rs, err := f.store.GetSubmissionTestResults(context.Background(), subID)
	require.NoError(t, err)
	return rs
}

func (f *fixture) user(t *testing.T, id string) *model.User {
	t.Helper()
	u, err := f.store.FindByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func intPtr(v int) *int { return &v }
