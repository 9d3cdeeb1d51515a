package repository

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codequest/internal/common"
	"codequest/internal/domain/model"
	"codequest/internal/platform/database/dbtest"
)

func seedPg(t *testing.T) *sql.DB {
	t.Helper()
	db := dbtest.New(t)
	ctx := context.Background()

	require.NoError(t, NewPgUserRepository(db).Create(ctx, &model.User{ID: "u1", Username: "ada", Role: model.RoleUser}))
	probs := NewPgProblemRepository(db)
	require.NoError(t, probs.CreateProblem(ctx, nil, &model.Problem{
		ID: "p1", Slug: "two-sum", Title: "Two Sum", Difficulty: model.DifficultyEasy, Status: model.StatusPublished,
		RuntimeLimitMs: 2000, MemoryLimitKb: 262144,
	}))
	require.NoError(t, probs.AddTestCasesToProblem(ctx, nil, "p1", []model.TestCase{
		{ID: "tc2", OrderIndex: 2, Input: "2", ExpectedOutput: "2", AlternativeOutputs: []string{"two"}},
		{ID: "tc1", OrderIndex: 1, Input: "1", ExpectedOutput: "1"},
	}))
	require.NoError(t, probs.AddTagsToProblem(ctx, nil, "p1", []string{"Hash Table", "Array"}))
	return db
}

func TestPgProblemRepository(t *testing.T) {
	db := seedPg(t)
	ctx := context.Background()
	probs := NewPgProblemRepository(db)

	p, err := probs.FindProblemBySlug(ctx, "two-sum")
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
	assert.True(t, p.IsPublished())

	_, err = probs.FindProblemByID(ctx, "missing")
	require.ErrorIs(t, err, common.ErrNotFound)

	err = probs.CreateProblem(ctx, nil, &model.Problem{ID: "p2", Slug: "two-sum", Title: "dup", Difficulty: model.DifficultyHard, Status: model.StatusDraft})
	require.ErrorIs(t, err, common.ErrConflict)

	tcs, err := probs.GetTestCasesByProblemID(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, tcs, 2)
	assert.Equal(t, "tc1", tcs[0].ID)
	assert.Nil(t, tcs[0].AlternativeOutputs)
	assert.Equal(t, []string{"two"}, tcs[1].AlternativeOutputs)

	n, err := probs.CountTestCases(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPgSubmissionRepository(t *testing.T) {
	db := seedPg(t)
	ctx := context.Background()
	subs := NewPgSubmissionRepository(db)

	s := &model.Submission{ID: "s1", UserID: "u1", ProblemID: "p1", Code: "print(1)", Language: "python", Verdict: model.VerdictPending, TotalTestCases: 2}
	require.NoError(t, subs.CreateSubmission(ctx, nil, s))
	assert.False(t, s.CreatedAt.IsZero())

	msg := "boom"
	ok, err := subs.CreateTestResult(ctx, &model.TestResult{ID: "r1", SubmissionID: "s1", TestCaseID: "tc1", Passed: true, JudgeStatus: 3})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = subs.CreateTestResult(ctx, &model.TestResult{
		ID: "r2", SubmissionID: "s1", TestCaseID: "tc2", ErrorMessage: &msg, ErrorCategory: model.CategoryRuntimeError, JudgeStatus: 11,
	})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = subs.CreateTestResult(ctx, &model.TestResult{ID: "r3", SubmissionID: "s1", TestCaseID: "tc2", Passed: true, JudgeStatus: 3})
	require.NoError(t, err)
	assert.False(t, ok, "second result for the same test case must be ignored")

	passed, recorded, err := subs.CountTestResults(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, passed)
	assert.Equal(t, 2, recorded)

	results, err := subs.GetSubmissionTestResults(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, model.CategoryNone, results[0].ErrorCategory)
	assert.Nil(t, results[0].ErrorMessage)
	assert.Equal(t, model.CategoryRuntimeError, results[1].ErrorCategory)
	require.NotNil(t, results[1].ErrorMessage)
	assert.Equal(t, "boom", *results[1].ErrorMessage)

	done := time.Now().UTC()
	ok, err = subs.FinalizeSubmission(ctx, "s1", SubmissionFinal{Verdict: model.VerdictRejected, TestCasesPassed: 1, CompletedAt: done})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = subs.FinalizeSubmission(ctx, "s1", SubmissionFinal{Verdict: model.VerdictAccepted, TestCasesPassed: 2, CompletedAt: done})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := subs.GetSubmissionByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, model.VerdictRejected, got.Verdict)
	assert.Equal(t, 1, got.TestCasesPassed)
	require.NotNil(t, got.CompletedAt)
}

func TestPgProblemStatRepository_Ledger(t *testing.T) {
	db := seedPg(t)
	ctx := context.Background()
	stats := NewPgProblemStatRepository(db)

	require.NoError(t, stats.RecordAttempt(ctx, "u1", "p1"))

	solvedAt := time.Now().UTC().Truncate(time.Microsecond)
	err := stats.RunSerializable(ctx, func(tx LedgerTx) error {
		st, err := tx.GetProblemStat(ctx, "u1", "p1")
		if err != nil {
			return err
		}
		require.NotNil(t, st)
		st.Attempts++
		st.Solved = true
		st.Status = model.StatSolved
		st.SolvedAt = &solvedAt
		st.XPEarned = 10
		if err := tx.SaveProblemStat(ctx, st); err != nil {
			return err
		}
		xp, err := tx.GetUserXP(ctx, "u1")
		if err != nil {
			return err
		}
		return tx.SetUserXP(ctx, "u1", xp+10, model.LevelForXP(xp+10))
	})
	require.NoError(t, err)

	require.NoError(t, stats.RecordAttempt(ctx, "u1", "p1"))
	st, err := stats.GetProblemStat(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, st.Attempts)
	assert.True(t, st.Solved)
	assert.Equal(t, model.StatSolved, st.Status)
	assert.Equal(t, 10, st.XPEarned)

	u, err := NewPgUserRepository(db).FindByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 10, u.XP)
	assert.Equal(t, 2, u.Level)

	sum, err := stats.SolvedSummary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, SolvedSummary{Total: 1, Easy: 1, WithoutHints: 1}, sum)

	tags, err := stats.CountSolvedTags(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, tags)

	dates, err := stats.SolveDates(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, dates, 1)
	assert.Equal(t, solvedAt.Format(time.DateOnly), dates[0].Format(time.DateOnly))
}

// Concurrent serializable transactions that both see "not solved" must not
// both commit.
func TestPgProblemStatRepository_SerializableConflict(t *testing.T) {
	db := seedPg(t)
	ctx := context.Background()
	stats := NewPgProblemStatRepository(db)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		committed int
		conflicts int
	)
	start := make(chan struct{})
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := stats.RunSerializable(ctx, func(tx LedgerTx) error {
				st, err := tx.GetProblemStat(ctx, "u1", "p1")
				if err != nil {
					return err
				}
				if st != nil && st.Solved {
					return nil
				}
				now := time.Now().UTC()
				if err := tx.SaveProblemStat(ctx, &model.ProblemStat{
					UserID: "u1", ProblemID: "p1", Attempts: 1, Solved: true, Status: model.StatSolved, SolvedAt: &now, XPEarned: 10,
				}); err != nil {
					return err
				}
				xp, err := tx.GetUserXP(ctx, "u1")
				if err != nil {
					return err
				}
				return tx.SetUserXP(ctx, "u1", xp+10, model.LevelForXP(xp+10))
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				committed++
			case common.IsRetryableTxError(err):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 4, committed+conflicts)
	u, err := NewPgUserRepository(db).FindByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 10, u.XP, "first-solve XP must be applied once")
}

func TestPgAchievementRepository(t *testing.T) {
	db := seedPg(t)
	ctx := context.Background()
	ach := NewPgAchievementRepository(db)

	a := model.Achievement{ID: "first-blood", Name: "First Blood", Requirement: "solved:1", XPReward: 20}
	require.NoError(t, ach.UpsertAchievement(ctx, a))
	a.Description = "Solve a problem"
	require.NoError(t, ach.UpsertAchievement(ctx, a))

	all, err := ach.ListAchievements(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Solve a problem", all[0].Description)

	at := time.Now().UTC().Truncate(time.Microsecond)
	var wg sync.WaitGroup
	results := make([]bool, 5)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := ach.Unlock(ctx, "u1", a, at)
			assert.NoError(t, err)
			results[i] = ok
		}()
	}
	wg.Wait()

	unlocked := 0
	for _, ok := range results {
		if ok {
			unlocked++
		}
	}
	assert.Equal(t, 1, unlocked)

	u, err := NewPgUserRepository(db).FindByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 20, u.XP)
	assert.Equal(t, model.LevelForXP(20), u.Level)

	ids, err := ach.ListUnlockedIDs(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"first-blood"}, ids)

	window, err := ach.ListUnlockedBetween(ctx, "u1", at.Add(-time.Second), at.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, 20, window[0].Achievement.XPReward)
}

func TestPgDailyChallengeRepository(t *testing.T) {
	db := seedPg(t)
	ctx := context.Background()
	daily := NewPgDailyChallengeRepository(db)

	day := time.Date(2026, 5, 4, 23, 30, 0, 0, time.UTC)
	_, err := daily.FindByDate(ctx, day)
	require.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, daily.Upsert(ctx, model.DailyChallenge{Date: day, ProblemID: "p1", XPBonus: 5}))
	require.NoError(t, daily.Upsert(ctx, model.DailyChallenge{Date: day, ProblemID: "p1", XPBonus: 15}))

	dc, err := daily.FindByDate(ctx, day.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "p1", dc.ProblemID)
	assert.Equal(t, 15, dc.XPBonus)
	assert.Equal(t, "2026-05-04", dc.Date.Format(time.DateOnly))
}
