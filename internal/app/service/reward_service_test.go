package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codequest/internal/domain/model"
	"codequest/internal/domain/repository"
)

func twoSum(t *testing.T, f *fixture) *model.Problem {
	t.Helper()
	p, err := f.store.FindProblemByID(context.Background(), "p-two-sum")
	require.NoError(t, err)
	return p
}

func TestAward_DailyChallengeBonus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, answering(nil))
	require.NoError(t, f.store.Upsert(ctx, model.DailyChallenge{Date: testNow, ProblemID: "p-two-sum", XPBonus: 15}))

	out, err := f.rewards.Award(ctx, f.pending(t, "u1", "p-two-sum", "python"), twoSum(t, f))
	require.NoError(t, err)
	assert.True(t, out.FirstSolve)
	assert.Equal(t, 25, out.XPAwarded)
	assert.Equal(t, 25, out.TotalXP)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, model.LevelForXP(25), out.Level)
}

func TestAward_DailyChallengeForOtherProblem(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, answering(nil))
	require.NoError(t, f.store.Upsert(ctx, model.DailyChallenge{Date: testNow, ProblemID: "p-other", XPBonus: 15}))

	out, err := f.rewards.Award(ctx, f.pending(t, "u1", "p-two-sum", "python"), twoSum(t, f))
	require.NoError(t, err)
	assert.Equal(t, 10, out.XPAwarded)
}

func TestAward_AfterRejectedAttempts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, answering(nil))
	require.NoError(t, f.rewards.RecordAttempt(ctx, "u1", "p-two-sum"))
	require.NoError(t, f.rewards.RecordAttempt(ctx, "u1", "p-two-sum"))

	out, err := f.rewards.Award(ctx, f.pending(t, "u1", "p-two-sum", "python"), twoSum(t, f))
	require.NoError(t, err)
	assert.True(t, out.FirstSolve)
	assert.Equal(t, 3, out.Attempts)

	// a later rejection never downgrades a solved stat
	require.NoError(t, f.rewards.RecordAttempt(ctx, "u1", "p-two-sum"))
	stat, err := f.store.GetProblemStat(ctx, "u1", "p-two-sum")
	require.NoError(t, err)
	assert.True(t, stat.Solved)
	assert.Equal(t, model.StatSolved, stat.Status)
	assert.Equal(t, 4, stat.Attempts)
	assert.Equal(t, 10, stat.XPEarned)
}

func TestAward_KeepsEarliestSolveTime(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, answering(nil))
	p := twoSum(t, f)

	late := f.pending(t, "u1", "p-two-sum", "python")
	early := f.pending(t, "u1", "p-two-sum", "python")
	early.CreatedAt = late.CreatedAt.Add(-time.Hour)

	_, err := f.rewards.Award(ctx, late, p)
	require.NoError(t, err)
	out, err := f.rewards.Award(ctx, early, p)
	require.NoError(t, err)
	assert.False(t, out.FirstSolve)
	assert.Zero(t, out.XPAwarded)

	stat, err := f.store.GetProblemStat(ctx, "u1", "p-two-sum")
	require.NoError(t, err)
	require.NotNil(t, stat.SolvedAt)
	assert.True(t, stat.SolvedAt.Equal(early.CreatedAt))
}

// conflictingLedger fails the first fails runs with err.
type conflictingLedger struct {
	*repository.MemStore
	err   error
	fails int32
	calls atomic.Int32
}

func (l *conflictingLedger) RunSerializable(ctx context.Context, fn func(repository.LedgerTx) error) error {
	if l.calls.Add(1) <= l.fails {
		return l.err
	}
	return l.MemStore.RunSerializable(ctx, fn)
}

func TestAward_RetriesSerializationFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, answering(nil))
	ledger := &conflictingLedger{
		MemStore: f.store,
		err:      &pgconn.PgError{Code: "40001", Message: "could not serialize access"},
		fails:    2,
	}
	f.rewards.stats = ledger

	out, err := f.rewards.Award(ctx, f.pending(t, "u1", "p-two-sum", "python"), twoSum(t, f))
	require.NoError(t, err)
	assert.Equal(t, 10, out.XPAwarded)
	assert.EqualValues(t, 3, ledger.calls.Load())
	assert.Equal(t, 10, f.user(t, "u1").XP)
}

func TestAward_PermanentErrorIsNotRetried(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, answering(nil))
	ledger := &conflictingLedger{MemStore: f.store, err: errors.New("disk full"), fails: 10}
	f.rewards.stats = ledger

	_, err := f.rewards.Award(ctx, f.pending(t, "u1", "p-two-sum", "python"), twoSum(t, f))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.EqualValues(t, 1, ledger.calls.Load())
}

type brokenDaily struct{ *repository.MemStore }

func (brokenDaily) FindByDate(context.Context, time.Time) (*model.DailyChallenge, error) {
	return nil, errors.New("timeout")
}

func TestAward_DailyLookupFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, answering(nil))
	f.rewards.daily = brokenDaily{f.store}

	_, err := f.rewards.Award(ctx, f.pending(t, "u1", "p-two-sum", "python"), twoSum(t, f))
	require.Error(t, err)
	assert.Zero(t, f.user(t, "u1").XP)
}
