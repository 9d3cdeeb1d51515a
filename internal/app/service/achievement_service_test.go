package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codequest/internal/domain/model"
	"codequest/internal/domain/repository"
)

func TestSatisfies(t *testing.T) {
	snap := StatsSnapshot{
		TotalSolved: 10, EasySolved: 6, MediumSolved: 3, HardSolved: 1,
		Languages: 2, Tags: 4, Streak: 3, SolvedNoHints: 9, Level: 4,
		SubmissionHour: 3, FirstTryAccepted: true,
	}
	tests := []struct {
		tag  string
		want bool
	}{
		{"solved:10", true},
		{"solved:11", false},
		{"easy:5", true},
		{"medium:5", false},
		{"hard:1", true},
		{"streak:3", true},
		{"streak:4", false},
		{"languages:3", false},
		{"tags:4", true},
		{"no_hints:10", false},
		{"level:4", true},
		{"night_owl", true},
		{"early_bird", false},
		{"first_try", true},
		{" solved:1 ", true},
		{"solved", false},
		{"solved:0", false},
		{"solved:abc", false},
		{"night_owl:1", false},
		{"speedrun:1", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			assert.Equal(t, tt.want, Satisfies(tt.tag, snap))
		})
	}
}

func TestSatisfies_HourBoundaries(t *testing.T) {
	for hour, want := range map[int][2]bool{
		0: {true, false}, 4: {true, false}, 5: {false, true},
		7: {false, true}, 8: {false, false}, 23: {false, false},
	} {
		snap := StatsSnapshot{SubmissionHour: hour}
		assert.Equal(t, want[0], Satisfies(ReqNightOwl, snap), "night_owl at %d", hour)
		assert.Equal(t, want[1], Satisfies(ReqEarlyBird, snap), "early_bird at %d", hour)
	}
}

func TestCurrentStreak(t *testing.T) {
	now := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)
	day := func(offset int) time.Time { return now.AddDate(0, 0, offset).Add(-2 * time.Hour) }

	tests := []struct {
		name  string
		dates []time.Time
		want  int
	}{
		{"none", nil, 0},
		{"today only", []time.Time{day(0)}, 1},
		{"ends yesterday", []time.Time{day(-1), day(-2)}, 2},
		{"broken before today", []time.Time{day(-2), day(-3)}, 0},
		{"gap stops count", []time.Time{day(0), day(-1), day(-3), day(-4)}, 2},
		{"duplicates and disorder", []time.Time{day(-2), day(0), day(-1), day(0), day(-1)}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CurrentStreak(tt.dates, now))
		})
	}
}

func seedCatalog(t *testing.T, f *fixture, catalog ...model.Achievement) {
	t.Helper()
	_, err := SeedAchievements(context.Background(), f.store, catalog)
	require.NoError(t, err)
}

// solve records an accepted python submission for Two Sum.
func solve(t *testing.T, f *fixture, userID string) {
	t.Helper()
	ctx := context.Background()
	sub := f.pending(t, userID, "p-two-sum", "python")
	_, err := f.rewards.Award(ctx, sub, twoSum(t, f))
	require.NoError(t, err)
	_, err = f.store.FinalizeSubmission(ctx, sub.ID, repository.SubmissionFinal{Verdict: model.VerdictAccepted, CompletedAt: testNow})
	require.NoError(t, err)
}

func TestEvaluate_UnlocksOnlyNewAchievements(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, answering(nil))
	seedCatalog(t, f,
		model.Achievement{ID: "first", Name: "First", Requirement: "solved:1", XPReward: 5},
		model.Achievement{ID: "ten", Name: "Ten", Requirement: "solved:10", XPReward: 50},
		model.Achievement{ID: "poly", Name: "Poly", Requirement: "languages:2", XPReward: 7},
	)
	solve(t, f, "u1")

	ec := EvaluationContext{UserID: "u1", SubmittedAt: testNow, Language: "python"}
	unlocked, err := f.achievements.Evaluate(ctx, ec)
	require.NoError(t, err)
	require.Len(t, unlocked, 1)
	assert.Equal(t, "first", unlocked[0].ID)
	assert.Equal(t, 15, f.user(t, "u1").XP)

	again, err := f.achievements.Evaluate(ctx, ec)
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Equal(t, 15, f.user(t, "u1").XP)

	// the triggering language counts before it is stored as accepted
	ec.Language = "go"
	unlocked, err = f.achievements.Evaluate(ctx, ec)
	require.NoError(t, err)
	require.Len(t, unlocked, 1)
	assert.Equal(t, "poly", unlocked[0].ID)
	assert.Equal(t, 22, f.user(t, "u1").XP)
}

func TestEvaluate_ConcurrentCallsUnlockOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, answering(nil))
	seedCatalog(t, f, model.Achievement{ID: "first", Name: "First", Requirement: "solved:1", XPReward: 5})
	solve(t, f, "u1")

	const n = 10
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlocked, err := f.achievements.Evaluate(ctx, EvaluationContext{UserID: "u1", SubmittedAt: testNow})
			assert.NoError(t, err)
			mu.Lock()
			total += len(unlocked)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, total)
	assert.Equal(t, 15, f.user(t, "u1").XP)
}

func TestEvaluate_EmptyCatalog(t *testing.T) {
	f := newFixture(t, answering(nil))
	unlocked, err := f.achievements.Evaluate(context.Background(), EvaluationContext{UserID: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, unlocked)
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, answering(nil))
	solve(t, f, "u1")

	snap, err := f.achievements.Snapshot(ctx, EvaluationContext{
		UserID:      "u1",
		SubmittedAt: time.Date(2026, 10, 17, 6, 15, 0, 0, time.FixedZone("CEST", 2*3600)),
		Language:    "rust",
		FirstTry:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, snap.TotalSolved)
	assert.Equal(t, 1, snap.EasySolved)
	assert.Equal(t, 2, snap.Tags)
	assert.Equal(t, 1, snap.Streak)
	assert.Equal(t, 2, snap.Languages, "python from storage plus rust")
	assert.Equal(t, 4, snap.SubmissionHour)
	assert.True(t, snap.FirstTryAccepted)
	assert.Equal(t, model.LevelForXP(10), snap.Level)
}

func TestSnapshot_UnknownUser(t *testing.T) {
	f := newFixture(t, answering(nil))
	_, err := f.achievements.Snapshot(context.Background(), EvaluationContext{UserID: "ghost"})
	require.Error(t, err)
}
