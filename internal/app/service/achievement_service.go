package service

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"codequest/internal/common"
	"codequest/internal/domain/model"
	"codequest/internal/domain/repository"
)

// EvaluationContext carries the facts about the triggering submission that
// storage cannot answer yet.
type EvaluationContext struct {
	UserID      string
	SubmittedAt time.Time
	Language    string
	FirstTry    bool
}

type AchievementService struct {
	achievements repository.AchievementRepository
	stats        repository.ProblemStatRepository
	submissions  repository.SubmissionRepository
	users        repository.UserRepository
	log          *zap.Logger
	now          func() time.Time
}

func NewAchievementService(
	achievements repository.AchievementRepository,
	stats repository.ProblemStatRepository,
	submissions repository.SubmissionRepository,
	users repository.UserRepository,
	log *zap.Logger,
) *AchievementService {
	return &AchievementService{
		achievements: achievements,
		stats:        stats,
		submissions:  submissions,
		users:        users,
		log:          log,
		now:          time.Now,
	}
}

// Snapshot gathers the user's statistics concurrently.
func (s *AchievementService) Snapshot(ctx context.Context, ec EvaluationContext) (StatsSnapshot, error) {
	snap := StatsSnapshot{
		SubmissionHour:   ec.SubmittedAt.UTC().Hour(),
		FirstTryAccepted: ec.FirstTry,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sum, err := s.stats.SolvedSummary(gctx, ec.UserID)
		if err != nil {
			return err
		}
		snap.TotalSolved, snap.EasySolved, snap.MediumSolved, snap.HardSolved = sum.Total, sum.Easy, sum.Medium, sum.Hard
		snap.SolvedNoHints = sum.WithoutHints
		return nil
	})
	g.Go(func() error {
		dates, err := s.stats.SolveDates(gctx, ec.UserID)
		if err != nil {
			return err
		}
		snap.Streak = CurrentStreak(dates, s.now())
		return nil
	})
	g.Go(func() error {
		n, err := s.stats.CountSolvedTags(gctx, ec.UserID)
		if err != nil {
			return err
		}
		snap.Tags = n
		return nil
	})
	g.Go(func() error {
		langs, err := s.submissions.ListAcceptedLanguages(gctx, ec.UserID)
		if err != nil {
			return err
		}
		// the triggering submission is not ACCEPTED in storage yet
		if ec.Language != "" && !slices.Contains(langs, ec.Language) {
			langs = append(langs, ec.Language)
		}
		snap.Languages = len(langs)
		return nil
	})
	g.Go(func() error {
		u, err := s.users.FindByID(gctx, ec.UserID)
		if err != nil {
			return err
		}
		snap.Level = u.Level
		return nil
	})
	if err := g.Wait(); err != nil {
		return StatsSnapshot{}, common.Errorf("failed to build stats snapshot: %w", err)
	}
	return snap, nil
}

// Evaluate unlocks every catalog achievement the user now qualifies for and
// returns the ones unlocked by this call. Losing an unlock race to a
// concurrent evaluation is not an error.
func (s *AchievementService) Evaluate(ctx context.Context, ec EvaluationContext) ([]model.Achievement, error) {
	catalog, err := s.achievements.ListAchievements(ctx)
	if err != nil {
		return nil, common.Errorf("failed to list achievements: %w", err)
	}
	if len(catalog) == 0 {
		return nil, nil
	}
	unlockedIDs, err := s.achievements.ListUnlockedIDs(ctx, ec.UserID)
	if err != nil {
		return nil, common.Errorf("failed to list unlocked achievements: %w", err)
	}
	snap, err := s.Snapshot(ctx, ec)
	if err != nil {
		return nil, err
	}

	var (
		unlocked []model.Achievement
		errs     []error
	)
	at := s.now().UTC()
	for _, a := range catalog {
		if slices.Contains(unlockedIDs, a.ID) || !Satisfies(a.Requirement, snap) {
			continue
		}
		ok, err := s.achievements.Unlock(ctx, ec.UserID, a, at)
		if err != nil {
			errs = append(errs, common.Errorf("unlock %s: %w", a.ID, err))
			continue
		}
		if ok {
			unlocked = append(unlocked, a)
			s.log.Info("achievement unlocked",
				zap.String("user_id", ec.UserID),
				zap.String("achievement_id", a.ID),
				zap.Int("xp_reward", a.XPReward),
			)
		}
	}
	return unlocked, errors.Join(errs...)
}
