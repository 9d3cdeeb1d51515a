package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"codequest/internal/common"
	"codequest/internal/domain/model"
	"codequest/internal/domain/repository"
)

const (
	ledgerMaxRetries   = 5
	leaderboardTimeout = 5 * time.Second
)

// RewardOutcome describes what one ledger run changed.
type RewardOutcome struct {
	FirstSolve bool
	XPAwarded  int
	TotalXP    int
	Level      int
	Attempts   int // on the stat, including this submission
}

// RewardService is the reward ledger: it pays first-solve XP for a
// (user, problem) pair exactly once.
type RewardService struct {
	stats       repository.ProblemStatRepository
	daily       repository.DailyChallengeRepository
	users       repository.UserRepository
	leaderboard repository.LeaderboardRepository
	log         *zap.Logger
	now         func() time.Time
}

func NewRewardService(
	stats repository.ProblemStatRepository,
	daily repository.DailyChallengeRepository,
	users repository.UserRepository,
	leaderboard repository.LeaderboardRepository,
	log *zap.Logger,
) *RewardService {
	return &RewardService{
		stats:       stats,
		daily:       daily,
		users:       users,
		leaderboard: leaderboard,
		log:         log,
		now:         time.Now,
	}
}

// Award applies an accepted submission to the ledger.
func (s *RewardService) Award(ctx context.Context, sub *model.Submission, problem *model.Problem) (*RewardOutcome, error) {
	delta := problem.Difficulty.BaseXP()
	dc, err := s.daily.FindByDate(ctx, s.now())
	switch {
	case err == nil:
		if dc.ProblemID == problem.ID {
			delta += dc.XPBonus
		}
	case !errors.Is(err, common.ErrNotFound):
		return nil, common.Errorf("failed to look up daily challenge: %w", err)
	}

	var out RewardOutcome
	apply := func(tx repository.LedgerTx) error {
		out = RewardOutcome{}

		existing, err := tx.GetProblemStat(ctx, sub.UserID, problem.ID)
		if err != nil {
			return err
		}
		wasSolved := existing != nil && existing.Solved

		stat := existing
		if stat == nil {
			stat = &model.ProblemStat{UserID: sub.UserID, ProblemID: problem.ID}
		}
		stat.Attempts++
		stat.Solved = true
		stat.Status = model.StatSolved
		if stat.SolvedAt == nil || sub.CreatedAt.Before(*stat.SolvedAt) {
			solvedAt := sub.CreatedAt
			stat.SolvedAt = &solvedAt
		}
		if !wasSolved {
			stat.XPEarned = delta
		}
		if err := tx.SaveProblemStat(ctx, stat); err != nil {
			return err
		}

		xp, err := tx.GetUserXP(ctx, sub.UserID)
		if err != nil {
			return err
		}
		if !wasSolved {
			xp += delta
			if err := tx.SetUserXP(ctx, sub.UserID, xp, model.LevelForXP(xp)); err != nil {
				return err
			}
			out.XPAwarded = delta
		}
		out.FirstSolve = !wasSolved
		out.TotalXP = xp
		out.Level = model.LevelForXP(xp)
		out.Attempts = stat.Attempts
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), ledgerMaxRetries), ctx)
	err = backoff.Retry(func() error {
		err := s.stats.RunSerializable(ctx, apply)
		if err != nil && !common.IsRetryableTxError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
	if err != nil {
		return nil, common.Errorf("reward ledger for submission %s: %w", sub.ID, err)
	}

	if out.FirstSolve {
		s.log.Info("first solve rewarded",
			zap.String("user_id", sub.UserID),
			zap.String("problem_id", problem.ID),
			zap.Int("xp_awarded", out.XPAwarded),
			zap.Int("total_xp", out.TotalXP),
		)
	}
	return &out, nil
}

// PublishScore pushes the user's stored XP total to the leaderboard. Call it
// after every XP change of a grading run, achievement bonuses included.
// Failures are logged only.
func (s *RewardService) PublishScore(ctx context.Context, userID string) {
	if s.leaderboard == nil {
		return
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		s.log.Warn("leaderboard update skipped", zap.String("user_id", userID), zap.Error(err))
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), leaderboardTimeout)
		defer cancel()
		if err := s.leaderboard.UpdateScore(ctx, userID, user.XP); err != nil {
			s.log.Warn("leaderboard update failed", zap.String("user_id", userID), zap.Error(err))
		}
	}()
}

// RecordAttempt counts a rejected submission against the stat. A SOLVED stat
// stays SOLVED.
func (s *RewardService) RecordAttempt(ctx context.Context, userID, problemID string) error {
	if err := s.stats.RecordAttempt(ctx, userID, problemID); err != nil {
		return common.Errorf("failed to record attempt: %w", err)
	}
	return nil
}
