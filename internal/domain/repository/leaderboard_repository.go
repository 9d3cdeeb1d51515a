package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"codequest/internal/common"
)

// LeaderboardRepository mirrors users' XP totals into a Redis sorted set.
// Ranking and display are owned elsewhere.
type LeaderboardRepository interface {
	UpdateScore(ctx context.Context, userID string, xp int) error
	Score(ctx context.Context, userID string) (int, error)
}

type redisLeaderboardRepository struct {
	rdb *redis.Client
	key string
}

func NewRedisLeaderboardRepository(rdb *redis.Client, key string) LeaderboardRepository {
	return &redisLeaderboardRepository{rdb: rdb, key: key}
}

func (r *redisLeaderboardRepository) UpdateScore(ctx context.Context, userID string, xp int) error {
	if err := r.rdb.ZAdd(ctx, r.key, redis.Z{Score: float64(xp), Member: userID}).Err(); err != nil {
		return fmt.Errorf("redisLeaderboardRepository.UpdateScore: %w", err)
	}
	return nil
}

func (r *redisLeaderboardRepository) Score(ctx context.Context, userID string) (int, error) {
	score, err := r.rdb.ZScore(ctx, r.key, userID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, common.ErrNotFound
		}
		return 0, fmt.Errorf("redisLeaderboardRepository.Score: %w", err)
	}
	return int(score), nil
}
