package main

import (
	"context"
	"database/sql"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"codequest/internal/app/judge"
	"codequest/internal/app/service"
	"codequest/internal/common/security"
	"codequest/internal/domain/repository"
	"codequest/internal/platform/config"
	"codequest/internal/platform/database"
	"codequest/internal/platform/logging"
	"codequest/internal/platform/queue"
)

// app holds the process-wide dependencies shared by the commands.
type app struct {
	cfg *config.Config
	log *zap.Logger
	db  *sql.DB
	rdb *redis.Client

	submissions  repository.SubmissionRepository
	problems     repository.ProblemRepository
	users        repository.UserRepository
	stats        repository.ProblemStatRepository
	achievements repository.AchievementRepository
	daily        repository.DailyChallengeRepository
	leaderboard  repository.LeaderboardRepository
}

// newApp loads configuration and connects to Postgres, and to Redis when
// withRedis is set.
func newApp(ctx context.Context, withRedis bool) (*app, error) {
	cfg := config.Load()
	log, err := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	security.InitJWT(cfg.JWTKey)

	db, err := database.Connect(cfg.DBConnStr)
	if err != nil {
		log.Sync()
		return nil, err
	}
	log.Info("database connected", zap.String("host", cfg.DBHost), zap.String("name", cfg.DBName))

	a := &app{
		cfg:          cfg,
		log:          log,
		db:           db,
		submissions:  repository.NewPgSubmissionRepository(db),
		problems:     repository.NewPgProblemRepository(db),
		users:        repository.NewPgUserRepository(db),
		stats:        repository.NewPgProblemStatRepository(db),
		achievements: repository.NewPgAchievementRepository(db),
		daily:        repository.NewPgDailyChallengeRepository(db),
	}

	if withRedis {
		rdb, err := queue.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.rdb = rdb
		a.leaderboard = repository.NewRedisLeaderboardRepository(rdb, cfg.LeaderboardKey)
		log.Info("redis connected", zap.String("addr", cfg.RedisAddr))
	}
	return a, nil
}

func (a *app) Close() {
	if a.rdb != nil {
		queue.CloseRedis()
	}
	database.Close()
	a.log.Sync()
}

func (a *app) gradingService() *service.GradingService {
	judgeClient := judge.NewClient(a.cfg.JudgeURL, a.cfg.JudgeAuthToken, a.cfg.JudgeTimeout)
	rewards := service.NewRewardService(a.stats, a.daily, a.users, a.leaderboard, a.log.Named("rewards"))
	achievements := service.NewAchievementService(a.achievements, a.stats, a.submissions, a.users, a.log.Named("achievements"))
	return service.NewGradingService(a.submissions, a.problems, judgeClient, rewards, achievements,
		service.GradingOptions{PollAttempts: a.cfg.JudgePollAttempts, PollInterval: a.cfg.JudgePollInterval},
		a.log.Named("grading"))
}
