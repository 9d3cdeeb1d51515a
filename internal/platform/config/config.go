package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	GradingModeQueue  = "queue"
	GradingModeInline = "inline"
)

type Config struct {
	AppEnv   string
	LogLevel string
	APIPort  string
	JWTKey   []byte
	JWTExp   time.Duration

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSslMode  string
	DBConnStr  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	GradingMode           string
	GradingQueueName      string
	GradingLockPrefix     string
	GradingLockTTLSeconds int

	JudgeURL          string
	JudgeAuthToken    string
	JudgeTimeout      time.Duration
	JudgePollAttempts int
	JudgePollInterval time.Duration

	LeaderboardKey string
}

var AppConfig *Config

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = &Config{
		AppEnv:                getEnv("APP_ENV", "development"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		APIPort:               getEnv("API_PORT", "8080"),
		JWTKey:                []byte(getEnv("JWT_SECRET", "defaultsecret")),
		JWTExp:                time.Duration(getEnvAsInt("JWT_EXPIRATION_HOURS", 72)) * time.Hour,
		DBHost:                getEnv("DB_HOST", "localhost"),
		DBPort:                getEnv("DB_PORT", "5432"),
		DBUser:                getEnv("DB_USER", "user"),
		DBPassword:            getEnv("DB_PASSWORD", "password"),
		DBName:                getEnv("DB_NAME", "codequest"),
		DBSslMode:             getEnv("DB_SSLMODE", "disable"),
		RedisAddr:             getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:         getEnv("REDIS_PASSWORD", ""),
		RedisDB:               getEnvAsInt("REDIS_DB", 0),
		GradingMode:           getEnv("GRADING_MODE", GradingModeQueue),
		GradingQueueName:      getEnv("GRADING_QUEUE_NAME", "grading_jobs_queue"),
		GradingLockPrefix:     getEnv("GRADING_LOCK_PREFIX", "grading_lock:"),
		GradingLockTTLSeconds: getEnvAsInt("GRADING_LOCK_TTL_SECONDS", 120),
		JudgeURL:              getEnv("JUDGE_URL", "http://localhost:2358"),
		JudgeAuthToken:        getEnv("JUDGE_AUTH_TOKEN", ""),
		JudgeTimeout:          time.Duration(getEnvAsInt("JUDGE_TIMEOUT_SECONDS", 10)) * time.Second,
		JudgePollAttempts:     getEnvAsInt("JUDGE_POLL_ATTEMPTS", 30),
		JudgePollInterval:     getEnvAsDuration("JUDGE_POLL_INTERVAL_MS", time.Second),
		LeaderboardKey:        getEnv("LEADERBOARD_KEY", "leaderboard:xp"),
	}

	AppConfig.DBConnStr = "host=" + AppConfig.DBHost +
		" port=" + AppConfig.DBPort +
		" user=" + AppConfig.DBUser +
		" password=" + AppConfig.DBPassword +
		" dbname=" + AppConfig.DBName +
		" sslmode=" + AppConfig.DBSslMode

	return AppConfig
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration reads a millisecond count.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil && value > 0 {
		return time.Duration(value) * time.Millisecond
	}
	return fallback
}
