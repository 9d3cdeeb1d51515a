package model

import "time"

type Achievement struct {
	ID          string `json:"id" toml:"id"`
	Name        string `json:"name" toml:"name"`
	Description string `json:"description" toml:"description"`
	Requirement string `json:"requirement" toml:"requirement"`
	XPReward    int    `json:"xp_reward" toml:"xp_reward"`
}

type UserAchievement struct {
	UserID        string      `json:"user_id"`
	AchievementID string      `json:"achievement_id"`
	UnlockedAt    time.Time   `json:"unlocked_at"`
	Achievement   Achievement `json:"achievement"`
}

type DailyChallenge struct {
	Date      time.Time `json:"date"`
	ProblemID string    `json:"problem_id"`
	XPBonus   int       `json:"xp_bonus"`
}
