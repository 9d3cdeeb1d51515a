package model

import "time"

type ProblemStatStatus string

const (
	StatAttempted ProblemStatStatus = "ATTEMPTED"
	StatSolved    ProblemStatStatus = "SOLVED"
)

// ProblemStat is the per (user, problem) aggregate and the record of whether
// first-solve XP has been paid out.
type ProblemStat struct {
	UserID    string            `json:"user_id"`
	ProblemID string            `json:"problem_id"`
	Attempts  int               `json:"attempts"`
	Solved    bool              `json:"solved"`
	Status    ProblemStatStatus `json:"status"`
	SolvedAt  *time.Time        `json:"solved_at,omitempty"`
	XPEarned  int               `json:"xp_earned"`
	HintsUsed bool              `json:"hints_used"`
}
