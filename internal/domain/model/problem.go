package model

import (
	"strings"
	"time"
)

type ProblemDifficulty string
type ProblemStatus string

const (
	DifficultyEasy   ProblemDifficulty = "EASY"
	DifficultyMedium ProblemDifficulty = "MEDIUM"
	DifficultyHard   ProblemDifficulty = "HARD"

	StatusDraft     ProblemStatus = "DRAFT"
	StatusPublished ProblemStatus = "PUBLISHED"
)

// BaseXP is the first-solve reward for the difficulty tier.
func (d ProblemDifficulty) BaseXP() int {
	switch d {
	case DifficultyEasy:
		return 10
	case DifficultyMedium:
		return 20
	case DifficultyHard:
		return 30
	}
	return 0
}

type Problem struct {
	ID             string            `json:"id"`
	Slug           string            `json:"slug"`
	Title          string            `json:"title"`
	Difficulty     ProblemDifficulty `json:"difficulty"`
	Status         ProblemStatus     `json:"status"`
	IsPremium      bool              `json:"is_premium"`
	RuntimeLimitMs int               `json:"runtime_limit_ms"`
	MemoryLimitKb  int               `json:"memory_limit_kb"`
	CreatedAt      time.Time         `json:"created_at"`
	TestCases      []TestCase        `json:"test_cases,omitempty"`
}

func (p *Problem) IsPublished() bool {
	return p.Status == StatusPublished
}

type TestCase struct {
	ID                 string   `json:"id"`
	ProblemID          string   `json:"problem_id"`
	OrderIndex         int      `json:"order_index"`
	Input              string   `json:"input"`
	ExpectedOutput     string   `json:"expected_output"`
	AlternativeOutputs []string `json:"alternative_outputs,omitempty"`
	IsHidden           bool     `json:"is_hidden"`
}

// IsMultiAnswer reports whether more than one textual answer is accepted.
func (tc TestCase) IsMultiAnswer() bool {
	return len(tc.AlternativeOutputs) > 0
}

// ValidOutputs returns the trimmed primary output followed by the trimmed alternatives.
func (tc TestCase) ValidOutputs() []string {
	outs := make([]string, 0, 1+len(tc.AlternativeOutputs))
	outs = append(outs, strings.TrimSpace(tc.ExpectedOutput))
	for _, alt := range tc.AlternativeOutputs {
		outs = append(outs, strings.TrimSpace(alt))
	}
	return outs
}
