package model

import "time"

type Verdict string

const (
	VerdictPending  Verdict = "PENDING"
	VerdictAccepted Verdict = "ACCEPTED"
	VerdictRejected Verdict = "REJECTED"
)

func (v Verdict) IsTerminal() bool {
	return v == VerdictAccepted || v == VerdictRejected
}

type Submission struct {
	ID              string       `json:"id"`
	UserID          string       `json:"user_id"`
	ProblemID       string       `json:"problem_id"`
	Code            string       `json:"code"`
	Language        string       `json:"language"`
	Verdict         Verdict      `json:"verdict"`
	RuntimeMs       int          `json:"runtime_ms"` // max across test cases
	MemoryKb        int          `json:"memory_kb"`  // max across test cases
	TestCasesPassed int          `json:"test_cases_passed"`
	TotalTestCases  int          `json:"total_test_cases"`
	CreatedAt       time.Time    `json:"created_at"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
	TestResults     []TestResult `json:"test_results,omitempty"`
}

// ErrorCategory is the single classification attached to a failed test result.
type ErrorCategory string

const (
	CategoryNone                ErrorCategory = ""
	CategoryCompilationError    ErrorCategory = "COMPILATION_ERROR"
	CategoryRuntimeError        ErrorCategory = "RUNTIME_ERROR"
	CategoryTimeLimitExceeded   ErrorCategory = "TIME_LIMIT_EXCEEDED"
	CategoryMemoryLimitExceeded ErrorCategory = "MEMORY_LIMIT_EXCEEDED"
	CategoryInternalError       ErrorCategory = "INTERNAL_ERROR"
	CategoryTimedOut            ErrorCategory = "TIMED_OUT" // judge never finished within the poll budget
)

// TestResult is written once per (submission, test case) and never updated.
type TestResult struct {
	ID             string        `json:"id"`
	SubmissionID   string        `json:"submission_id"`
	TestCaseID     string        `json:"test_case_id"`
	Passed         bool          `json:"passed"`
	ActualOutput   string        `json:"actual_output"`
	ExpectedOutput string        `json:"expected_output"`
	RuntimeMs      int           `json:"runtime_ms"`
	MemoryKb       int           `json:"memory_kb"`
	ErrorMessage   *string       `json:"error_message,omitempty"`
	ErrorCategory  ErrorCategory `json:"error_category,omitempty"`
	JudgeStatus    int           `json:"judge_status"`
	CreatedAt      time.Time     `json:"created_at"`
}

// GradingJob is the unit of background work scheduled at intake.
type GradingJob struct {
	SubmissionID  string `json:"submission_id"`
	UserID        string `json:"user_id"`
	Privileged    bool   `json:"privileged"`
	TimeLimitMs   *int   `json:"time_limit_ms,omitempty"`
	MemoryLimitKb *int   `json:"memory_limit_kb,omitempty"`
	// Requeues counts how often a worker pushed the job back unprocessed.
	Requeues int `json:"requeues,omitempty"`
}
