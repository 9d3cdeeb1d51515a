package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"codequest/internal/app/judge"
	"codequest/internal/domain/model"
)

func TestClassify(t *testing.T) {
	single := model.TestCase{ID: "tc1", ExpectedOutput: "42\n"}
	multi := model.TestCase{ID: "tc2", ExpectedOutput: "A", AlternativeOutputs: []string{"B", "C"}}

	tests := []struct {
		name     string
		result   judge.Result
		tc       model.TestCase
		passed   bool
		status   judge.Status
		category model.ErrorCategory
		message  string
	}{
		{
			name:   "accepted with trailing whitespace",
			result: judge.Result{Status: judge.StatusAccepted, Stdout: "42 \n\n"},
			tc:     single,
			passed: true,
			status: judge.StatusAccepted,
		},
		{
			name:   "wrong answer from judge",
			result: judge.Result{Status: judge.StatusWrongAnswer, Stdout: "41\n"},
			tc:     single,
			status: judge.StatusWrongAnswer,
		},
		{
			name:   "multi-answer alternative passes",
			result: judge.Result{Status: judge.StatusAccepted, Stdout: "B\n"},
			tc:     multi,
			passed: true,
			status: judge.StatusAccepted,
		},
		{
			name:   "multi-answer primary passes",
			result: judge.Result{Status: judge.StatusAccepted, Stdout: "  A"},
			tc:     multi,
			passed: true,
			status: judge.StatusAccepted,
		},
		{
			name:   "multi-answer mismatch overridden to wrong answer",
			result: judge.Result{Status: judge.StatusAccepted, Stdout: "D"},
			tc:     multi,
			status: judge.StatusWrongAnswer,
		},
		{
			name:     "compilation error",
			result:   judge.Result{Status: judge.StatusCompilationError, CompileOutput: "main.cpp:3:1: error: expected ';'\n"},
			tc:       single,
			status:   judge.StatusCompilationError,
			category: model.CategoryCompilationError,
			message:  "main.cpp:3:1: error: expected ';'",
		},
		{
			name:     "python syntax error surfaces on stderr",
			result:   judge.Result{Status: judge.StatusRuntimeNZEC, Stderr: "  File \"script.py\", line 1\nSyntaxError: invalid syntax"},
			tc:       single,
			status:   judge.StatusRuntimeNZEC,
			category: model.CategoryCompilationError,
			message:  "File \"script.py\", line 1\nSyntaxError: invalid syntax",
		},
		{
			name:     "runtime error from stderr",
			result:   judge.Result{Status: judge.StatusRuntimeNZEC, Stderr: "ZeroDivisionError: division by zero"},
			tc:       single,
			status:   judge.StatusRuntimeNZEC,
			category: model.CategoryRuntimeError,
			message:  "ZeroDivisionError: division by zero",
		},
		{
			name:     "runtime error from status only",
			result:   judge.Result{Status: judge.StatusRuntimeSIGSEGV},
			tc:       single,
			status:   judge.StatusRuntimeSIGSEGV,
			category: model.CategoryRuntimeError,
			message:  "Runtime Error",
		},
		{
			name:     "time limit",
			result:   judge.Result{Status: judge.StatusTimeLimit, TimeMs: 2001},
			tc:       single,
			status:   judge.StatusTimeLimit,
			category: model.CategoryTimeLimitExceeded,
			message:  "Time Limit Exceeded",
		},
		{
			name:     "runtime status outranks memory message",
			result:   judge.Result{Status: judge.StatusRuntimeOther, Message: "Memory limit exceeded"},
			tc:       single,
			status:   judge.StatusRuntimeOther,
			category: model.CategoryRuntimeError,
			message:  "Memory limit exceeded",
		},
		{
			name:     "memory message without runtime status",
			result:   judge.Result{Status: judge.StatusWrongAnswer, Message: "memory usage above limit"},
			tc:       single,
			status:   judge.StatusWrongAnswer,
			category: model.CategoryMemoryLimitExceeded,
			message:  "memory usage above limit",
		},
		{
			name:     "internal judge error",
			result:   judge.Result{Status: judge.StatusInternalError, Message: "box failed"},
			tc:       single,
			status:   judge.StatusInternalError,
			category: model.CategoryInternalError,
			message:  "box failed",
		},
		{
			name:     "exec format error",
			result:   judge.Result{Status: judge.StatusExecFormatError},
			tc:       single,
			status:   judge.StatusExecFormatError,
			category: model.CategoryInternalError,
			message:  "Exec Format Error",
		},
		{
			name:   "accepted with warnings on stderr still passes",
			result: judge.Result{Status: judge.StatusAccepted, Stdout: "42", Stderr: "DeprecationWarning: x"},
			tc:     single,
			passed: true,
			status: judge.StatusAccepted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.result, tt.tc)
			assert.Equal(t, tt.passed, got.Passed)
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.category, got.Category)
			assert.Equal(t, tt.message, got.ErrorMessage)
		})
	}
}

// Compilation wins over every other signal on the same result.
func TestClassify_Precedence(t *testing.T) {
	tc := model.TestCase{ExpectedOutput: "1"}

	got := Classify(judge.Result{
		Status:        judge.StatusTimeLimit,
		CompileOutput: "warning promoted to error",
		Stderr:        "killed",
		Message:       "memory",
	}, tc)
	assert.Equal(t, model.CategoryCompilationError, got.Category)

	got = Classify(judge.Result{Status: judge.StatusTimeLimit, Stderr: "Traceback", Message: "memory"}, tc)
	assert.Equal(t, model.CategoryRuntimeError, got.Category)

	got = Classify(judge.Result{Status: judge.StatusTimeLimit, Message: "memory"}, tc)
	assert.Equal(t, model.CategoryTimeLimitExceeded, got.Category)

	got = Classify(judge.Result{Status: judge.StatusInternalError, Message: "out of memory"}, tc)
	assert.Equal(t, model.CategoryMemoryLimitExceeded, got.Category)
}

func TestClassify_RecordsUsageOnFailure(t *testing.T) {
	got := Classify(judge.Result{
		Status:        judge.StatusCompilationError,
		CompileOutput: "error",
		TimeMs:        340,
		MemoryKb:      9000,
	}, model.TestCase{ExpectedOutput: "x"})
	assert.False(t, got.Passed)
	assert.Equal(t, 340, got.RuntimeMs)
	assert.Equal(t, 9000, got.MemoryKb)
}

func TestSyntheticOutcomes(t *testing.T) {
	tc := model.TestCase{ID: "tc"}

	to := TimedOut(tc)
	assert.False(t, to.Passed)
	assert.Equal(t, model.CategoryTimedOut, to.Category)
	assert.NotEmpty(t, to.ErrorMessage)

	in := InternalFailure(tc, "dial tcp: connection refused")
	assert.False(t, in.Passed)
	assert.Equal(t, judge.StatusInternalError, in.Status)
	assert.Equal(t, model.CategoryInternalError, in.Category)
	assert.Equal(t, "dial tcp: connection refused", in.ErrorMessage)
}
