// Package grading turns one judge result for one test case into a pass/fail
// outcome with at most one error category. It performs no I/O.
package grading

import (
	"slices"
	"strings"

	"codequest/internal/app/judge"
	"codequest/internal/domain/model"
)

// Outcome is the classified result of a single test case.
type Outcome struct {
	Passed       bool
	Status       judge.Status
	Category     model.ErrorCategory
	ErrorMessage string
	ActualOutput string
	RuntimeMs    int
	MemoryKb     int
}

// Interpreters report syntax problems on stderr with a runtime status.
var syntaxSignals = []string{"SyntaxError", "IndentationError", "ParseError"}

// Classify decides pass/fail for result against tc.
//
// Error categories are checked in a fixed order and only the first match is
// kept: compilation, runtime, time limit, memory limit, internal.
func Classify(result judge.Result, tc model.TestCase) Outcome {
	actual := strings.TrimSpace(result.Stdout)
	valid := tc.ValidOutputs()
	matches := slices.Contains(valid, actual)

	status := result.Status
	// Multi-answer cases run without expected_output, so the judge reports
	// Accepted for any clean exit.
	if tc.IsMultiAnswer() && status == judge.StatusAccepted && !matches {
		status = judge.StatusWrongAnswer
	}

	ranToCompletion := status == judge.StatusAccepted || status == judge.StatusWrongAnswer
	out := Outcome{
		Passed:       ranToCompletion && matches,
		Status:       status,
		ActualOutput: actual,
		RuntimeMs:    result.TimeMs,
		MemoryKb:     result.MemoryKb,
	}
	out.Category, out.ErrorMessage = categorize(result, status)
	if out.Passed {
		out.Category, out.ErrorMessage = model.CategoryNone, ""
	}
	return out
}

func categorize(r judge.Result, status judge.Status) (model.ErrorCategory, string) {
	stderr := strings.TrimSpace(r.Stderr)
	compileOut := strings.TrimSpace(r.CompileOutput)
	message := strings.TrimSpace(r.Message)

	switch {
	case status == judge.StatusCompilationError:
		return model.CategoryCompilationError, firstNonEmpty(compileOut, stderr, message, status.String())
	case compileOut != "":
		return model.CategoryCompilationError, compileOut
	case stderr != "" && hasSyntaxSignal(stderr):
		return model.CategoryCompilationError, stderr
	case stderr != "":
		return model.CategoryRuntimeError, stderr
	case status.IsRuntimeError():
		return model.CategoryRuntimeError, firstNonEmpty(message, status.String())
	case status == judge.StatusTimeLimit:
		return model.CategoryTimeLimitExceeded, firstNonEmpty(message, status.String())
	case mentionsMemory(message):
		return model.CategoryMemoryLimitExceeded, message
	case status == judge.StatusInternalError || status == judge.StatusExecFormatError:
		return model.CategoryInternalError, firstNonEmpty(message, status.String())
	}
	return model.CategoryNone, ""
}

// TimedOut is recorded for a test case the judge did not finish in time.
func TimedOut(tc model.TestCase) Outcome {
	return Outcome{
		Status:       judge.StatusUnknown,
		Category:     model.CategoryTimedOut,
		ErrorMessage: "judge did not return a result before the polling budget ran out",
	}
}

// InternalFailure is recorded when the pipeline itself could not obtain a
// result for the test case.
func InternalFailure(tc model.TestCase, msg string) Outcome {
	return Outcome{
		Status:       judge.StatusInternalError,
		Category:     model.CategoryInternalError,
		ErrorMessage: msg,
	}
}

func hasSyntaxSignal(stderr string) bool {
	for _, sig := range syntaxSignals {
		if strings.Contains(stderr, sig) {
			return true
		}
	}
	return false
}

func mentionsMemory(message string) bool {
	return strings.Contains(strings.ToLower(message), "memory")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
