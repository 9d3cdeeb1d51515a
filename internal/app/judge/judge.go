// Package judge is the transport to an external code-execution judge
// speaking the Judge0 batch API.
package judge

import (
	"errors"
	"fmt"
)

// Status is the judge's numeric verdict for a single execution.
type Status int

const (
	StatusUnknown          Status = 0
	StatusInQueue          Status = 1
	StatusProcessing       Status = 2
	StatusAccepted         Status = 3
	StatusWrongAnswer      Status = 4
	StatusTimeLimit        Status = 5
	StatusCompilationError Status = 6
	StatusRuntimeSIGSEGV   Status = 7
	StatusRuntimeSIGXFSZ   Status = 8
	StatusRuntimeSIGFPE    Status = 9
	StatusRuntimeSIGABRT   Status = 10
	StatusRuntimeNZEC      Status = 11
	StatusRuntimeOther     Status = 12
	StatusInternalError    Status = 13
	StatusExecFormatError  Status = 14
)

// IsFinished reports whether the judge is done with the execution.
func (s Status) IsFinished() bool {
	return s >= StatusAccepted
}

func (s Status) IsRuntimeError() bool {
	return s >= StatusRuntimeSIGSEGV && s <= StatusRuntimeOther
}

func (s Status) String() string {
	switch {
	case s == StatusInQueue:
		return "In Queue"
	case s == StatusProcessing:
		return "Processing"
	case s == StatusAccepted:
		return "Accepted"
	case s == StatusWrongAnswer:
		return "Wrong Answer"
	case s == StatusTimeLimit:
		return "Time Limit Exceeded"
	case s == StatusCompilationError:
		return "Compilation Error"
	case s.IsRuntimeError():
		return "Runtime Error"
	case s == StatusInternalError:
		return "Internal Error"
	case s == StatusExecFormatError:
		return "Exec Format Error"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Minimum limits the judge accepts.
const (
	MinCPUTimeLimitSeconds = 1.0
	MinMemoryLimitKb       = 2048
)

var (
	ErrBatchSizeMismatch = errors.New("judge returned a different number of tokens than requested")
	ErrEmptyBatch        = errors.New("empty judge batch")
)

// ExecutionRequest is one program run against one stdin.
// ExpectedOutput is nil when the judge must not compare output itself.
type ExecutionRequest struct {
	SourceCode     string
	LanguageID     int
	Stdin          string
	ExpectedOutput *string
	TimeLimitMs    int
	MemoryLimitKb  int
}

// Result is the judge's report for a single token. Stdout, Stderr,
// CompileOutput and Message are already decoded.
type Result struct {
	Token         string
	Status        Status
	Description   string
	Stdout        string
	Stderr        string
	CompileOutput string
	Message       string
	TimeMs        int
	MemoryKb      int
}

// APIError is returned for a non-2xx judge response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("judge responded %d: %s", e.StatusCode, e.Body)
}
