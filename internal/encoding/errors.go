package encoding

import (
	"errors"
	"fmt"
	"strings"
)

// ToolErrorKind classifies an encoder failure.
type ToolErrorKind string

const (
	// ToolNotApplicable means the tool cannot handle this input (missing
	// binary, unsupported JPEG variant). The strategy falls back.
	ToolNotApplicable ToolErrorKind = "ToolNotApplicable"
	// ToolExecutionFailed is a non-zero exit or an unexpected crash.
	ToolExecutionFailed ToolErrorKind = "ToolExecutionFailed"
	// ToolTimedOut means the invocation exceeded its deadline.
	ToolTimedOut ToolErrorKind = "ToolTimedOut"
)

// ToolError is returned by every Encoder on failure.
type ToolError struct {
	Tool   string
	Kind   ToolErrorKind
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Tool, e.Kind)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if tail := stderrTail(e.Stderr); tail != "" {
		fmt.Fprintf(&b, " (%s)", tail)
	}
	return b.String()
}

func (e *ToolError) Unwrap() error { return e.Err }

// KindOf extracts the ToolErrorKind from err, defaulting to ToolExecutionFailed.
func KindOf(err error) ToolErrorKind {
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr.Kind
	}
	return ToolExecutionFailed
}

func newToolError(tool string, kind ToolErrorKind, stderr string, err error) *ToolError {
	return &ToolError{Tool: tool, Kind: kind, Stderr: stderr, Err: err}
}

// stderrTail keeps the last non-empty line, which is where encoders put the cause.
func stderrTail(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			if len(line) > 200 {
				line = line[:200] + "..."
			}
			return line
		}
	}
	return ""
}

// ErrInvalidOutput marks an encoder output that failed validation.
var ErrInvalidOutput = errors.New("invalid output")
