package encoding

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os/exec"
	"time"
)

var commandContext = exec.CommandContext

// runResult captures what a subprocess left behind.
type runResult struct {
	stderr   string
	notFound bool
	timedOut bool
	err      error
}

// runTool executes binary with args under timeout. Parent cancellation is
// reported as err with timedOut false.
func runTool(ctx context.Context, timeout time.Duration, binary string, args ...string) runResult {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var stderr bytes.Buffer
	cmd := commandContext(runCtx, binary, args...) //nolint:gosec
	cmd.Stderr = &stderr
	err := cmd.Run()
	res := runResult{stderr: stderr.String(), err: err}
	if err == nil {
		return res
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		res.notFound = true
		return res
	}
	if ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		res.timedOut = true
		res.err = context.DeadlineExceeded
	}
	return res
}

// toolError maps a failed run to the adapter's error contract.
func (r runResult) toolError(tool string, missingKind ToolErrorKind) *ToolError {
	switch {
	case r.notFound:
		return newToolError(tool, missingKind, "", r.err)
	case r.timedOut:
		return newToolError(tool, ToolTimedOut, r.stderr, r.err)
	default:
		return newToolError(tool, ToolExecutionFailed, r.stderr, r.err)
	}
}
