package services

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

var commandContext = exec.CommandContext

// Runner executes an external command and returns its combined output.
// Implementations must return captured output even on failure so callers can
// classify it (quota markers, diagnostic snippets).
type Runner func(ctx context.Context, timeout time.Duration, name string, args ...string) (string, error)

// RunCommand is the production Runner. A timeout of zero means the command
// may run until it finishes or ctx is cancelled.
func RunCommand(ctx context.Context, timeout time.Duration, name string, args ...string) (string, error) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := commandContext(runCtx, name, args...) //nolint:gosec
	out, err := cmd.CombinedOutput()
	output := string(out)
	if err == nil {
		return output, nil
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return output, Wrap(ErrTimeout, name, strings.Join(args, " "), "command timed out", runCtx.Err())
	}
	return output, Wrap(ErrExternalTool, name, "", Snippet(output, 200), err)
}

// Snippet trims output to at most n characters for inclusion in log lines
// and error messages.
func Snippet(output string, n int) string {
	trimmed := strings.TrimSpace(output)
	if len(trimmed) <= n {
		return trimmed
	}
	return trimmed[:n]
}
