package host

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// defaultExecTimeout is the default timeout for external tools.
const defaultExecTimeout = 30 * time.Second

// execCommand is swapped out in tests.
var execCommand = exec.CommandContext

// execWithTimeout runs a command with a context deadline.
// If the provided context has no deadline, a 30-second timeout is applied.
// Returns combined stdout+stderr and any error.
func execWithTimeout(ctx context.Context, name string, args ...string) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultExecTimeout)
		defer cancel()
	}

	cmd := execCommand(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return string(out), fmt.Errorf("%s: command timed out", name)
	}
	return string(out), err
}

// sanitizeExecError returns a short error message without the tool's
// output, suitable for logs that may be shipped off the device.
func sanitizeExecError(operation string, err error) string {
	if err == nil {
		return ""
	}
	if strings.Contains(err.Error(), "timed out") || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("%s: command timed out", operation)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Sprintf("%s failed (exit code %d)", operation, exitErr.ExitCode())
	}
	return fmt.Sprintf("%s failed", operation)
}
