package tools

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ExecutionError represents an external tool that exited unsuccessfully or
// did not finish in time.
type ExecutionError struct {
	// Tool is the name of the executable.
	Tool string
	// ExitCode is the tool's exit status. It is -1 for timeouts.
	ExitCode int
	// TimedOut indicates the tool was killed because its deadline passed.
	TimedOut bool
	// Summary optionally replaces the generic message with a single line
	// extracted from the tool's output by a tool specific parser.
	Summary string
	Stdout  string
	Stderr  string
}

func (e *ExecutionError) Error() string {
	if e.Summary != "" {
		return fmt.Sprintf("%s failed: %s", e.Tool, e.Summary)
	}
	if e.TimedOut {
		return fmt.Sprintf("%s timed out", e.Tool)
	}
	if line := lastLine(e.Stderr); line != "" {
		return fmt.Sprintf("%s exited with status %d: %s", e.Tool, e.ExitCode, line)
	}
	return fmt.Sprintf("%s exited with status %d", e.Tool, e.ExitCode)
}

// Output returns everything the tool wrote.
func (e *ExecutionError) Output() string {
	return strings.TrimSpace(e.Stdout + "\n" + e.Stderr)
}

// AsExecutionError returns the *ExecutionError underlying err, if any.
func AsExecutionError(err error) (*ExecutionError, bool) {
	e, ok := errors.Cause(err).(*ExecutionError)
	return e, ok
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
