package tools

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// Command describes a single invocation of an external tool.
type Command struct {
	// Name is the executable to run.
	Name string
	// Args are the arguments passed to the executable.
	Args []string
	// Dir is the working directory. The current directory is used if empty.
	Dir string
	// Env holds additional KEY=VALUE pairs appended to the agent's own
	// environment.
	Env []string
}

func (c Command) String() string {
	return strings.TrimSpace(
		strings.Join(append([]string{c.Name}, c.Args...), " "),
	)
}

// Result holds the captured output of a tool invocation.
type Result struct {
	Stdout string
	Stderr string
}

// Combined returns stdout followed by stderr.
func (r Result) Combined() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// Runner abstracts invocation of external tools so that they may be faked in
// tests.
type Runner interface {
	// Run executes the command and returns its output. A non-zero exit status
	// or a timeout is reported as an *ExecutionError that still carries the
	// captured output.
	Run(ctx context.Context, cmd Command) (Result, error)
}

type execRunner struct {
	timeout time.Duration
}

// NewRunner returns a Runner backed by os/exec. Every invocation is bounded by
// timeout unless timeout is zero.
func NewRunner(timeout time.Duration) Runner {
	return &execRunner{
		timeout: timeout,
	}
}

func (e *execRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...) // nolint: gosec
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	c.Stdout = stdout
	c.Stderr = stderr

	glog.V(2).Infof("running %s", cmd)
	err := c.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	glog.V(3).Infof("%s stdout:\n%s", cmd.Name, res.Stdout)
	glog.V(3).Infof("%s stderr:\n%s", cmd.Name, res.Stderr)
	if err == nil {
		return res, nil
	}

	execErr := &ExecutionError{
		Tool:   cmd.Name,
		Stdout: res.Stdout,
		Stderr: res.Stderr,
	}
	if ctx.Err() == context.DeadlineExceeded {
		execErr.TimedOut = true
		execErr.ExitCode = -1
		return res, execErr
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		execErr.ExitCode = exitErr.ExitCode()
		return res, execErr
	}
	return res, errors.Wrapf(err, "error running %s", cmd.Name)
}
