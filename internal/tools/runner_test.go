package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExecRunner(t *testing.T) {
	testCases := []struct {
		name       string
		timeout    time.Duration
		cmd        Command
		assertions func(*testing.T, Result, error)
	}{
		{
			name: "success",
			cmd: Command{
				Name: "sh",
				Args: []string{"-c", "echo out; echo err 1>&2"},
			},
			assertions: func(t *testing.T, res Result, err error) {
				require.NoError(t, err)
				require.Equal(t, "out\n", res.Stdout)
				require.Equal(t, "err\n", res.Stderr)
				require.Equal(t, "out\n\nerr\n", res.Combined())
			},
		},
		{
			name: "non-zero exit",
			cmd: Command{
				Name: "sh",
				Args: []string{"-c", "echo boom 1>&2; exit 3"},
			},
			assertions: func(t *testing.T, res Result, err error) {
				require.Error(t, err)
				execErr, ok := AsExecutionError(err)
				require.True(t, ok)
				require.Equal(t, 3, execErr.ExitCode)
				require.False(t, execErr.TimedOut)
				require.Equal(t, "sh exited with status 3: boom", execErr.Error())
				require.Equal(t, "boom\n", res.Stderr)
			},
		},
		{
			name:    "timeout",
			timeout: 100 * time.Millisecond,
			cmd: Command{
				Name: "sleep",
				Args: []string{"5"},
			},
			assertions: func(t *testing.T, _ Result, err error) {
				require.Error(t, err)
				execErr, ok := AsExecutionError(err)
				require.True(t, ok)
				require.True(t, execErr.TimedOut)
				require.Contains(t, execErr.Error(), "timed out")
			},
		},
		{
			name: "environment and working directory",
			cmd: Command{
				Name: "sh",
				Args: []string{"-c", "echo $SECUREIMAGE_TEST_VAR; pwd"},
				Dir:  "/",
				Env:  []string{"SECUREIMAGE_TEST_VAR=hello"},
			},
			assertions: func(t *testing.T, res Result, err error) {
				require.NoError(t, err)
				require.Equal(t, "hello\n/\n", res.Stdout)
			},
		},
		{
			name: "missing executable",
			cmd: Command{
				Name: "secureimage-no-such-tool",
			},
			assertions: func(t *testing.T, _ Result, err error) {
				require.Error(t, err)
				_, ok := AsExecutionError(err)
				require.False(t, ok)
			},
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			res, err := NewRunner(testCase.timeout).Run(
				context.Background(),
				testCase.cmd,
			)
			testCase.assertions(t, res, err)
		})
	}
}

func TestExecutionErrorSummary(t *testing.T) {
	err := &ExecutionError{
		Tool:     "xcodebuild",
		ExitCode: 70,
		Summary:  "no such file",
	}
	require.Equal(t, "xcodebuild failed: no such file", err.Error())
}
