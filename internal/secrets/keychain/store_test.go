package keychain

import (
	"context"
	"testing"

	"github.com/krancour/secureimage/internal/testsupport"
	"github.com/krancour/secureimage/internal/tools"
	"github.com/krancour/secureimage/sdk/meta"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// fakeSecurity simulates the subset of the security tool used by the store.
func fakeSecurity(items map[string]string) testsupport.ToolHandler {
	return func(cmd tools.Command) (tools.Result, error) {
		args := map[string]string{}
		for i := 1; i < len(cmd.Args)-1; i++ {
			args[cmd.Args[i]] = cmd.Args[i+1]
		}
		id := args["-a"] + "/" + args["-s"]
		switch cmd.Args[0] {
		case "find-generic-password":
			value, ok := items[id]
			if !ok {
				return tools.Result{}, &tools.ExecutionError{
					Tool:     "security",
					ExitCode: 44,
					Stderr: "security: SecKeychainSearchCopyNext: The specified " +
						"item could not be found in the keychain.",
				}
			}
			return tools.Result{Stdout: value + "\n"}, nil
		case "add-generic-password":
			items[id] = args["-w"]
			return tools.Result{}, nil
		}
		return tools.Result{}, errors.New("unexpected security subcommand")
	}
}

func TestStore(t *testing.T) {
	items := map[string]string{}
	runner := testsupport.NewToolRunner().Handle("security", fakeSecurity(items))
	s := NewStore(runner)
	ctx := context.Background()

	_, err := s.Get(ctx, "storePassword", "ca.bc.gov.myapp")
	require.Error(t, err)
	require.IsType(t, &meta.ErrNotFound{}, err)

	require.NoError(t, s.Put(ctx, "storePassword", "ca.bc.gov.myapp", "s3cr3t"))
	value, err := s.Get(ctx, "storePassword", "ca.bc.gov.myapp")
	require.NoError(t, err)
	require.Equal(t, "s3cr3t", value)

	calls := runner.CallsTo("security")
	require.Len(t, calls, 3)
	require.Equal(t, "add-generic-password", calls[1].Args[0])
	require.Contains(t, calls[1].Args, "-U")
}

func TestStoreToolFailure(t *testing.T) {
	runner := testsupport.NewToolRunner().Handle(
		"security",
		func(tools.Command) (tools.Result, error) {
			return tools.Result{}, &tools.ExecutionError{
				Tool:     "security",
				ExitCode: 51,
			}
		},
	)
	_, err := NewStore(runner).Get(context.Background(), "alias", "foo")
	require.Error(t, err)
	_, notFound := errors.Cause(err).(*meta.ErrNotFound)
	require.False(t, notFound)
}
