package keychain

import (
	"context"
	"fmt"
	"strings"

	"github.com/krancour/secureimage/internal/secrets"
	"github.com/krancour/secureimage/internal/tools"
	"github.com/krancour/secureimage/sdk/meta"
	"github.com/pkg/errors"
)

// exitCodeItemNotFound is returned by the security tool when no matching
// keychain item exists.
const exitCodeItemNotFound = 44

type store struct {
	runner tools.Runner
}

// NewStore returns a secrets.Store backed by the macOS login keychain. Keys
// map to keychain service names and accounts to keychain account names.
func NewStore(runner tools.Runner) secrets.Store {
	return &store{
		runner: runner,
	}
}

func (s *store) Get(
	ctx context.Context,
	key string,
	account string,
) (string, error) {
	res, err := s.runner.Run(
		ctx,
		tools.Command{
			Name: "security",
			Args: []string{
				"find-generic-password",
				"-s", key,
				"-a", account,
				"-w",
			},
		},
	)
	if err != nil {
		if execErr, ok := tools.AsExecutionError(err); ok &&
			execErr.ExitCode == exitCodeItemNotFound {
			return "", &meta.ErrNotFound{
				Type: "Secret",
				ID:   fmt.Sprintf("%s/%s", account, key),
			}
		}
		return "", errors.Wrapf(
			err,
			"error reading %q for %q from keychain",
			key,
			account,
		)
	}
	return strings.TrimRight(res.Stdout, "\r\n"), nil
}

func (s *store) Put(
	ctx context.Context,
	key string,
	account string,
	value string,
) error {
	if _, err := s.runner.Run(
		ctx,
		tools.Command{
			Name: "security",
			Args: []string{
				"add-generic-password",
				"-U",
				"-s", key,
				"-a", account,
				"-w", value,
			},
		},
	); err != nil {
		return errors.Wrapf(
			err,
			"error writing %q for %q to keychain",
			key,
			account,
		)
	}
	return nil
}
