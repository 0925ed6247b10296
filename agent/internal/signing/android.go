package signing

import (
	"context"
	"regexp"
	"strings"

	"github.com/krancour/secureimage/agent/internal/workspace"
	"github.com/krancour/secureimage/internal/tools"
)

var packageNameRegex = regexp.MustCompile(`package: name='([^']+)'`)

// BundleID returns the package name of an APK as reported by aapt.
func BundleID(
	ctx context.Context,
	runner tools.Runner,
	apkPath string,
) (string, error) {
	res, err := runner.Run(
		ctx,
		tools.Command{
			Name: "aapt",
			Args: []string{"dump", "badging", apkPath},
		},
	)
	if err != nil {
		return "", err
	}
	matches := packageNameRegex.FindStringSubmatch(res.Stdout)
	if len(matches) != 2 {
		return "", &Error{
			Kind:   ErrKindCredentialLookupFailed,
			Reason: "Unable to determine the package name of the APK",
		}
	}
	return matches[1], nil
}

// signAPK signs an APK with the keystore belonging to its package and
// verifies the result.
func (d *dispatcher) signAPK(
	ctx context.Context,
	ws *workspace.Workspace,
	inputPath string,
) (string, error) {
	bundleID, err := BundleID(ctx, d.runner, inputPath)
	if err != nil {
		return "", err
	}
	ks, err := d.keystores.Get(ctx, bundleID)
	if err != nil {
		return "", &Error{
			Kind:   ErrKindCredentialLookupFailed,
			Reason: "Unable to obtain a keystore for " + bundleID,
			Err:    err,
		}
	}

	deliveryPath := ws.Path("delivery.apk")
	if err = d.runApksigner(
		ctx,
		tools.Command{
			Name: "apksigner",
			Args: []string{
				"sign",
				"--ks", ks.Path,
				"--ks-key-alias", ks.Alias,
				"--ks-pass", "env:KS_PASS",
				"--key-pass", "env:KEY_PASS",
				"--out", deliveryPath,
				inputPath,
			},
			Env: []string{
				"KS_PASS=" + ks.StorePassword,
				"KEY_PASS=" + ks.KeyPassword,
			},
		},
	); err != nil {
		return "", err
	}
	if err = d.runApksigner(
		ctx,
		tools.Command{
			Name: "apksigner",
			Args: []string{"verify", deliveryPath},
		},
	); err != nil {
		return "", err
	}
	return deliveryPath, nil
}

// runApksigner treats any reported exception as a failure, even when apksigner
// exits zero.
func (d *dispatcher) runApksigner(ctx context.Context, cmd tools.Command) error {
	res, err := d.runner.Run(ctx, cmd)
	if err != nil {
		if execErr, ok := tools.AsExecutionError(err); ok && !execErr.TimedOut {
			execErr.Summary = ParseApksignerError(execErr.Output())
		}
		return err
	}
	if output := res.Combined(); strings.Contains(output, "Exception") {
		return &tools.ExecutionError{
			Tool:    cmd.Name,
			Summary: ParseApksignerError(output),
			Stdout:  res.Stdout,
			Stderr:  res.Stderr,
		}
	}
	return nil
}
