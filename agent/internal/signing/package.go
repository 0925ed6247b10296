package signing

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/golang/glog"
	"github.com/krancour/secureimage/agent/internal/workspace"
	"github.com/krancour/secureimage/internal/file"
	"github.com/krancour/secureimage/internal/tools"
	"github.com/pkg/errors"
)

const entitlementsFileName = "archived-expanded-entitlements.xcent"

// signPackage re-signs the application bundle inside an .ipa with the
// installed identity that best matches its current signer.
func (d *dispatcher) signPackage(
	ctx context.Context,
	ws *workspace.Workspace,
	inputPath string,
) (string, error) {
	extractDir := ws.Path("package")
	if err := workspace.Extract(inputPath, extractDir); err != nil {
		return "", &Error{
			Kind:   ErrKindArchiveNotFound,
			Reason: "Unable to extract the uploaded package",
			Err:    err,
		}
	}
	apps, err := filepath.Glob(filepath.Join(extractDir, "Payload", "*.app"))
	if err != nil || len(apps) == 0 {
		return "", &Error{
			Kind:   ErrKindArchiveNotFound,
			Reason: "Unable to find an application bundle in package",
			Err:    err,
		}
	}
	app := apps[0]

	identity, err := d.findIdentity(ctx, app)
	if err != nil {
		return "", err
	}
	glog.V(1).Infof("signing %s as %q", filepath.Base(app), identity)

	if err = os.RemoveAll(filepath.Join(app, "_CodeSignature")); err != nil {
		return "", errors.Wrapf(err, "error removing signature of %s", app)
	}
	args := []string{"-f", "-s", identity}
	if entitlements := filepath.Join(app, entitlementsFileName); file.Exists(
		entitlements,
	) {
		args = append(args, "--entitlements", entitlements)
	}
	if _, err = d.runner.Run(
		ctx,
		tools.Command{
			Name: "codesign",
			Args: append(args, app),
		},
	); err != nil {
		return "", err
	}

	entries, err := ioutil.ReadDir(extractDir)
	if err != nil {
		return "", errors.Wrapf(err, "error reading %s", extractDir)
	}
	items := make([]string, len(entries))
	for i, entry := range entries {
		items[i] = entry.Name()
	}
	deliveryPath := ws.Path("delivery.ipa")
	if err = workspace.Pack(extractDir, items, deliveryPath); err != nil {
		return "", &Error{
			Kind:   ErrKindPackagingFailed,
			Reason: "Unable to repackage the signed application",
			Err:    err,
		}
	}
	return deliveryPath, nil
}

func (d *dispatcher) findIdentity(
	ctx context.Context,
	app string,
) (string, error) {
	// codesign writes its display output to stderr
	res, err := d.runner.Run(
		ctx,
		tools.Command{
			Name: "codesign",
			Args: []string{"-dvv", app},
		},
	)
	if err != nil {
		// An unsigned bundle is not an error. It just can't be matched.
		if _, ok := tools.AsExecutionError(err); !ok {
			return "", err
		}
	}
	signer := parseAuthority(res.Combined())

	res, err = d.runner.Run(
		ctx,
		tools.Command{
			Name: "security",
			Args: []string{"find-identity", "-v", "-p", "codesigning"},
		},
	)
	if err != nil {
		return "", err
	}
	identity, ok := matchIdentity(signer, parseIdentities(res.Stdout))
	if !ok {
		return "", &Error{
			Kind:   ErrKindSigningIdentityNotFound,
			Reason: "No installed signing identity matches " + signer,
		}
	}
	return identity, nil
}
