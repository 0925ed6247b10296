package deployment

import (
	"context"
	"strings"

	"github.com/golang/glog"
	"github.com/krancour/secureimage/internal/secrets"
	"github.com/krancour/secureimage/internal/tools"
	"github.com/krancour/secureimage/sdk"
	"howett.net/plist"
)

const (
	// AppStoreUsernameKey is the secret holding the App Store Connect user.
	AppStoreUsernameKey = "appStoreUsername"
	// AppStorePasswordKey is the secret holding the app-specific password of
	// the App Store Connect user.
	AppStorePasswordKey = "appStorePassword"

	appStoreTarget = "App Store Connect"
)

// altoolOutput is the plist altool writes with --output-format xml.
type altoolOutput struct {
	SuccessMessage string        `plist:"success-message"`
	ProductErrors  []altoolError `plist:"product-errors"`
}

type altoolError struct {
	Message  string         `plist:"message"`
	Code     int            `plist:"code"`
	UserInfo altoolUserInfo `plist:"userInfo"`
}

type altoolUserInfo struct {
	Description   string `plist:"NSLocalizedDescription"`
	FailureReason string `plist:"NSLocalizedFailureReason"`
}

type appStoreUploader struct {
	account string
	runner  tools.Runner
	secrets secrets.Store
}

func newAppStoreUploader(
	config Config,
	runner tools.Runner,
	secretStore secrets.Store,
) publisher {
	return &appStoreUploader{
		account: config.AppStoreAccount,
		runner:  runner,
		secrets: secretStore,
	}
}

// Publish validates the package and, if App Store Connect accepts it,
// uploads it.
func (a *appStoreUploader) Publish(
	ctx context.Context,
	req sdk.DeploymentRequest,
	artifactPath string,
) error {
	username, err := credential(ctx, a.secrets, AppStoreUsernameKey, a.account)
	if err != nil {
		return err
	}
	password, err := credential(ctx, a.secrets, AppStorePasswordKey, a.account)
	if err != nil {
		return err
	}
	for _, action := range []string{"--validate-app", "--upload-app"} {
		if err = a.altool(ctx, action, artifactPath, username, password); err != nil {
			return err
		}
	}
	glog.Infof("uploaded %s for job %q to App Store Connect", artifactPath, req.JobID)
	return nil
}

func (a *appStoreUploader) altool(
	ctx context.Context,
	action string,
	artifactPath string,
	username string,
	password string,
) error {
	res, err := a.runner.Run(
		ctx,
		tools.Command{
			Name: "xcrun",
			Args: []string{
				"altool",
				action,
				"-f", artifactPath,
				"-t", "ios",
				"-u", username,
				"-p", "@env:ALTOOL_PASSWORD",
				"--output-format", "xml",
			},
			Env: []string{"ALTOOL_PASSWORD=" + password},
		},
	)
	if reason, rejected := parseAltoolOutput(res.Stdout); rejected {
		return &UpstreamPublishError{
			Target: appStoreTarget,
			Reason: reason,
		}
	}
	return err
}

// parseAltoolOutput summarizes the product errors altool reported, if any.
// Output that isn't a plist is left to the caller's exit status handling.
func parseAltoolOutput(output string) (string, bool) {
	out := altoolOutput{}
	if _, err := plist.Unmarshal([]byte(output), &out); err != nil {
		return "", false
	}
	if len(out.ProductErrors) == 0 {
		return "", false
	}
	reasons := make([]string, len(out.ProductErrors))
	for i, productErr := range out.ProductErrors {
		reason := productErr.Message
		if productErr.UserInfo.FailureReason != "" {
			reason = productErr.UserInfo.FailureReason
		}
		reasons[i] = strings.TrimSpace(reason)
	}
	return strings.Join(reasons, "; "), true
}
