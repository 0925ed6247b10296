package deployment

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/golang/glog"
	"github.com/krancour/secureimage/agent/internal/signing"
	"github.com/krancour/secureimage/internal/secrets"
	"github.com/krancour/secureimage/internal/tools"
	"github.com/krancour/secureimage/sdk"
	"github.com/pkg/errors"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/androidpublisher/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	// PlayServiceAccountKey is the secret holding a Google service account
	// key in JSON form.
	PlayServiceAccountKey = "playServiceAccount"

	defaultPlayTrack = "alpha"
	editExpiry       = 10 * time.Minute
	apkMimeType      = "application/vnd.android.package-archive"
	playTarget       = "Google Play"
)

type playPublisher struct {
	account  string
	track    string
	endpoint string
	runner   tools.Runner
	secrets  secrets.Store
}

func newPlayPublisher(
	config Config,
	runner tools.Runner,
	secretStore secrets.Store,
) publisher {
	track := config.PlayTrack
	if track == "" {
		track = defaultPlayTrack
	}
	return &playPublisher{
		account:  config.PlayAccount,
		track:    track,
		endpoint: config.PlayEndpoint,
		runner:   runner,
		secrets:  secretStore,
	}
}

// Publish uploads the APK within a single edit. The edit is only committed
// once every step has succeeded and is otherwise deleted.
func (p *playPublisher) Publish(
	ctx context.Context,
	_ sdk.DeploymentRequest,
	artifactPath string,
) error {
	packageName, err := signing.BundleID(ctx, p.runner, artifactPath)
	if err != nil {
		return err
	}
	svc, err := p.service(ctx)
	if err != nil {
		return err
	}

	edit, err := svc.Edits.Insert(
		packageName,
		&androidpublisher.AppEdit{
			ExpiryTimeSeconds: strconv.Itoa(int(editExpiry.Seconds())),
		},
	).Context(ctx).Do()
	if err != nil {
		return playError("error starting edit", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		// ctx may already be done.
		if err := svc.Edits.Delete(packageName, edit.Id).
			Context(context.Background()).Do(); err != nil {
			glog.Warningf("error deleting edit %s of %s: %s", edit.Id, packageName, err)
		}
	}()

	apkFile, err := os.Open(artifactPath)
	if err != nil {
		return errors.Wrapf(err, "error opening %s", artifactPath)
	}
	defer apkFile.Close()
	apk, err := svc.Edits.Apks.Upload(packageName, edit.Id).
		Media(apkFile, googleapi.ContentType(apkMimeType)).
		Context(ctx).Do()
	if err != nil {
		return playError("error uploading APK", err)
	}

	if _, err = svc.Edits.Tracks.Update(
		packageName,
		edit.Id,
		p.track,
		&androidpublisher.Track{
			Track: p.track,
			Releases: []*androidpublisher.TrackRelease{
				{
					Name:         "CICD release",
					VersionCodes: googleapi.Int64s{apk.VersionCode},
					Status:       "completed",
				},
			},
		},
	).Context(ctx).Do(); err != nil {
		return playError("error assigning track "+p.track, err)
	}

	if _, err = svc.Edits.Commit(packageName, edit.Id).Context(ctx).Do(); err != nil {
		return playError("error committing edit", err)
	}
	committed = true
	glog.Infof(
		"released version %d of %s to track %s",
		apk.VersionCode,
		packageName,
		p.track,
	)
	return nil
}

func (p *playPublisher) service(
	ctx context.Context,
) (*androidpublisher.Service, error) {
	key, err := credential(ctx, p.secrets, PlayServiceAccountKey, p.account)
	if err != nil {
		return nil, err
	}
	jwtConfig, err := google.JWTConfigFromJSON(
		[]byte(key),
		androidpublisher.AndroidpublisherScope,
	)
	if err != nil {
		return nil, &signing.Error{
			Kind:   signing.ErrKindCredentialLookupFailed,
			Reason: "Invalid service account key for account " + p.account,
			Err:    err,
		}
	}
	opts := []option.ClientOption{
		option.WithHTTPClient(jwtConfig.Client(ctx)),
	}
	if p.endpoint != "" {
		opts = append(opts, option.WithEndpoint(p.endpoint))
	}
	svc, err := androidpublisher.NewService(ctx, opts...)
	return svc, errors.Wrap(err, "error creating Google Play client")
}

func playError(msg string, err error) error {
	if apiErr, ok := err.(*googleapi.Error); ok {
		reason := apiErr.Message
		if reason == "" {
			reason = msg
		}
		return &UpstreamPublishError{
			Target:     playTarget,
			Reason:     reason,
			StatusCode: apiErr.Code,
		}
	}
	return errors.Wrap(err, msg)
}
