package deployment

import (
	"context"
	"path"

	"github.com/golang/glog"
	"github.com/krancour/secureimage/agent/internal/signing"
	"github.com/krancour/secureimage/agent/internal/workspace"
	"github.com/krancour/secureimage/internal/artifacts"
	"github.com/krancour/secureimage/internal/secrets"
	"github.com/krancour/secureimage/internal/tools"
	"github.com/krancour/secureimage/sdk"
	"github.com/pkg/errors"
)

// Config represents configuration for the publishers.
type Config struct {
	// PlayAccount is the secret store account holding the Google Play service
	// account key.
	PlayAccount string
	// PlayTrack is the Google Play track releases are assigned to.
	PlayTrack string
	// PlayEndpoint overrides the Google Play Developer API endpoint.
	PlayEndpoint string
	// AppStoreAccount is the secret store account holding App Store Connect
	// credentials.
	AppStoreAccount string
	// MDMAccount is the secret store account holding MDM API credentials.
	MDMAccount string
	// MDMHost is the base address of the MDM REST API.
	MDMHost string
	// IgnoreMDMCertWarnings disables TLS verification of the MDM host.
	IgnoreMDMCertWarnings bool
}

// Dispatcher pushes signed artifacts to the distribution channel a
// deployment request names.
type Dispatcher interface {
	Deploy(ctx context.Context, req sdk.DeploymentRequest) error
}

// publisher pushes a single, locally available artifact to one channel.
type publisher interface {
	Publish(
		ctx context.Context,
		req sdk.DeploymentRequest,
		artifactPath string,
	) error
}

type dispatcher struct {
	artifacts  artifacts.Store
	workspaces *workspace.Manager
	play       publisher
	appStore   publisher
	mdm        publisher
}

// NewDispatcher returns a Dispatcher that reads credentials for every
// channel from the specified secret store.
func NewDispatcher(
	config Config,
	artifactStore artifacts.Store,
	workspaces *workspace.Manager,
	runner tools.Runner,
	secretStore secrets.Store,
) Dispatcher {
	return &dispatcher{
		artifacts:  artifactStore,
		workspaces: workspaces,
		play:       newPlayPublisher(config, runner, secretStore),
		appStore:   newAppStoreUploader(config, runner, secretStore),
		mdm:        newMDMPublisher(config, secretStore),
	}
}

func (d *dispatcher) Deploy(
	ctx context.Context,
	req sdk.DeploymentRequest,
) (err error) {
	pub, err := d.publisherFor(req)
	if err != nil {
		return err
	}

	ws, err := d.workspaces.Create()
	if err != nil {
		return err
	}
	defer func() {
		ws.Release(err != nil)
	}()

	artifactPath := ws.Path(path.Base(req.OriginalFileName))
	if err = artifacts.GetFile(
		ctx,
		d.artifacts,
		req.OriginalFileName,
		artifactPath,
	); err != nil {
		return errors.Wrapf(
			err,
			"error downloading %s for job %q",
			req.OriginalFileName,
			req.JobID,
		)
	}

	if err = pub.Publish(ctx, req, artifactPath); err != nil {
		glog.Errorf("error deploying job %q: %s", req.JobID, err)
		return err
	}
	glog.Infof(
		"job %q deployed %s to %s",
		req.JobID,
		req.OriginalFileName,
		req.DeploymentPlatform,
	)
	return nil
}

func (d *dispatcher) publisherFor(
	req sdk.DeploymentRequest,
) (publisher, error) {
	switch {
	case req.DeploymentPlatform == sdk.DeploymentPlatformEnterprise:
		return d.mdm, nil
	case req.DeploymentPlatform == sdk.DeploymentPlatformPublic &&
		req.Platform == sdk.PlatformAndroid:
		return d.play, nil
	case req.DeploymentPlatform == sdk.DeploymentPlatformPublic &&
		req.Platform == sdk.PlatformIOS:
		return d.appStore, nil
	}
	return nil, &signing.Error{
		Kind: signing.ErrKindUnsupportedPlatform,
		Reason: "Cannot deploy platform " + string(req.Platform) + " to " +
			string(req.DeploymentPlatform),
	}
}

func credential(
	ctx context.Context,
	secretStore secrets.Store,
	key string,
	account string,
) (string, error) {
	value, err := secretStore.Get(ctx, key, account)
	if err != nil {
		return "", &signing.Error{
			Kind:   signing.ErrKindCredentialLookupFailed,
			Reason: "Unable to read " + key + " of account " + account,
			Err:    err,
		}
	}
	return value, nil
}
