package signing

import (
	"context"
	"path"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"github.com/krancour/secureimage/agent/internal/keystores"
	"github.com/krancour/secureimage/agent/internal/workspace"
	"github.com/krancour/secureimage/internal/artifacts"
	"github.com/krancour/secureimage/internal/tools"
	"github.com/krancour/secureimage/sdk"
	"github.com/pkg/errors"
)

// Config represents configuration for the signing strategies.
type Config struct {
	// ExportMethod is the xcodebuild export method written into generated
	// export options, e.g. "enterprise" or "app-store".
	ExportMethod string
	// TeamID is the Apple developer team written into generated export
	// options.
	TeamID string
}

// Delivery identifies the signed artifact produced by a signing job.
type Delivery struct {
	FileName string
	Etag     string
}

// Dispatcher signs artifacts using the strategy appropriate to their platform
// and file type.
type Dispatcher interface {
	Sign(ctx context.Context, req sdk.SigningRequest) (Delivery, error)
}

type strategy func(
	ctx context.Context,
	ws *workspace.Workspace,
	inputPath string,
) (string, error)

type dispatcher struct {
	config     Config
	artifacts  artifacts.Store
	workspaces *workspace.Manager
	runner     tools.Runner
	keystores  keystores.Provider
}

// NewDispatcher returns a Dispatcher that fetches artifacts from, and delivers
// signed artifacts to, the specified store.
func NewDispatcher(
	config Config,
	artifactStore artifacts.Store,
	workspaces *workspace.Manager,
	runner tools.Runner,
	keystoreProvider keystores.Provider,
) Dispatcher {
	return &dispatcher{
		config:     config,
		artifacts:  artifactStore,
		workspaces: workspaces,
		runner:     runner,
		keystores:  keystoreProvider,
	}
}

func (d *dispatcher) Sign(
	ctx context.Context,
	req sdk.SigningRequest,
) (delivery Delivery, err error) {
	sign, err := d.strategyFor(req)
	if err != nil {
		return delivery, err
	}

	ws, err := d.workspaces.Create()
	if err != nil {
		return delivery, err
	}
	defer func() {
		ws.Release(err != nil)
	}()

	inputPath := ws.Path(path.Base(req.OriginalFileName))
	if err = artifacts.GetFile(
		ctx,
		d.artifacts,
		req.OriginalFileName,
		inputPath,
	); err != nil {
		return delivery, errors.Wrapf(
			err,
			"error downloading %s for job %q",
			req.OriginalFileName,
			req.JobID,
		)
	}

	outputPath, err := sign(ctx, ws, inputPath)
	if err != nil {
		glog.Errorf("error signing job %q: %s", req.JobID, err)
		return delivery, err
	}

	delivery.FileName = artifacts.ObjectName(
		req.JobID,
		artifacts.SignedDownloadName(
			strings.TrimSuffix(req.OriginalFileName, path.Ext(req.OriginalFileName)) +
				filepath.Ext(outputPath),
		),
	)
	if delivery.Etag, err = artifacts.PutFile(
		ctx,
		d.artifacts,
		delivery.FileName,
		outputPath,
	); err != nil {
		return delivery, errors.Wrapf(
			err,
			"error uploading delivery for job %q",
			req.JobID,
		)
	}
	glog.Infof("job %q delivered %s", req.JobID, delivery.FileName)
	return delivery, nil
}

func (d *dispatcher) strategyFor(req sdk.SigningRequest) (strategy, error) {
	ext := strings.ToLower(path.Ext(req.OriginalFileName))
	switch {
	case req.Platform == sdk.PlatformIOS && ext == ".zip":
		return d.signArchive, nil
	case req.Platform == sdk.PlatformIOS && ext == ".ipa":
		return d.signPackage, nil
	case req.Platform == sdk.PlatformAndroid && ext == ".apk":
		return d.signAPK, nil
	}
	return nil, &Error{
		Kind:   ErrKindUnsupportedPlatform,
		Reason: "Cannot sign a " + ext + " file for platform " + string(req.Platform),
	}
}
