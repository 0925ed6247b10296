package core

import (
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/krancour/secureimage/internal/artifacts"
	"github.com/krancour/secureimage/internal/crypto"
	"github.com/krancour/secureimage/sdk"
	"github.com/krancour/secureimage/sdk/meta"
	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
)

// tokenBytes is the number of random bytes in a download token.
const tokenBytes = 8

// Upload represents an artifact submitted for signing.
type Upload struct {
	// FileName is the name the artifact was uploaded under.
	FileName string
	// Reader supplies the artifact's content.
	Reader io.Reader
	// Size is the artifact's size in bytes, or -1 if unknown.
	Size int64
}

// JobsService is the specialized interface for managing signing and
// deployment Jobs. It's decoupled from underlying technology choices (e.g.
// data store, blob storage, transport to the Agent) to keep business logic
// reusable and consistent while the underlying tech stack remains free to
// change.
type JobsService interface {
	// CreateSigningJob stores the uploaded artifact, records a new Job and
	// hands it to the Agent asynchronously.
	CreateSigningJob(
		ctx context.Context,
		upload Upload,
		platform string,
	) (sdk.JobReference, error)
	// CreateDeploymentJob records a new Job that deploys the delivery artifact
	// of an existing Job and hands it to the Agent asynchronously.
	CreateDeploymentJob(
		ctx context.Context,
		sourceJobID string,
		deploymentPlatform string,
		projectID string,
	) (sdk.JobReference, error)
	// UpdateStatus applies an Agent's report of a Job's terminal outcome.
	UpdateStatus(
		ctx context.Context,
		jobID string,
		update sdk.JobStatusUpdate,
	) error
	// Get retrieves a single Job by ID.
	Get(ctx context.Context, jobID string) (Job, error)
	// GetStatus returns the client-facing view of a Job's progress.
	GetStatus(ctx context.Context, jobID string) (sdk.JobStatusReport, error)
	// Download returns a short-lived URL from which a Completed Job's delivery
	// artifact may be downloaded by a holder of the Job's token.
	Download(ctx context.Context, jobID string, token string) (string, error)
	// WaitForDispatches blocks until every Job being handed to the Agent has
	// been handed over (or has failed to be) or the context is done.
	WaitForDispatches(ctx context.Context) error
}

type jobsService struct {
	config        Config
	jobsStore     JobsStore
	projectsStore ProjectsStore
	artifacts     artifacts.Store
	agent         Agent
	now           func() time.Time
	dispatches    sync.WaitGroup
}

// NewJobsService returns a specialized interface for managing Jobs.
func NewJobsService(
	config Config,
	jobsStore JobsStore,
	projectsStore ProjectsStore,
	artifactStore artifacts.Store,
	agent Agent,
) JobsService {
	return &jobsService{
		config:        config,
		jobsStore:     jobsStore,
		projectsStore: projectsStore,
		artifacts:     artifactStore,
		agent:         agent,
		now:           time.Now,
	}
}

func (j *jobsService) CreateSigningJob(
	ctx context.Context,
	upload Upload,
	platformStr string,
) (sdk.JobReference, error) {
	platform, ok := sdk.ParsePlatform(platformStr)
	if !ok {
		return sdk.JobReference{}, &meta.ErrBadRequest{
			Reason: fmt.Sprintf(
				"Platform %q is not supported. Supported platforms are %q and %q.",
				platformStr,
				sdk.PlatformIOS,
				sdk.PlatformAndroid,
			),
		}
	}
	if upload.Reader == nil || strings.TrimSpace(upload.FileName) == "" {
		return sdk.JobReference{}, &meta.ErrBadRequest{
			Reason: "A file is required.",
		}
	}

	job, err := j.newJob()
	if err != nil {
		return sdk.JobReference{}, err
	}
	job.Platform = platform
	job.OriginalFileName = artifacts.ObjectName(job.ID, upload.FileName)
	if job.OriginalFileEtag, err = j.artifacts.Put(
		ctx,
		job.OriginalFileName,
		upload.Reader,
		upload.Size,
	); err != nil {
		return sdk.JobReference{}, errors.Wrapf(
			err,
			"error storing original artifact for job %q",
			job.ID,
		)
	}
	if err = j.jobsStore.Create(ctx, job); err != nil {
		return sdk.JobReference{}, errors.Wrapf(
			err,
			"error storing new job %q",
			job.ID,
		)
	}
	glog.Infof(
		"created %s signing job %q for %q",
		job.Platform,
		job.ID,
		upload.FileName,
	)

	j.dispatch(job.ID, func(ctx context.Context) error {
		return j.agent.Sign(
			ctx,
			sdk.SigningRequest{
				JobID:            job.ID,
				Platform:         job.Platform,
				OriginalFileName: job.OriginalFileName,
				OriginalFileEtag: job.OriginalFileEtag,
			},
		)
	})

	return sdk.JobReference{ID: job.ID}, nil
}

func (j *jobsService) CreateDeploymentJob(
	ctx context.Context,
	sourceJobID string,
	deploymentPlatformStr string,
	projectID string,
) (sdk.JobReference, error) {
	deploymentPlatform, ok := sdk.ParseDeploymentPlatform(deploymentPlatformStr)
	if !ok {
		return sdk.JobReference{}, &meta.ErrBadRequest{
			Reason: fmt.Sprintf(
				"A deployment platform of %q or %q is required.",
				sdk.DeploymentPlatformPublic,
				sdk.DeploymentPlatformEnterprise,
			),
		}
	}
	if deploymentPlatform == sdk.DeploymentPlatformEnterprise && projectID == "" {
		return sdk.JobReference{}, &meta.ErrBadRequest{
			Reason: "A project is required for enterprise deployments.",
		}
	}

	source, err := j.jobsStore.Get(ctx, sourceJobID)
	if err != nil {
		return sdk.JobReference{}, errors.Wrapf(
			err,
			"error retrieving job %q",
			sourceJobID,
		)
	}
	if source.DeliveryFileName == "" {
		return sdk.JobReference{}, &meta.ErrNotFound{
			Type: "Delivery",
			ID:   sourceJobID,
		}
	}

	var organizationGroupID, displayName string
	if projectID != "" {
		project, err := j.projectsStore.GetProject(ctx, projectID)
		if err != nil {
			return sdk.JobReference{}, errors.Wrapf(
				err,
				"error retrieving project %q",
				projectID,
			)
		}
		displayName = project.Name
		if deploymentPlatform == sdk.DeploymentPlatformEnterprise {
			if organizationGroupID, err =
				j.getOrganizationGroupID(ctx, project); err != nil {
				return sdk.JobReference{}, err
			}
		}
	}

	info, err := j.artifacts.Stat(ctx, source.DeliveryFileName)
	if err != nil {
		return sdk.JobReference{}, errors.Wrapf(
			err,
			"error retrieving delivery artifact of job %q",
			sourceJobID,
		)
	}
	if artifacts.IsExpired(info, j.config.ExpirationInDays, j.now()) {
		return sdk.JobReference{}, &meta.ErrExpired{
			Type: "Artifact",
			ID:   source.DeliveryFileName,
		}
	}

	job, err := j.newJob()
	if err != nil {
		return sdk.JobReference{}, err
	}
	job.Platform = source.Platform
	job.DeploymentPlatform = deploymentPlatform
	job.OriginalFileName = source.DeliveryFileName
	job.OriginalFileEtag = source.DeliveryFileEtag
	job.ProjectID = projectID
	job.SourceJobID = source.ID
	if err = j.jobsStore.Create(ctx, job); err != nil {
		return sdk.JobReference{}, errors.Wrapf(
			err,
			"error storing new job %q",
			job.ID,
		)
	}
	glog.Infof(
		"created %s deployment job %q for job %q",
		job.DeploymentPlatform,
		job.ID,
		source.ID,
	)

	j.dispatch(job.ID, func(ctx context.Context) error {
		return j.agent.Deploy(
			ctx,
			sdk.DeploymentRequest{
				JobID:               job.ID,
				Platform:            job.Platform,
				DeploymentPlatform:  job.DeploymentPlatform,
				OriginalFileName:    job.OriginalFileName,
				OriginalFileEtag:    job.OriginalFileEtag,
				ProjectID:           job.ProjectID,
				OrganizationGroupID: organizationGroupID,
				DisplayName:         displayName,
			},
		)
	})

	return sdk.JobReference{ID: job.ID}, nil
}

func (j *jobsService) getOrganizationGroupID(
	ctx context.Context,
	project Project,
) (string, error) {
	if project.DeploymentGroupID == "" {
		return "", &meta.ErrBadRequest{
			Reason: fmt.Sprintf(
				"Project %q is not mapped to a deployment group.",
				project.ID,
			),
		}
	}
	group, err :=
		j.projectsStore.GetDeploymentGroup(ctx, project.DeploymentGroupID)
	if err != nil {
		if _, ok := errors.Cause(err).(*meta.ErrNotFound); ok {
			return "", &meta.ErrBadRequest{
				Reason: fmt.Sprintf(
					"Project %q is mapped to unknown deployment group %q.",
					project.ID,
					project.DeploymentGroupID,
				),
			}
		}
		return "", errors.Wrapf(
			err,
			"error retrieving deployment group %q",
			project.DeploymentGroupID,
		)
	}
	if group.Code == "" {
		return "", &meta.ErrBadRequest{
			Reason: fmt.Sprintf(
				"Deployment group %q has no organization group code.",
				group.ID,
			),
		}
	}
	return group.Code, nil
}

func (j *jobsService) newJob() (Job, error) {
	token, err := crypto.NewToken(tokenBytes)
	if err != nil {
		return Job{}, errors.Wrap(err, "error generating job token")
	}
	now := j.now()
	return Job{
		ID:      uuid.NewV4().String(),
		Token:   token,
		Status:  sdk.JobStatusCreated,
		Created: now,
		Updated: now,
	}, nil
}

// dispatch hands a Job to the Agent in the background. The Job moves to
// Processing once the Agent accepts it, or to Failed if it cannot be handed
// over.
func (j *jobsService) dispatch(
	jobID string,
	fn func(ctx context.Context) error,
) {
	j.dispatches.Add(1)
	go func() {
		defer j.dispatches.Done()
		ctx, cancel :=
			context.WithTimeout(context.Background(), j.config.DispatchTimeout)
		defer cancel()
		transition := JobStatusTransition{
			Status: sdk.JobStatusProcessing,
		}
		if err := fn(ctx); err != nil {
			glog.Errorf("error dispatching job %q to agent: %s", jobID, err)
			transition = JobStatusTransition{
				Status: sdk.JobStatusFailed,
				StatusMessage: fmt.Sprintf(
					"Could not hand job to agent: %s",
					meta.Summarize(err),
				),
			}
		}
		transition.Updated = j.now()
		if err := j.jobsStore.Transition(
			context.Background(),
			jobID,
			transition,
		); err != nil {
			if _, ok := errors.Cause(err).(*meta.ErrConflict); ok {
				// The Agent already reported a terminal outcome.
				glog.V(1).Infof(
					"job %q reached a terminal status before dispatch completed",
					jobID,
				)
				return
			}
			glog.Errorf(
				"error moving job %q to %s: %s",
				jobID,
				transition.Status,
				err,
			)
			return
		}
		glog.Infof("job %q is %s", jobID, transition.Status)
	}()
}

func (j *jobsService) WaitForDispatches(ctx context.Context) error {
	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		j.dispatches.Wait()
	}()
	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *jobsService) UpdateStatus(
	ctx context.Context,
	jobID string,
	update sdk.JobStatusUpdate,
) error {
	transition := JobStatusTransition{
		Status:  update.Status,
		Updated: j.now(),
	}
	switch update.Status {
	case sdk.JobStatusCompleted:
		if update.DeliveryFileName == "" || update.DeliveryFileEtag == "" {
			return &meta.ErrBadRequest{
				Reason: "A delivery file name and etag are required to complete " +
					"a job.",
			}
		}
		transition.DeliveryFileName = update.DeliveryFileName
		transition.DeliveryFileEtag = update.DeliveryFileEtag
	case sdk.JobStatusFailed:
		if update.DeliveryFileName != "" || update.DeliveryFileEtag != "" {
			return &meta.ErrBadRequest{
				Reason: "A failed job may not have a delivery file.",
			}
		}
		transition.StatusMessage = update.StatusMessage
		if transition.StatusMessage == "" {
			transition.StatusMessage = "Job failed."
		}
	default:
		return &meta.ErrBadRequest{
			Reason: fmt.Sprintf(
				"Status %q is not a terminal job status.",
				update.Status,
			),
		}
	}
	if err := j.jobsStore.Transition(ctx, jobID, transition); err != nil {
		return errors.Wrapf(
			err,
			"error updating status of job %q",
			jobID,
		)
	}
	glog.Infof("job %q is %s", jobID, transition.Status)
	return nil
}

func (j *jobsService) Get(ctx context.Context, jobID string) (Job, error) {
	job, err := j.jobsStore.Get(ctx, jobID)
	if err != nil {
		return job, errors.Wrapf(err, "error retrieving job %q", jobID)
	}
	return job, nil
}

func (j *jobsService) GetStatus(
	ctx context.Context,
	jobID string,
) (sdk.JobStatusReport, error) {
	job, err := j.Get(ctx, jobID)
	if err != nil {
		return sdk.JobStatusReport{}, err
	}
	report := sdk.JobStatusReport{
		Status: job.Status,
	}
	switch job.Status {
	case sdk.JobStatusCompleted:
		report.URL = fmt.Sprintf(
			"%s/v1/delivery/%s?token=%s",
			strings.TrimSuffix(j.config.APIURL, "/"),
			job.ID,
			job.Token,
		)
		report.DurationInSeconds = job.Duration().Seconds()
	case sdk.JobStatusFailed:
		report.StatusMessage = job.StatusMessage
		report.DurationInSeconds = job.Duration().Seconds()
	}
	return report, nil
}

func (j *jobsService) Download(
	ctx context.Context,
	jobID string,
	token string,
) (string, error) {
	job, err := j.Get(ctx, jobID)
	if err != nil {
		return "", err
	}
	if token == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(job.Token)) != 1 {
		return "", &meta.ErrBadRequest{
			Reason: "The download token is invalid.",
		}
	}
	if job.Status != sdk.JobStatusCompleted || job.DeliveryFileName == "" {
		return "", &meta.ErrNotFound{
			Type: "Delivery",
			ID:   jobID,
		}
	}
	info, err := j.artifacts.Stat(ctx, job.DeliveryFileName)
	if err != nil {
		return "", errors.Wrapf(
			err,
			"error retrieving delivery artifact of job %q",
			jobID,
		)
	}
	if artifacts.IsExpired(info, j.config.ExpirationInDays, j.now()) {
		return "", &meta.ErrExpired{
			Type: "Artifact",
			ID:   job.DeliveryFileName,
		}
	}
	url, err := j.artifacts.PresignedURL(
		ctx,
		job.DeliveryFileName,
		j.config.DownloadURLTTL,
		path.Base(job.DeliveryFileName),
	)
	if err != nil {
		return "", errors.Wrapf(
			err,
			"error creating download URL for job %q",
			jobID,
		)
	}
	return url, nil
}
