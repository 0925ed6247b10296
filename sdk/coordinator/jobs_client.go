package coordinator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/krancour/secureimage/internal/restmachinery"
	"github.com/krancour/secureimage/sdk"
	"github.com/pkg/errors"
)

// JobsClient is the specialized client for managing signing and deployment
// Jobs with the Coordinator.
type JobsClient interface {
	// Sign uploads an artifact and requests that it be signed for the specified
	// platform.
	Sign(
		ctx context.Context,
		fileName string,
		file io.Reader,
		platform string,
	) (sdk.JobReference, error)
	// Deploy requests that the artifact produced by a Completed signing Job be
	// pushed to the specified distribution channel.
	Deploy(
		ctx context.Context,
		jobID string,
		deploymentPlatform string,
		projectID string,
	) (sdk.JobReference, error)
	// GetStatus returns the client-facing view of a Job's progress.
	GetStatus(ctx context.Context, jobID string) (sdk.JobStatusReport, error)
	// UpdateStatus reports a Job's terminal outcome. This is used by Agents.
	UpdateStatus(
		ctx context.Context,
		jobID string,
		update sdk.JobStatusUpdate,
	) error
	// Download writes a Completed Job's delivery artifact to w.
	Download(ctx context.Context, jobID, token string, w io.Writer) error
}

type jobsClient struct {
	*restmachinery.BaseClient
}

// NewJobsClient returns a specialized client for managing Jobs.
func NewJobsClient(
	apiAddress string,
	apiToken string,
	allowInsecure bool,
) JobsClient {
	return &jobsClient{
		BaseClient: restmachinery.NewBaseClient(
			apiAddress,
			apiToken,
			allowInsecure,
		),
	}
}

func (j *jobsClient) Sign(
	ctx context.Context,
	fileName string,
	file io.Reader,
	platform string,
) (sdk.JobReference, error) {
	jobRef := sdk.JobReference{}
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", filepath.Base(fileName))
	if err != nil {
		return jobRef, errors.Wrap(err, "error creating multipart form")
	}
	if _, err = io.Copy(part, file); err != nil {
		return jobRef, errors.Wrapf(err, "error reading %s", fileName)
	}
	if err = mw.Close(); err != nil {
		return jobRef, errors.Wrap(err, "error closing multipart form")
	}
	return jobRef, j.ExecuteRequest(
		ctx,
		restmachinery.OutboundRequest{
			Method: http.MethodPost,
			Path:   "v1/sign",
			QueryParams: map[string]string{
				"platform": platform,
			},
			Headers: map[string]string{
				"Content-Type": mw.FormDataContentType(),
			},
			ReqBodyObj:  body.Bytes(),
			SuccessCode: http.StatusAccepted,
			RespObj:     &jobRef,
		},
	)
}

func (j *jobsClient) Deploy(
	ctx context.Context,
	jobID string,
	deploymentPlatform string,
	projectID string,
) (sdk.JobReference, error) {
	jobRef := sdk.JobReference{}
	queryParams := map[string]string{
		"deploymentPlatform": deploymentPlatform,
	}
	if projectID != "" {
		queryParams["projectId"] = projectID
	}
	return jobRef, j.ExecuteRequest(
		ctx,
		restmachinery.OutboundRequest{
			Method:      http.MethodPost,
			Path:        fmt.Sprintf("v1/deploy/%s", jobID),
			QueryParams: queryParams,
			SuccessCode: http.StatusAccepted,
			RespObj:     &jobRef,
		},
	)
}

func (j *jobsClient) GetStatus(
	ctx context.Context,
	jobID string,
) (sdk.JobStatusReport, error) {
	report := sdk.JobStatusReport{}
	return report, j.ExecuteRequest(
		ctx,
		restmachinery.OutboundRequest{
			Method:           http.MethodGet,
			Path:             fmt.Sprintf("v1/job/%s/status", jobID),
			SuccessCode:      http.StatusOK,
			AlsoSuccessCodes: []int{http.StatusAccepted},
			RespObj:          &report,
		},
	)
}

func (j *jobsClient) UpdateStatus(
	ctx context.Context,
	jobID string,
	update sdk.JobStatusUpdate,
) error {
	return j.ExecuteRequest(
		ctx,
		restmachinery.OutboundRequest{
			Method:      http.MethodPut,
			Path:        fmt.Sprintf("v1/job/%s", jobID),
			AuthHeaders: j.BearerTokenAuthHeaders(),
			ReqBodyObj:  update,
			SuccessCode: http.StatusOK,
		},
	)
}

func (j *jobsClient) Download(
	ctx context.Context,
	jobID string,
	token string,
	w io.Writer,
) error {
	// The Coordinator redirects to the artifact store. The redirect is followed
	// by the underlying http.Client.
	resp, err := j.SubmitRequest(
		ctx,
		restmachinery.OutboundRequest{
			Method: http.MethodGet,
			Path:   fmt.Sprintf("v1/delivery/%s", jobID),
			QueryParams: map[string]string{
				"token": token,
			},
			SuccessCode: http.StatusOK,
		},
	)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if _, err = io.Copy(w, resp.Body); err != nil {
		return errors.Wrapf(err, "error downloading delivery for job %q", jobID)
	}
	return nil
}
