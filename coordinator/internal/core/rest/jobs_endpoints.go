package rest

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/krancour/secureimage/coordinator/internal/core"
	"github.com/krancour/secureimage/internal/restmachinery"
	"github.com/krancour/secureimage/sdk"
	"github.com/krancour/secureimage/sdk/meta"
	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

// multipartMemory is how much of an uploaded file is buffered in memory
// before the remainder spills to a temporary file.
const multipartMemory = 32 << 20

type jobsEndpoints struct {
	*restmachinery.BaseEndpoints
	jobStatusUpdateSchemaLoader gojsonschema.JSONLoader
	maxUploadSize               int64
	service                     core.JobsService
}

// NewJobsEndpoints returns the Coordinator's REST endpoints for Jobs.
func NewJobsEndpoints(
	baseEndpoints *restmachinery.BaseEndpoints,
	maxUploadSize int64,
	service core.JobsService,
) restmachinery.Endpoints {
	return &jobsEndpoints{
		BaseEndpoints: baseEndpoints,
		jobStatusUpdateSchemaLoader: gojsonschema.NewStringLoader(
			jobStatusUpdateSchema,
		),
		maxUploadSize: maxUploadSize,
		service:       service,
	}
}

func (j *jobsEndpoints) Register(router *mux.Router) {
	// Create signing job
	router.HandleFunc(
		"/v1/sign",
		j.sign,
	).Methods(http.MethodPost)

	// Create deployment job
	router.HandleFunc(
		"/v1/deploy/{id}",
		j.deploy,
	).Methods(http.MethodPost)

	// Get job status
	router.HandleFunc(
		"/v1/job/{id}/status",
		j.getStatus,
	).Methods(http.MethodGet)

	// Download delivery artifact
	router.HandleFunc(
		"/v1/delivery/{id}",
		j.download,
	).Methods(http.MethodGet)

	// Update job status
	router.HandleFunc(
		"/v1/job/{id}",
		j.TokenAuthFilter.Decorate(j.updateStatus),
	).Methods(http.MethodPut)
}

func (j *jobsEndpoints) sign(w http.ResponseWriter, r *http.Request) {
	if j.maxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, j.maxUploadSize)
	}
	j.ServeRequest(
		restmachinery.InboundRequest{
			W: w,
			R: r,
			EndpointLogic: func() (interface{}, error) {
				if err := r.ParseMultipartForm(multipartMemory); err != nil {
					return nil, &meta.ErrBadRequest{
						Reason: "Could not read multipart form: " + err.Error(),
					}
				}
				defer func() {
					if r.MultipartForm != nil {
						_ = r.MultipartForm.RemoveAll()
					}
				}()
				file, header, err := r.FormFile("file")
				if err != nil {
					return nil, &meta.ErrBadRequest{
						Reason: "A file is required.",
					}
				}
				defer file.Close()
				return j.service.CreateSigningJob(
					r.Context(),
					core.Upload{
						FileName: header.Filename,
						Reader:   file,
						Size:     header.Size,
					},
					r.URL.Query().Get("platform"),
				)
			},
			SuccessCode: http.StatusAccepted,
		},
	)
}

func (j *jobsEndpoints) deploy(w http.ResponseWriter, r *http.Request) {
	j.ServeRequest(
		restmachinery.InboundRequest{
			W: w,
			R: r,
			EndpointLogic: func() (interface{}, error) {
				return j.service.CreateDeploymentJob(
					r.Context(),
					mux.Vars(r)["id"],
					r.URL.Query().Get("deploymentPlatform"),
					r.URL.Query().Get("projectId"),
				)
			},
			SuccessCode: http.StatusAccepted,
		},
	)
}

func (j *jobsEndpoints) getStatus(w http.ResponseWriter, r *http.Request) {
	report, err := j.service.GetStatus(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		j.WriteError(w, err)
		return
	}
	// Jobs that are still in flight are reported as accepted but not ready.
	statusCode := http.StatusAccepted
	if report.Status.IsTerminal() {
		statusCode = http.StatusOK
	}
	j.WriteAPIResponse(w, statusCode, report)
}

func (j *jobsEndpoints) download(w http.ResponseWriter, r *http.Request) {
	url, err := j.service.Download(
		r.Context(),
		mux.Vars(r)["id"],
		r.URL.Query().Get("token"),
	)
	if err != nil {
		j.WriteError(w, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (j *jobsEndpoints) updateStatus(w http.ResponseWriter, r *http.Request) {
	update := sdk.JobStatusUpdate{}
	j.ServeRequest(
		restmachinery.InboundRequest{
			W:                   w,
			R:                   r,
			ReqBodySchemaLoader: j.jobStatusUpdateSchemaLoader,
			ReqBodyObj:          &update,
			EndpointLogic: func() (interface{}, error) {
				id := mux.Vars(r)["id"]
				if err := j.service.UpdateStatus(r.Context(), id, update); err != nil {
					return nil, errors.Wrapf(err, "error updating job %q", id)
				}
				return sdk.JobReference{ID: id}, nil
			},
			SuccessCode: http.StatusOK,
		},
	)
}
