package rest

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/krancour/secureimage/agent/internal/executor"
	"github.com/krancour/secureimage/internal/restmachinery"
	"github.com/krancour/secureimage/sdk"
	"github.com/xeipuuv/gojsonschema"
)

type endpoints struct {
	*restmachinery.BaseEndpoints
	signingRequestSchemaLoader    gojsonschema.JSONLoader
	deploymentRequestSchemaLoader gojsonschema.JSONLoader
	executor                      executor.Executor
}

// NewEndpoints returns the Agent's REST endpoints. Every endpoint requires
// the service token shared with the Coordinator.
func NewEndpoints(
	baseEndpoints *restmachinery.BaseEndpoints,
	exec executor.Executor,
) restmachinery.Endpoints {
	return &endpoints{
		BaseEndpoints: baseEndpoints,
		signingRequestSchemaLoader: gojsonschema.NewStringLoader(
			signingRequestSchema,
		),
		deploymentRequestSchemaLoader: gojsonschema.NewStringLoader(
			deploymentRequestSchema,
		),
		executor: exec,
	}
}

func (e *endpoints) Register(router *mux.Router) {
	// Accept signing job
	router.HandleFunc(
		"/v1/sign",
		e.TokenAuthFilter.Decorate(e.sign),
	).Methods(http.MethodPost)

	// Accept deployment job
	router.HandleFunc(
		"/v1/deploy",
		e.TokenAuthFilter.Decorate(e.deploy),
	).Methods(http.MethodPost)
}

func (e *endpoints) sign(w http.ResponseWriter, r *http.Request) {
	req := sdk.SigningRequest{}
	e.ServeRequest(
		restmachinery.InboundRequest{
			W:                   w,
			R:                   r,
			ReqBodySchemaLoader: e.signingRequestSchemaLoader,
			ReqBodyObj:          &req,
			EndpointLogic: func() (interface{}, error) {
				if err := e.executor.SubmitSigning(req); err != nil {
					return nil, err
				}
				return sdk.JobReference{ID: req.JobID}, nil
			},
			SuccessCode: http.StatusAccepted,
		},
	)
}

func (e *endpoints) deploy(w http.ResponseWriter, r *http.Request) {
	req := sdk.DeploymentRequest{}
	e.ServeRequest(
		restmachinery.InboundRequest{
			W:                   w,
			R:                   r,
			ReqBodySchemaLoader: e.deploymentRequestSchemaLoader,
			ReqBodyObj:          &req,
			EndpointLogic: func() (interface{}, error) {
				if err := e.executor.SubmitDeployment(req); err != nil {
					return nil, err
				}
				return sdk.JobReference{ID: req.JobID}, nil
			},
			SuccessCode: http.StatusAccepted,
		},
	)
}
