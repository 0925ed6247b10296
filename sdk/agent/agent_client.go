package agent

import (
	"context"
	"net/http"

	"github.com/krancour/secureimage/internal/restmachinery"
	"github.com/krancour/secureimage/sdk"
)

// Client is the client used by the Coordinator to hand Jobs to an Agent.
type Client interface {
	// Sign asks the Agent to sign an artifact. It returns once the Agent has
	// accepted the Job; the outcome is reported back asynchronously.
	Sign(ctx context.Context, req sdk.SigningRequest) error
	// Deploy asks the Agent to push a signed artifact to a distribution
	// channel. It returns once the Agent has accepted the Job.
	Deploy(ctx context.Context, req sdk.DeploymentRequest) error
}

type client struct {
	*restmachinery.BaseClient
}

// NewClient returns a client for the Agent at the specified address.
func NewClient(
	agentAddress string,
	agentToken string,
	allowInsecure bool,
) Client {
	return &client{
		BaseClient: restmachinery.NewBaseClient(
			agentAddress,
			agentToken,
			allowInsecure,
		),
	}
}

func (c *client) Sign(ctx context.Context, req sdk.SigningRequest) error {
	return c.ExecuteRequest(
		ctx,
		restmachinery.OutboundRequest{
			Method:      http.MethodPost,
			Path:        "v1/sign",
			AuthHeaders: c.BearerTokenAuthHeaders(),
			ReqBodyObj:  req,
			SuccessCode: http.StatusAccepted,
		},
	)
}

func (c *client) Deploy(ctx context.Context, req sdk.DeploymentRequest) error {
	return c.ExecuteRequest(
		ctx,
		restmachinery.OutboundRequest{
			Method:      http.MethodPost,
			Path:        "v1/deploy",
			AuthHeaders: c.BearerTokenAuthHeaders(),
			ReqBodyObj:  req,
			SuccessCode: http.StatusAccepted,
		},
	)
}
