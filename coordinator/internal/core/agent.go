package core

import (
	"context"

	"github.com/krancour/secureimage/sdk"
)

// Agent is the interface for components that hand Jobs to the signing Agent.
// Both methods return once the Agent has accepted (or rejected) the Job. The
// outcome of accepted Jobs is reported back through JobsService.UpdateStatus.
type Agent interface {
	Sign(ctx context.Context, req sdk.SigningRequest) error
	Deploy(ctx context.Context, req sdk.DeploymentRequest) error
}
