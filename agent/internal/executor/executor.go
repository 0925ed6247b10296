package executor

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/krancour/secureimage/agent/internal/deployment"
	"github.com/krancour/secureimage/agent/internal/signing"
	"github.com/krancour/secureimage/internal/retries"
	"github.com/krancour/secureimage/sdk"
	"github.com/krancour/secureimage/sdk/coordinator"
	"github.com/krancour/secureimage/sdk/meta"
	"github.com/pkg/errors"
)

const (
	callbackMaxAttempts = 10
	callbackMaxBackoff  = time.Minute
	callbackTimeout     = 30 * time.Second
	shutdownGracePeriod = 30 * time.Second
)

const (
	abandonedMessage   = "The agent shut down before the job started."
	interruptedMessage = "The agent shut down before the job finished."
)

// Config represents configuration for the Executor.
type Config struct {
	// MaxConcurrentJobs is the number of jobs worked on at once.
	MaxConcurrentJobs int
	// QueueSize is the number of accepted jobs that may wait for a worker.
	QueueSize int
}

// Executor accepts signing and deployment work, performs it on a bounded pool
// of workers and reports each job's outcome to the Coordinator.
type Executor interface {
	// SubmitSigning enqueues a signing job. A *meta.ErrServiceUnavailable is
	// returned if the queue is full.
	SubmitSigning(req sdk.SigningRequest) error
	// SubmitDeployment enqueues a deployment job. A *meta.ErrServiceUnavailable
	// is returned if the queue is full.
	SubmitDeployment(req sdk.DeploymentRequest) error
	// Run works on queued jobs until the context is canceled. It then stops
	// accepting jobs, reports every job it can no longer complete as Failed
	// and returns once those reports are delivered or a grace period has
	// elapsed.
	Run(ctx context.Context) error
}

type task struct {
	jobID string
	run   func(ctx context.Context) (sdk.JobStatusUpdate, error)
}

type executor struct {
	config      Config
	signer      signing.Dispatcher
	deployer    deployment.Dispatcher
	jobsClient  coordinator.JobsClient
	queue       chan task
	mu          sync.RWMutex
	stopping    bool
	maxAttempts uint8
	maxBackoff  time.Duration
	gracePeriod time.Duration
}

// NewExecutor returns an Executor that reports outcomes using the specified
// Coordinator client.
func NewExecutor(
	config Config,
	signer signing.Dispatcher,
	deployer deployment.Dispatcher,
	jobsClient coordinator.JobsClient,
) Executor {
	if config.MaxConcurrentJobs < 1 {
		config.MaxConcurrentJobs = 1
	}
	if config.QueueSize < 0 {
		config.QueueSize = 0
	}
	return &executor{
		config:      config,
		signer:      signer,
		deployer:    deployer,
		jobsClient:  jobsClient,
		queue:       make(chan task, config.QueueSize),
		maxAttempts: callbackMaxAttempts,
		maxBackoff:  callbackMaxBackoff,
		gracePeriod: shutdownGracePeriod,
	}
}

func (e *executor) SubmitSigning(req sdk.SigningRequest) error {
	return e.submit(
		task{
			jobID: req.JobID,
			run: func(ctx context.Context) (sdk.JobStatusUpdate, error) {
				delivery, err := e.signer.Sign(ctx, req)
				return sdk.JobStatusUpdate{
					Status:           sdk.JobStatusCompleted,
					DeliveryFileName: delivery.FileName,
					DeliveryFileEtag: delivery.Etag,
				}, err
			},
		},
	)
}

func (e *executor) SubmitDeployment(req sdk.DeploymentRequest) error {
	return e.submit(
		task{
			jobID: req.JobID,
			run: func(ctx context.Context) (sdk.JobStatusUpdate, error) {
				err := e.deployer.Deploy(ctx, req)
				return sdk.JobStatusUpdate{
					Status:           sdk.JobStatusCompleted,
					DeliveryFileName: req.OriginalFileName,
					DeliveryFileEtag: req.OriginalFileEtag,
				}, err
			},
		},
	)
}

func (e *executor) submit(t task) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.stopping {
		return &meta.ErrServiceUnavailable{
			Reason: "The agent is shutting down.",
		}
	}
	select {
	case e.queue <- t:
		glog.V(1).Infof("queued job %q", t.jobID)
		return nil
	default:
		return &meta.ErrServiceUnavailable{
			Reason: "The agent's job queue is full.",
		}
	}
}

func (e *executor) Run(ctx context.Context) error {
	// Reports outlive ctx so that jobs interrupted by shutdown still reach a
	// terminal status.
	reportCtx, cancelReports := context.WithCancel(context.Background())
	defer cancelReports()

	wg := sync.WaitGroup{}
	for i := 0; i < e.config.MaxConcurrentJobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.work(ctx, reportCtx)
		}()
	}
	<-ctx.Done()

	e.mu.Lock()
	e.stopping = true
	e.mu.Unlock()
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.drain(reportCtx)
	}()

	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		wg.Wait()
	}()
	select {
	case <-doneCh:
	case <-time.After(e.gracePeriod):
		glog.Warningf(
			"gave up on reporting interrupted jobs after %s",
			e.gracePeriod,
		)
	}
	return ctx.Err()
}

func (e *executor) work(ctx context.Context, reportCtx context.Context) {
	for {
		select {
		case t := <-e.queue:
			e.execute(ctx, reportCtx, t)
		case <-ctx.Done():
			return
		}
	}
}

// drain reports every job still queued as Failed. Nothing is queued once the
// executor is stopping, so the queue stays empty afterwards.
func (e *executor) drain(reportCtx context.Context) {
	for {
		select {
		case t := <-e.queue:
			e.fail(reportCtx, t.jobID, abandonedMessage)
		default:
			return
		}
	}
}

func (e *executor) execute(
	ctx context.Context,
	reportCtx context.Context,
	t task,
) {
	if ctx.Err() != nil {
		e.fail(reportCtx, t.jobID, abandonedMessage)
		return
	}
	glog.Infof("starting job %q", t.jobID)
	update, err := t.run(ctx)
	if err != nil {
		glog.Errorf("job %q failed: %s", t.jobID, err)
		message := meta.Summarize(err)
		if ctx.Err() != nil {
			message = interruptedMessage
		}
		e.fail(reportCtx, t.jobID, message)
		return
	}
	e.deliver(reportCtx, t.jobID, update)
}

func (e *executor) fail(ctx context.Context, jobID string, message string) {
	e.deliver(
		ctx,
		jobID,
		sdk.JobStatusUpdate{
			Status:        sdk.JobStatusFailed,
			StatusMessage: message,
		},
	)
}

func (e *executor) deliver(
	ctx context.Context,
	jobID string,
	update sdk.JobStatusUpdate,
) {
	if err := e.report(ctx, jobID, update); err != nil {
		glog.Errorf(
			"error reporting status %s of job %q: %s",
			update.Status,
			jobID,
			err,
		)
	}
}

// report delivers a job's outcome to the Coordinator. Outcomes the
// Coordinator refuses because the job is unknown or already terminal are
// dropped.
func (e *executor) report(
	ctx context.Context,
	jobID string,
	update sdk.JobStatusUpdate,
) error {
	return retries.ManageRetries(
		ctx,
		"report status of job "+jobID,
		e.maxAttempts,
		e.maxBackoff,
		func() (bool, error) {
			callCtx, cancel := context.WithTimeout(ctx, callbackTimeout)
			defer cancel()
			err := e.jobsClient.UpdateStatus(callCtx, jobID, update)
			switch errors.Cause(err).(type) {
			case nil:
				glog.Infof("job %q reported %s", jobID, update.Status)
				return false, nil
			case *meta.ErrConflict, *meta.ErrNotFound:
				glog.Warningf(
					"coordinator refused status %s of job %q: %s",
					update.Status,
					jobID,
					err,
				)
				return false, nil
			case *meta.ErrBadRequest, *meta.ErrAuthentication:
				return false, err
			}
			return true, err
		},
	)
}
