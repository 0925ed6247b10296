package main

// nolint: lll
import (
	"context"
	"time"

	"github.com/krancour/secureimage/coordinator/internal/core"
	coreAgent "github.com/krancour/secureimage/coordinator/internal/core/agent"
	coreMongodb "github.com/krancour/secureimage/coordinator/internal/core/mongodb"
	coreREST "github.com/krancour/secureimage/coordinator/internal/core/rest"
	"github.com/krancour/secureimage/internal/artifacts"
	"github.com/krancour/secureimage/internal/artifacts/minio"
	"github.com/krancour/secureimage/internal/mongodb"
	"github.com/krancour/secureimage/internal/restmachinery"
	"github.com/krancour/secureimage/internal/restmachinery/authn"
)

type coordinator struct {
	server          restmachinery.Server
	jobsService     core.JobsService
	dispatchTimeout time.Duration
	pruner          *artifacts.Pruner
	pruneInterval   time.Duration
}

func getCoordinatorFromEnvironment(ctx context.Context) (*coordinator, error) {
	// API server config
	serverConfig, err := restmachinery.GetConfigFromEnvironment("API_SERVER")
	if err != nil {
		return nil, err
	}
	coreConfig, err := core.GetConfigFromEnvironment()
	if err != nil {
		return nil, err
	}

	// Persistence
	database, err := mongodb.Database(ctx)
	if err != nil {
		return nil, err
	}
	jobsStore, err := coreMongodb.NewJobsStore(database)
	if err != nil {
		return nil, err
	}
	projectsStore, err := coreMongodb.NewProjectsStore(database)
	if err != nil {
		return nil, err
	}

	// Artifacts
	minioConfig, err := minio.GetConfigFromEnvironment()
	if err != nil {
		return nil, err
	}
	artifactStore, err := minio.NewStore(minioConfig)
	if err != nil {
		return nil, err
	}
	if err = artifactStore.EnsureBucket(ctx); err != nil {
		return nil, err
	}

	// Agent
	agentConfig, err := coreAgent.GetConfigFromEnvironment()
	if err != nil {
		return nil, err
	}

	jobsService := core.NewJobsService(
		coreConfig,
		jobsStore,
		projectsStore,
		artifactStore,
		coreAgent.NewAgent(agentConfig),
	)

	baseEndpoints := &restmachinery.BaseEndpoints{
		TokenAuthFilter: authn.NewTokenAuthFilter(
			serverConfig.HashedServiceToken(),
		),
	}

	return &coordinator{
		server: restmachinery.NewServer(
			serverConfig,
			baseEndpoints,
			[]restmachinery.Endpoints{
				coreREST.NewJobsEndpoints(
					baseEndpoints,
					coreConfig.MaxUploadSize,
					jobsService,
				),
			},
			func(ctx context.Context) error {
				return mongodb.CheckHealth(ctx, database)
			},
		),
		jobsService:     jobsService,
		dispatchTimeout: coreConfig.DispatchTimeout,
		pruner:          artifacts.NewPruner(artifactStore, coreConfig.ExpirationInDays),
		pruneInterval:   coreConfig.PruneInterval,
	}, nil
}
