package main

// nolint: lll
import (
	"context"
	"path/filepath"
	"time"

	"github.com/golang/glog"
	"github.com/kelseyhightower/envconfig"
	"github.com/krancour/secureimage/agent/internal/deployment"
	"github.com/krancour/secureimage/agent/internal/executor"
	"github.com/krancour/secureimage/agent/internal/keystores"
	agentREST "github.com/krancour/secureimage/agent/internal/rest"
	"github.com/krancour/secureimage/agent/internal/signing"
	"github.com/krancour/secureimage/agent/internal/workspace"
	"github.com/krancour/secureimage/internal/artifacts/minio"
	"github.com/krancour/secureimage/internal/kubernetes"
	"github.com/krancour/secureimage/internal/locks"
	"github.com/krancour/secureimage/internal/redis"
	"github.com/krancour/secureimage/internal/restmachinery"
	"github.com/krancour/secureimage/internal/restmachinery/authn"
	"github.com/krancour/secureimage/internal/secrets"
	"github.com/krancour/secureimage/internal/secrets/keychain"
	secretsKubernetes "github.com/krancour/secureimage/internal/secrets/kubernetes"
	"github.com/krancour/secureimage/internal/tools"
	"github.com/krancour/secureimage/sdk/coordinator"
	"github.com/pkg/errors"
)

const (
	envconfigPrefix = "AGENT"
	redisLockTTL    = 10 * time.Minute
)

// config represents configuration for the Agent.
// nolint: lll
type config struct {
	APIAddress            string        `envconfig:"API_ADDRESS" required:"true"`
	APIToken              string        `envconfig:"API_TOKEN" required:"true"`
	IgnoreAPICertWarnings bool          `envconfig:"IGNORE_API_CERT_WARNINGS"`
	WorkspaceRoot         string        `envconfig:"WORKSPACE_ROOT" default:"/tmp/secureimage"`
	KeepFailedWorkspaces  bool          `envconfig:"KEEP_FAILED_WORKSPACES"`
	ToolTimeout           time.Duration `envconfig:"TOOL_TIMEOUT" default:"30m"`
	MaxConcurrentJobs     int           `envconfig:"MAX_CONCURRENT_JOBS" default:"2"`
	QueueSize             int           `envconfig:"QUEUE_SIZE" default:"16"`
	KeystoreDir           string        `envconfig:"KEYSTORE_DIR" default:"/var/lib/secureimage/keystores"`
	SecretStore           string        `envconfig:"SECRET_STORE" default:"kubernetes"`
	ExportMethod          string        `envconfig:"EXPORT_METHOD" default:"enterprise"`
	TeamID                string        `envconfig:"TEAM_ID"`
	PlayAccount           string        `envconfig:"PLAY_ACCOUNT" default:"google-play"`
	PlayTrack             string        `envconfig:"PLAY_TRACK" default:"alpha"`
	AppStoreAccount       string        `envconfig:"APPSTORE_ACCOUNT" default:"app-store"`
	MDMAccount            string        `envconfig:"MDM_ACCOUNT" default:"mdm"`
	MDMHost               string        `envconfig:"MDM_HOST"`
	IgnoreMDMCertWarnings bool          `envconfig:"IGNORE_MDM_CERT_WARNINGS"`
}

func getConfig() (config, error) {
	c := config{}
	err := envconfig.Process(envconfigPrefix, &c)
	return c, errors.Wrap(err, "error getting agent configuration from environment")
}

type agent struct {
	server   restmachinery.Server
	executor executor.Executor
}

func getAgentFromEnvironment(ctx context.Context) (*agent, error) {
	// Agent server config
	serverConfig, err := restmachinery.GetConfigFromEnvironment("AGENT_SERVER")
	if err != nil {
		return nil, err
	}
	agentConfig, err := getConfig()
	if err != nil {
		return nil, err
	}

	runner := tools.NewRunner(agentConfig.ToolTimeout)

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

	// Credentials
	secretStore, err := getSecretStore(agentConfig.SecretStore, runner)
	if err != nil {
		return nil, err
	}
	locker, err := getLocker(agentConfig.KeystoreDir)
	if err != nil {
		return nil, err
	}

	workspaces := workspace.NewManager(
		agentConfig.WorkspaceRoot,
		agentConfig.KeepFailedWorkspaces,
	)
	signer := signing.NewDispatcher(
		signing.Config{
			ExportMethod: agentConfig.ExportMethod,
			TeamID:       agentConfig.TeamID,
		},
		artifactStore,
		workspaces,
		runner,
		keystores.NewProvider(
			agentConfig.KeystoreDir,
			secretStore,
			runner,
			locker,
		),
	)
	deployer := deployment.NewDispatcher(
		deployment.Config{
			PlayAccount:           agentConfig.PlayAccount,
			PlayTrack:             agentConfig.PlayTrack,
			AppStoreAccount:       agentConfig.AppStoreAccount,
			MDMAccount:            agentConfig.MDMAccount,
			MDMHost:               agentConfig.MDMHost,
			IgnoreMDMCertWarnings: agentConfig.IgnoreMDMCertWarnings,
		},
		artifactStore,
		workspaces,
		runner,
		secretStore,
	)
	exec := executor.NewExecutor(
		executor.Config{
			MaxConcurrentJobs: agentConfig.MaxConcurrentJobs,
			QueueSize:         agentConfig.QueueSize,
		},
		signer,
		deployer,
		coordinator.NewJobsClient(
			agentConfig.APIAddress,
			agentConfig.APIToken,
			agentConfig.IgnoreAPICertWarnings,
		),
	)

	baseEndpoints := &restmachinery.BaseEndpoints{
		TokenAuthFilter: authn.NewTokenAuthFilter(
			serverConfig.HashedServiceToken(),
		),
	}

	return &agent{
		server: restmachinery.NewServer(
			serverConfig,
			baseEndpoints,
			[]restmachinery.Endpoints{
				agentREST.NewEndpoints(baseEndpoints, exec),
			},
		),
		executor: exec,
	}, nil
}

func getSecretStore(kind string, runner tools.Runner) (secrets.Store, error) {
	switch kind {
	case "keychain":
		return keychain.NewStore(runner), nil
	case "kubernetes":
		kubeClient, err := kubernetes.Client()
		if err != nil {
			return nil, err
		}
		namespace, err := kubernetes.SecretsNamespace()
		if err != nil {
			return nil, err
		}
		return secretsKubernetes.NewStore(kubeClient, namespace), nil
	}
	return nil, errors.Errorf("unrecognized secret store %q", kind)
}

// getLocker serializes work within this process and, when Redis is
// configured, across every Agent sharing it. Without Redis, lock files
// serialize Agents sharing the keystore directory.
func getLocker(keystoreDir string) (locks.Locker, error) {
	redisClient, err := redis.Client()
	if err != nil {
		return nil, err
	}
	if redisClient != nil {
		glog.Info("using redis for keystore locks")
		return locks.Compose(
			locks.NewKeyedMutex(),
			locks.NewRedisLocker(redisClient, redisLockTTL),
		), nil
	}
	return locks.Compose(
		locks.NewKeyedMutex(),
		locks.NewFileLocker(filepath.Join(keystoreDir, ".locks")),
	), nil
}
