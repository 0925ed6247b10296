package agent

import (
	"github.com/kelseyhightower/envconfig"
	"github.com/krancour/secureimage/coordinator/internal/core"
	agentsdk "github.com/krancour/secureimage/sdk/agent"
	"github.com/pkg/errors"
)

const envconfigPrefix = "AGENT"

// Config represents the Coordinator's configuration for reaching the Agent.
type Config struct {
	Address            string `envconfig:"ADDRESS" required:"true"`
	Token              string `envconfig:"TOKEN" required:"true"`
	IgnoreCertWarnings bool   `envconfig:"IGNORE_CERT_WARNINGS"`
}

// GetConfigFromEnvironment returns configuration derived from environment
// variables
func GetConfigFromEnvironment() (Config, error) {
	c := Config{}
	err := envconfig.Process(envconfigPrefix, &c)
	return c, errors.Wrap(
		err,
		"error getting agent client configuration from environment",
	)
}

// NewAgent returns an implementation of core.Agent that hands Jobs to a remote
// Agent over its REST API.
func NewAgent(config Config) core.Agent {
	return agentsdk.NewClient(
		config.Address,
		config.Token,
		config.IgnoreCertWarnings,
	)
}
