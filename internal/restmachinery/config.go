package restmachinery

import (
	"github.com/kelseyhightower/envconfig"
	"github.com/krancour/secureimage/internal/crypto"
	"github.com/pkg/errors"
)

// We use an exported interface to govern access to our config because the
// underlying struct has fields we don't want to expose.
type Config interface {
	Port() int
	TLSEnabled() bool
	TLSCertPath() string
	TLSKeyPath() string
	// HashedServiceToken is the hash of the token other components must present
	// when making service-to-service calls.
	HashedServiceToken() string
}

type config struct {
	PortAttr               int    `envconfig:"PORT"`
	TLSEnabledAttr         bool   `envconfig:"TLS_ENABLED"`
	TLSCertPathAttr        string `envconfig:"TLS_CERT_PATH"`
	TLSKeyPathAttr         string `envconfig:"TLS_KEY_PATH"`
	ServiceTokenAttr       string `envconfig:"SERVICE_TOKEN" required:"true"`
	HashedServiceTokenAttr string
}

// NewConfigWithDefaults returns a Config object with default values already
// applied. Callers are then free to set custom values for the remaining fields
// and/or override default values.
func NewConfigWithDefaults() Config {
	return &config{PortAttr: 8080}
}

// NewConfig returns a Config with the specified values. It is mainly useful
// for tests and for embedding a server in another program.
func NewConfig(port int, serviceToken string) Config {
	return &config{
		PortAttr:               port,
		HashedServiceTokenAttr: crypto.ShortSHA("", serviceToken),
	}
}

// GetConfigFromEnvironment returns configuration derived from environment
// variables carrying the specified prefix.
func GetConfigFromEnvironment(envconfigPrefix string) (Config, error) {
	c := NewConfigWithDefaults().(*config)
	if err := envconfig.Process(envconfigPrefix, c); err != nil {
		return c, errors.Wrapf(
			err,
			"error getting %s configuration from environment",
			envconfigPrefix,
		)
	}

	if c.TLSEnabledAttr {
		if c.TLSCertPathAttr == "" {
			return c, errors.Errorf(
				"with TLS enabled, a value is required for the "+
					"%s_TLS_CERT_PATH environment variable",
				envconfigPrefix,
			)
		}
		if c.TLSKeyPathAttr == "" {
			return c, errors.Errorf(
				"with TLS enabled, a value is required for the "+
					"%s_TLS_KEY_PATH environment variable",
				envconfigPrefix,
			)
		}
	}

	c.HashedServiceTokenAttr = crypto.ShortSHA("", c.ServiceTokenAttr)
	// Don't let the unencrypted token float around in memory!
	c.ServiceTokenAttr = ""

	return c, nil
}

func (c *config) Port() int {
	return c.PortAttr
}

func (c *config) TLSEnabled() bool {
	return c.TLSEnabledAttr
}

func (c *config) TLSCertPath() string {
	return c.TLSCertPathAttr
}

func (c *config) TLSKeyPath() string {
	return c.TLSKeyPathAttr
}

func (c *config) HashedServiceToken() string {
	return c.HashedServiceTokenAttr
}
