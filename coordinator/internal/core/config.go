package core

import (
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

const envconfigPrefix = "COORDINATOR"

// Config represents configuration for the Coordinator's core services.
// nolint: lll
type Config struct {
	// APIURL is the externally reachable base URL of the Coordinator. It is
	// used to build download URLs handed to clients.
	APIURL string `envconfig:"API_URL" required:"true"`
	// ExpirationInDays is how long artifacts are retained. Zero disables
	// expiry.
	ExpirationInDays int `envconfig:"EXPIRATION_IN_DAYS" default:"90"`
	// DownloadURLTTL is how long presigned download URLs remain valid.
	DownloadURLTTL time.Duration `envconfig:"DOWNLOAD_URL_TTL" default:"15m"`
	// PruneInterval is how often expired artifacts are removed. Zero disables
	// pruning.
	PruneInterval time.Duration `envconfig:"PRUNE_INTERVAL" default:"24h"`
	// MaxUploadSize is the largest artifact, in bytes, accepted for signing.
	MaxUploadSize int64 `envconfig:"MAX_UPLOAD_SIZE" default:"1073741824"`
	// DispatchTimeout bounds how long the Coordinator waits for an Agent to
	// accept a Job.
	DispatchTimeout time.Duration `envconfig:"DISPATCH_TIMEOUT" default:"1m"`
}

// NewConfigWithDefaults returns a Config object with default values already
// applied. Callers are then free to set custom values for the remaining fields
// and/or override default values.
func NewConfigWithDefaults() Config {
	return Config{
		ExpirationInDays: 90,
		DownloadURLTTL:   15 * time.Minute,
		PruneInterval:    24 * time.Hour,
		MaxUploadSize:    1 << 30,
		DispatchTimeout:  time.Minute,
	}
}

// GetConfigFromEnvironment returns configuration derived from environment
// variables
func GetConfigFromEnvironment() (Config, error) {
	c := NewConfigWithDefaults()
	err := envconfig.Process(envconfigPrefix, &c)
	return c, errors.Wrap(
		err,
		"error getting coordinator configuration from environment",
	)
}
