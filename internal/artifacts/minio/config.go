package minio

import (
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

const envconfigPrefix = "MINIO"

// Config represents configuration options for a MinIO or S3 bucket.
type Config struct {
	Endpoint  string `envconfig:"ENDPOINT" required:"true"`
	AccessKey string `envconfig:"ACCESS_KEY" required:"true"`
	SecretKey string `envconfig:"SECRET_KEY" required:"true"`
	Bucket    string `envconfig:"BUCKET" default:"secureimage"`
	Region    string `envconfig:"REGION" default:"us-east-1"`
	UseSSL    bool   `envconfig:"USE_SSL" default:"true"`
}

// GetConfigFromEnvironment returns configuration derived from environment
// variables
func GetConfigFromEnvironment() (Config, error) {
	c := Config{}
	err := envconfig.Process(envconfigPrefix, &c)
	return c, errors.Wrap(
		err,
		"error getting minio configuration from environment",
	)
}
