package kubernetes

import (
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const envconfigPrefix = "KUBERNETES"

// config represents common configuration options for a Kubernetes client
type config struct {
	MasterURL        string `envconfig:"MASTER"`
	KubeConfigPath   string `envconfig:"KUBE_CONFIG"`
	SecretsNamespace string `envconfig:"SECRETS_NAMESPACE" default:"secureimage"`
}

func getConfig() (config, error) {
	c := config{}
	if err := envconfig.Process(envconfigPrefix, &c); err != nil {
		return c, errors.Wrap(
			err,
			"error getting kubernetes configuration from environment",
		)
	}
	return c, nil
}

// Client returns a new Kubernetes client
func Client() (kubernetes.Interface, error) {
	c, err := getConfig()
	if err != nil {
		return nil, err
	}
	var cfg *rest.Config
	if c.MasterURL == "" && c.KubeConfigPath == "" {
		cfg, err = rest.InClusterConfig()
	} else {
		cfg, err = clientcmd.BuildConfigFromFlags(c.MasterURL, c.KubeConfigPath)
	}
	if err != nil {
		return nil, errors.Wrap(
			err,
			"error getting kubernetes configuration",
		)
	}
	return kubernetes.NewForConfig(cfg)
}

// SecretsNamespace returns the Kubernetes namespace in which signing and
// publishing credentials are kept.
func SecretsNamespace() (string, error) {
	c, err := getConfig()
	if err != nil {
		return "", err
	}
	return c.SecretsNamespace, nil
}
