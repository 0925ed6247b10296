package main

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path"

	"github.com/krancour/secureimage/internal/file"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
)

const secureImageHomeEnvVar = "SECUREIMAGE_HOME"

type config struct {
	APIAddress string `json:"apiAddress"`
}

func getConfig() (*config, error) {
	secureImageHome, err := getSecureImageHome()
	if err != nil {
		return nil, errors.Wrapf(err, "error finding secureimage home")
	}
	configFile := path.Join(secureImageHome, "config")
	if !file.Exists(configFile) {
		return nil, errors.Errorf(
			"no secureimage configuration was found at %s; please use "+
				"`secureimage login` to continue\n",
			configFile,
		)
	}

	configBytes, err := ioutil.ReadFile(configFile)
	if err != nil {
		return nil, errors.Wrapf(
			err,
			"error reading secureimage config file at %s",
			configFile,
		)
	}

	config := &config{}
	if err := json.Unmarshal(configBytes, config); err != nil {
		return nil, errors.Wrapf(
			err,
			"error parsing secureimage config file at %s",
			configFile,
		)
	}

	return config, nil
}

func saveConfig(config *config) error {
	secureImageHome, err := getSecureImageHome()
	if err != nil {
		return errors.Wrapf(err, "error finding secureimage home")
	}
	if err = os.MkdirAll(secureImageHome, 0755); err != nil {
		return errors.Wrapf(
			err,
			"error creating secureimage home at %s",
			secureImageHome,
		)
	}
	configFile := path.Join(secureImageHome, "config")

	configBytes, err := json.Marshal(config)
	if err != nil {
		return errors.Wrap(err, "error marshaling config")
	}
	if err = ioutil.WriteFile(configFile, configBytes, 0644); err != nil {
		return errors.Wrapf(err, "error writing to %s", configFile)
	}
	return nil
}

func deleteConfig() error {
	secureImageHome, err := getSecureImageHome()
	if err != nil {
		return errors.Wrapf(err, "error finding secureimage home")
	}
	configFile := path.Join(secureImageHome, "config")

	if err := os.Remove(configFile); err != nil {
		return errors.Wrap(err, "error deleting configuration")
	}

	return nil
}

// getSecureImageHome returns $SECUREIMAGE_HOME if set and ~/.secureimage
// otherwise.
func getSecureImageHome() (string, error) {
	if home := os.Getenv(secureImageHomeEnvVar); home != "" {
		return home, nil
	}
	homeDir, err := homedir.Dir()
	if err != nil {
		return "", errors.Wrap(err, "error locating user's home directory")
	}

	return path.Join(homeDir, ".secureimage"), nil
}
