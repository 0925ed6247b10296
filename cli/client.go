package main

import (
	"github.com/krancour/secureimage/sdk/coordinator"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

func getClient(c *cli.Context) (coordinator.JobsClient, error) {
	config, err := getConfig()
	if err != nil {
		return nil, errors.Wrapf(err, "error retrieving configuration")
	}
	return coordinator.NewJobsClient(
		config.APIAddress,
		"",
		c.Bool(flagInsecure),
	), nil
}
