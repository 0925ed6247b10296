package main

import "github.com/urfave/cli/v2"

const (
	flagDeploymentPlatform = "deployment-platform"
	flagInsecure           = "insecure"
	flagInterval           = "interval"
	flagOutput             = "output"
	flagPlatform           = "platform"
	flagProject            = "project"
	flagServer             = "server"
	flagToken              = "token"
	flagWait               = "wait"
	flagWatch              = "watch"
	flagYes                = "yes"
)

var (
	cliFlagOutput = &cli.StringFlag{
		Name:    flagOutput,
		Aliases: []string{"o"},
		Usage: "Return output in the specified format; supported formats: table, " +
			"yaml, json",
		Value: "table",
	}
	cliFlagInterval = &cli.DurationFlag{
		Name:  flagInterval,
		Usage: "How often to poll the job's status while waiting",
		Value: defaultPollInterval,
	}
)
