package main

import (
	"context"
	"flag"

	"github.com/golang/glog"
	"github.com/krancour/secureimage/internal/signals"
	"github.com/krancour/secureimage/internal/version"
)

func main() {
	flag.Parse()
	defer glog.Flush()

	glog.Infof(
		"Starting secureimage coordinator -- version %s -- commit %s",
		version.Version(),
		version.Commit(),
	)

	ctx := signals.Context()

	c, err := getCoordinatorFromEnvironment(ctx)
	if err != nil {
		glog.Fatal(err)
	}

	go c.pruner.Run(ctx, c.pruneInterval)

	if err = c.server.ListenAndServe(ctx); err != nil {
		glog.Error(err)
	}

	// Jobs still being handed to the Agent are seen through to Processing or
	// Failed before exiting.
	waitCtx, cancel := context.WithTimeout(context.Background(), c.dispatchTimeout)
	defer cancel()
	if err = c.jobsService.WaitForDispatches(waitCtx); err != nil {
		glog.Errorf("error waiting for jobs to be handed to the agent: %s", err)
	}
}
