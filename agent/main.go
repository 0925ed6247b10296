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
		"Starting secureimage agent -- version %s -- commit %s",
		version.Version(),
		version.Commit(),
	)

	ctx, cancel := context.WithCancel(signals.Context())
	defer cancel()

	a, err := getAgentFromEnvironment(ctx)
	if err != nil {
		glog.Fatal(err)
	}

	executorDoneCh := make(chan struct{})
	go func() {
		defer close(executorDoneCh)
		if err := a.executor.Run(ctx); err != nil && err != context.Canceled {
			glog.Error(err)
		}
	}()

	if err = a.server.ListenAndServe(ctx); err != nil {
		glog.Error(err)
	}

	// Interrupted and queued jobs are reported before exiting.
	cancel()
	<-executorDoneCh
}
