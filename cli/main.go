package main

import (
	"fmt"
	"os"

	"github.com/krancour/secureimage/internal/signals"
	"github.com/krancour/secureimage/internal/version"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.NewApp()
	app.Name = "secureimage"
	app.Usage = "Sign and deploy mobile applications"
	app.Version = fmt.Sprintf(
		"%s -- commit %s",
		version.Version(),
		version.Commit(),
	)
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:    flagInsecure,
			Aliases: []string{"k"},
			Usage:   "Allow insecure coordinator connections when using TLS",
		},
	}
	app.Commands = []*cli.Command{
		deployCommand,
		downloadCommand,
		loginCommand,
		logoutCommand,
		signCommand,
		statusCommand,
	}
	fmt.Println()
	if err := app.RunContext(signals.Context(), os.Args); err != nil {
		fmt.Printf("\n%s\n\n", err)
		os.Exit(1)
	}
	fmt.Println()
}
