package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

var loginCommand = &cli.Command{
	Name:  "login",
	Usage: "Remember the coordinator this CLI talks to",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     flagServer,
			Aliases:  []string{"s"},
			Usage:    "The address of the coordinator (required)",
			Required: true,
		},
	},
	Action: login,
}

var logoutCommand = &cli.Command{
	Name:   "logout",
	Usage:  "Forget the coordinator this CLI talks to",
	Action: logout,
}

func login(c *cli.Context) error {
	address := strings.TrimSuffix(c.String(flagServer), "/")
	parsed, err := url.Parse(address)
	if err != nil || parsed.Host == "" ||
		(parsed.Scheme != "http" && parsed.Scheme != "https") {
		return errors.Errorf(
			"%q is not a valid coordinator address; an http(s) URL is required",
			address,
		)
	}
	if err = saveConfig(&config{APIAddress: address}); err != nil {
		return errors.Wrap(err, "error persisting configuration")
	}
	fmt.Printf("Using coordinator %s.\n", address)
	return nil
}

func logout(c *cli.Context) error {
	if err := deleteConfig(); err != nil {
		return err
	}
	fmt.Println("Coordinator forgotten.")
	return nil
}
