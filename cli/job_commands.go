package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/krancour/secureimage/internal/file"
	"github.com/krancour/secureimage/sdk"
	"github.com/krancour/secureimage/sdk/coordinator"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"golang.org/x/crypto/ssh/terminal"
)

const defaultPollInterval = 5 * time.Second

var signCommand = &cli.Command{
	Name:      "sign",
	Usage:     "Upload an application package for signing",
	ArgsUsage: "FILE",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     flagPlatform,
			Aliases:  []string{"p"},
			Usage:    "The platform the package was built for; ios or android (required)",
			Required: true,
		},
		&cli.BoolFlag{
			Name:    flagWait,
			Aliases: []string{"w"},
			Usage:   "Wait for the job to finish",
		},
		cliFlagInterval,
	},
	Action: sign,
}

var deployCommand = &cli.Command{
	Name:      "deploy",
	Usage:     "Deploy the package produced by a completed signing job",
	ArgsUsage: "JOB_ID",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     flagDeploymentPlatform,
			Aliases:  []string{"d"},
			Usage:    "Where to deploy to; public or enterprise (required)",
			Required: true,
		},
		&cli.StringFlag{
			Name:  flagProject,
			Usage: "The project whose deployment group receives enterprise deployments",
		},
		&cli.BoolFlag{
			Name:    flagWait,
			Aliases: []string{"w"},
			Usage:   "Wait for the job to finish",
		},
		cliFlagInterval,
	},
	Action: deploy,
}

var statusCommand = &cli.Command{
	Name:      "status",
	Usage:     "Show the status of a job",
	ArgsUsage: "JOB_ID",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    flagWatch,
			Aliases: []string{"w"},
			Usage:   "Keep polling until the job is finished",
		},
		cliFlagInterval,
		cliFlagOutput,
	},
	Action: status,
}

var downloadCommand = &cli.Command{
	Name:      "download",
	Usage:     "Download the package produced by a completed signing job",
	ArgsUsage: "JOB_ID",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  flagToken,
			Usage: "The job's download token; looked up if not specified",
		},
		&cli.StringFlag{
			Name:      flagOutput,
			Aliases:   []string{"o"},
			Usage:     "Where to write the package; defaults to JOB_ID in the current directory",
			TakesFile: true,
		},
		&cli.BoolFlag{
			Name:    flagYes,
			Aliases: []string{"y"},
			Usage:   "Non-interactively confirm overwriting an existing file",
		},
	},
	Action: download,
}

func requireArg(c *cli.Context, name string) (string, error) {
	if c.Args().Len() != 1 {
		return "", errors.Errorf("exactly one %s argument is required", name)
	}
	return c.Args().First(), nil
}

func sign(c *cli.Context) error {
	fileName, err := requireArg(c, "FILE")
	if err != nil {
		return err
	}
	platform, ok := sdk.ParsePlatform(c.String(flagPlatform))
	if !ok {
		return errors.Errorf(
			"unsupported platform %q; use ios or android",
			c.String(flagPlatform),
		)
	}

	f, err := os.Open(fileName)
	if err != nil {
		return errors.Wrapf(err, "error opening %s", fileName)
	}
	defer f.Close()

	client, err := getClient(c)
	if err != nil {
		return errors.Wrap(err, "error getting secureimage client")
	}

	jobRef, err := client.Sign(c.Context, fileName, f, string(platform))
	if err != nil {
		return err
	}
	fmt.Printf("Created signing job %q.\n", jobRef.ID)

	if !c.Bool(flagWait) {
		return nil
	}
	return waitAndPrint(c, client, jobRef.ID)
}

func deploy(c *cli.Context) error {
	jobID, err := requireArg(c, "JOB_ID")
	if err != nil {
		return err
	}
	deploymentPlatform, ok := sdk.ParseDeploymentPlatform(
		c.String(flagDeploymentPlatform),
	)
	if !ok {
		return errors.Errorf(
			"unsupported deployment platform %q; use public or enterprise",
			c.String(flagDeploymentPlatform),
		)
	}
	if deploymentPlatform == sdk.DeploymentPlatformEnterprise &&
		c.String(flagProject) == "" {
		return errors.New("enterprise deployments require a project")
	}

	client, err := getClient(c)
	if err != nil {
		return errors.Wrap(err, "error getting secureimage client")
	}

	jobRef, err := client.Deploy(
		c.Context,
		jobID,
		string(deploymentPlatform),
		c.String(flagProject),
	)
	if err != nil {
		return err
	}
	fmt.Printf("Created deployment job %q.\n", jobRef.ID)

	if !c.Bool(flagWait) {
		return nil
	}
	return waitAndPrint(c, client, jobRef.ID)
}

func status(c *cli.Context) error {
	jobID, err := requireArg(c, "JOB_ID")
	if err != nil {
		return err
	}
	output := c.String(flagOutput)
	if err = validateOutputFormat(output); err != nil {
		return err
	}

	client, err := getClient(c)
	if err != nil {
		return errors.Wrap(err, "error getting secureimage client")
	}

	var report sdk.JobStatusReport
	if c.Bool(flagWatch) {
		report, err = waitForJob(
			c.Context,
			client,
			jobID,
			c.Duration(flagInterval),
			printProgress,
		)
	} else {
		report, err = client.GetStatus(c.Context, jobID)
	}
	if err != nil {
		return err
	}
	return printStatusReport(os.Stdout, jobID, report, output)
}

func download(c *cli.Context) error {
	jobID, err := requireArg(c, "JOB_ID")
	if err != nil {
		return err
	}
	outputPath := c.String(flagOutput)
	if outputPath == "" {
		outputPath = jobID
	}

	client, err := getClient(c)
	if err != nil {
		return errors.Wrap(err, "error getting secureimage client")
	}

	token := c.String(flagToken)
	if token == "" {
		if token, err = lookUpToken(c.Context, client, jobID); err != nil {
			return err
		}
	}

	if file.Exists(outputPath) && !c.Bool(flagYes) {
		// Refuse to overwrite non-interactively
		if !terminal.IsTerminal(int(os.Stdin.Fd())) {
			return errors.Errorf(
				"%s already exists; use --%s to overwrite it",
				outputPath,
				flagYes,
			)
		}
		overwrite := false
		if err = survey.AskOne(
			&survey.Confirm{
				Message: fmt.Sprintf("%s already exists. Overwrite it?", outputPath),
			},
			&overwrite,
		); err != nil {
			return errors.Wrap(err, "error confirming overwrite")
		}
		if !overwrite {
			return nil
		}
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return errors.Wrapf(err, "error creating %s", outputPath)
	}
	defer f.Close()
	if err = client.Download(c.Context, jobID, token, f); err != nil {
		return err
	}
	fmt.Printf("Downloaded job %q to %s.\n", jobID, outputPath)
	return nil
}

// lookUpToken extracts the download token from the URL the coordinator
// reports for a completed job.
func lookUpToken(
	ctx context.Context,
	client coordinator.JobsClient,
	jobID string,
) (string, error) {
	report, err := client.GetStatus(ctx, jobID)
	if err != nil {
		return "", err
	}
	if report.Status != sdk.JobStatusCompleted || report.URL == "" {
		return "", errors.Errorf(
			"job %q has nothing to download; its status is %s",
			jobID,
			report.Status,
		)
	}
	u, err := url.Parse(report.URL)
	if err != nil {
		return "", errors.Wrapf(err, "error parsing download URL of job %q", jobID)
	}
	return u.Query().Get("token"), nil
}

func waitAndPrint(
	c *cli.Context,
	client coordinator.JobsClient,
	jobID string,
) error {
	report, err := waitForJob(
		c.Context,
		client,
		jobID,
		c.Duration(flagInterval),
		printProgress,
	)
	if err != nil {
		return err
	}
	if err = printStatusReport(os.Stdout, jobID, report, "table"); err != nil {
		return err
	}
	if report.Status == sdk.JobStatusFailed {
		return errors.Errorf("job %q failed", jobID)
	}
	return nil
}

// waitForJob polls the status of a job until it is terminal, invoking
// progress after every poll that finds it still in flight.
func waitForJob(
	ctx context.Context,
	client coordinator.JobsClient,
	jobID string,
	interval time.Duration,
	progress func(sdk.JobStatusReport),
) (sdk.JobStatusReport, error) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		report, err := client.GetStatus(ctx, jobID)
		if err != nil {
			return report, err
		}
		if report.Status.IsTerminal() {
			return report, nil
		}
		if progress != nil {
			progress(report)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return report, ctx.Err()
		}
	}
}

func printProgress(report sdk.JobStatusReport) {
	if terminal.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Printf("Job is %s...\n", report.Status)
	}
}
