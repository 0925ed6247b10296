package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ghodss/yaml"
	"github.com/gosuri/uitable"
	"github.com/krancour/secureimage/sdk"
	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/duration"
)

func validateOutputFormat(outputFormat string) error {
	switch strings.ToLower(outputFormat) {
	case "table":
	case "yaml":
	case "json":
	default:
		return errors.Errorf("unknown output format %q", outputFormat)
	}
	return nil
}

func printStatusReport(
	w io.Writer,
	jobID string,
	report sdk.JobStatusReport,
	output string,
) error {
	switch strings.ToLower(output) {
	case "table":
		table := uitable.New()
		table.MaxColWidth = 80
		table.Wrap = true
		table.AddRow("ID", "STATUS", "DURATION", "MESSAGE")
		table.AddRow(
			jobID,
			report.Status,
			formatDuration(report.DurationInSeconds),
			report.StatusMessage,
		)
		fmt.Fprintln(w, table)
		if report.URL != "" {
			fmt.Fprintf(w, "\nDownload: %s\n", report.URL)
		}

	case "yaml":
		yamlBytes, err := yaml.Marshal(report)
		if err != nil {
			return errors.Wrap(err, "error formatting job status")
		}
		fmt.Fprintln(w, string(yamlBytes))

	case "json":
		prettyJSON, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return errors.Wrap(err, "error formatting job status")
		}
		fmt.Fprintln(w, string(prettyJSON))
	}
	return nil
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return ""
	}
	return duration.ShortHumanDuration(
		time.Duration(seconds * float64(time.Second)),
	)
}
