package signing

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"github.com/krancour/secureimage/agent/internal/workspace"
	"github.com/krancour/secureimage/internal/file"
	"github.com/krancour/secureimage/internal/tools"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"howett.net/plist"
)

const exportOptionsFileName = "options.plist"

// exportOptions is the subset of xcodebuild's export options that is
// generated when an upload doesn't carry its own.
type exportOptions struct {
	Method string `plist:"method"`
	TeamID string `plist:"teamID,omitempty"`
}

// signArchive exports every xcarchive found in an uploaded zip and packages
// the exports into a single delivery archive.
func (d *dispatcher) signArchive(
	ctx context.Context,
	ws *workspace.Workspace,
	inputPath string,
) (string, error) {
	extractDir := ws.Path("extracted")
	if err := workspace.Extract(inputPath, extractDir); err != nil {
		return "", &Error{
			Kind:   ErrKindArchiveNotFound,
			Reason: "Unable to extract the uploaded archive",
			Err:    err,
		}
	}

	archives, err := findXcarchives(extractDir)
	if err != nil {
		return "", err
	}
	if len(archives) == 0 {
		return "", &Error{
			Kind:   ErrKindArchiveNotFound,
			Reason: "Unable to find xcarchive(s) in package",
		}
	}

	optionsPath := filepath.Join(extractDir, exportOptionsFileName)
	if !file.Exists(optionsPath) {
		optionsPath = ws.Path(exportOptionsFileName)
		if err = d.writeExportOptions(optionsPath); err != nil {
			return "", err
		}
	}

	exportDir := ws.Path("signed")
	items := make([]string, len(archives))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, archive := range archives {
		i, archive := i, archive
		group.Go(func() error {
			exportPath, err := d.exportArchive(
				groupCtx,
				archive,
				filepath.Join(exportDir, archiveName(archive)),
				optionsPath,
			)
			if err != nil {
				return err
			}
			items[i] = filepath.Base(exportPath)
			return nil
		})
	}
	if err = group.Wait(); err != nil {
		return "", err
	}

	deliveryPath := ws.Path("delivery.zip")
	if err = workspace.Pack(exportDir, items, deliveryPath); err != nil {
		return "", &Error{
			Kind:   ErrKindPackagingFailed,
			Reason: "Unable to create delivery package",
			Err:    err,
		}
	}
	return deliveryPath, nil
}

func (d *dispatcher) exportArchive(
	ctx context.Context,
	archivePath string,
	exportPath string,
	optionsPath string,
) (string, error) {
	res, err := d.runner.Run(
		ctx,
		tools.Command{
			Name: "xcodebuild",
			Args: []string{
				"-exportArchive",
				"-archivePath", archivePath,
				"-exportPath", exportPath,
				"-exportOptionsPlist", optionsPath,
			},
		},
	)
	if err != nil {
		if execErr, ok := tools.AsExecutionError(err); ok && !execErr.TimedOut {
			execErr.Summary = ParseXcodebuildError(execErr.Output())
		}
		return "", err
	}
	glog.V(1).Infof("exported %s", archivePath)
	return parseExportOutput(res.Stdout)
}

func (d *dispatcher) writeExportOptions(optionsPath string) error {
	method := d.config.ExportMethod
	if method == "" {
		method = "enterprise"
	}
	data, err := plist.MarshalIndent(
		exportOptions{
			Method: method,
			TeamID: d.config.TeamID,
		},
		plist.XMLFormat,
		"\t",
	)
	if err != nil {
		return errors.Wrap(err, "error encoding export options")
	}
	if err = ioutil.WriteFile(optionsPath, data, 0600); err != nil {
		return errors.Wrapf(err, "error writing export options %s", optionsPath)
	}
	glog.V(1).Infof("generated export options with method %q", method)
	return nil
}

// findXcarchives returns every *.xcarchive directory beneath root.
func findXcarchives(root string) ([]string, error) {
	archives := []string{}
	err := filepath.Walk(
		root,
		func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() &&
				strings.EqualFold(filepath.Ext(path), ".xcarchive") {
				archives = append(archives, path)
				return filepath.SkipDir
			}
			return nil
		},
	)
	return archives, errors.Wrapf(err, "error searching %s for archives", root)
}

// archiveName returns the portion of an archive's file name before its first
// dot.
func archiveName(archivePath string) string {
	return strings.SplitN(filepath.Base(archivePath), ".", 2)[0]
}
