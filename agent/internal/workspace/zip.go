package workspace

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Extract unpacks the zip archive at archivePath into destDir. Entries that
// would land outside of destDir are rejected.
func Extract(archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return errors.Wrapf(err, "error opening archive %s", archivePath)
	}
	defer r.Close()
	destDir = filepath.Clean(destDir)
	for _, f := range r.File {
		target := filepath.Join(destDir, f.Name) // nolint: gosec
		if target != destDir &&
			!strings.HasPrefix(target, destDir+string(os.PathSeparator)) {
			return errors.Errorf(
				"archive entry %q escapes the extraction directory",
				f.Name,
			)
		}
		if f.FileInfo().IsDir() {
			if err = os.MkdirAll(target, 0700); err != nil {
				return errors.Wrapf(err, "error creating directory %s", target)
			}
			continue
		}
		if err = extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0700); err != nil {
		return errors.Wrapf(err, "error creating directory for %s", target)
	}
	src, err := f.Open()
	if err != nil {
		return errors.Wrapf(err, "error opening archive entry %q", f.Name)
	}
	defer src.Close()
	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0600
	}
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return errors.Wrapf(err, "error creating %s", target)
	}
	defer dst.Close()
	if _, err = io.Copy(dst, src); err != nil { // nolint: gosec
		return errors.Wrapf(err, "error extracting %q", f.Name)
	}
	return nil
}

// Pack writes a zip archive to destPath containing each of items, which are
// paths relative to baseDir. Directories are added recursively. Entries whose
// names end in .ipa are stored without further compression.
func Pack(baseDir string, items []string, destPath string) (err error) {
	out, err := os.Create(destPath)
	if err != nil {
		return errors.Wrapf(err, "error creating archive %s", destPath)
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = errors.Wrapf(closeErr, "error closing archive %s", destPath)
		}
	}()
	zw := zip.NewWriter(out)
	for _, item := range items {
		root := filepath.Join(baseDir, item)
		if err = filepath.Walk(
			root,
			func(path string, info os.FileInfo, walkErr error) error {
				if walkErr != nil {
					return walkErr
				}
				rel, relErr := filepath.Rel(baseDir, path)
				if relErr != nil {
					return relErr
				}
				return addToZip(zw, path, filepath.ToSlash(rel), info)
			},
		); err != nil {
			return errors.Wrapf(err, "error adding %s to archive", item)
		}
	}
	return errors.Wrapf(zw.Close(), "error finalizing archive %s", destPath)
}

func addToZip(
	zw *zip.Writer,
	path string,
	name string,
	info os.FileInfo,
) error {
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	if info.IsDir() {
		header.Name += "/"
		_, err = zw.CreateHeader(header)
		return err
	}
	header.Method = zip.Deflate
	if strings.EqualFold(filepath.Ext(name), ".ipa") {
		header.Method = zip.Store
	}
	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
