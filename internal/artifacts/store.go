package artifacts

import (
	"context"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ObjectInfo describes an object held by a Store.
type ObjectInfo struct {
	Name         string
	Size         int64
	LastModified time.Time
	ETag         string
}

// Store is the interface for components that durably hold uploaded and
// signed artifacts.
type Store interface {
	// EnsureBucket creates the underlying bucket if it does not already exist.
	EnsureBucket(ctx context.Context) error
	// Put stores size bytes read from r under name and returns the etag of the
	// stored object. A size of -1 indicates the size is unknown.
	Put(ctx context.Context, name string, r io.Reader, size int64) (string, error)
	// Get returns the content of the named object. Callers must close it.
	Get(ctx context.Context, name string) (io.ReadCloser, error)
	// Stat returns metadata for the named object. A *meta.ErrNotFound is
	// returned if no such object exists.
	Stat(ctx context.Context, name string) (ObjectInfo, error)
	// PresignedURL returns a time limited URL from which the named object may
	// be downloaded. If downloadName is non-empty, the response will instruct
	// the browser to save the object under that name.
	PresignedURL(
		ctx context.Context,
		name string,
		ttl time.Duration,
		downloadName string,
	) (string, error)
	// Remove deletes the named object.
	Remove(ctx context.Context, name string) error
	// List returns metadata for all objects whose names begin with prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// ObjectName returns the name under which a file belonging to the specified
// job is stored.
func ObjectName(jobID, fileName string) string {
	return path.Join(jobID, path.Base(fileName))
}

// SignedDownloadName returns the file name a signed artifact is offered to
// clients under, e.g. "app.ipa" becomes "app-signed.ipa".
func SignedDownloadName(objectName string) string {
	base := path.Base(objectName)
	ext := path.Ext(base)
	if ext == "" {
		ext = ".zip"
	}
	return strings.TrimSuffix(base, path.Ext(base)) + "-signed" + ext
}

// IsExpired returns true when at least expirationDays whole days have passed
// since the object was last modified. An expirationDays of zero or less
// disables expiry.
func IsExpired(info ObjectInfo, expirationDays int, now time.Time) bool {
	if expirationDays <= 0 {
		return false
	}
	expiry := info.LastModified.Add(
		time.Duration(expirationDays) * 24 * time.Hour,
	)
	return !now.Before(expiry)
}

// PutFile uploads the file at filePath under name and returns the etag of the
// stored object.
func PutFile(
	ctx context.Context,
	store Store,
	name string,
	filePath string,
) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", errors.Wrapf(err, "error opening %s", filePath)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return "", errors.Wrapf(err, "error getting info for %s", filePath)
	}
	return store.Put(ctx, name, f, fi.Size())
}

// GetFile downloads the named object to filePath.
func GetFile(
	ctx context.Context,
	store Store,
	name string,
	filePath string,
) error {
	rc, err := store.Get(ctx, name)
	if err != nil {
		return err
	}
	defer rc.Close()
	f, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "error creating %s", filePath)
	}
	if _, err = io.Copy(f, rc); err != nil {
		f.Close()
		return errors.Wrapf(err, "error downloading %s to %s", name, filePath)
	}
	return errors.Wrapf(f.Close(), "error closing %s", filePath)
}
