package locks

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

const fileLockRetryDelay = 100 * time.Millisecond

type fileLocker struct {
	dir string
}

// NewFileLocker returns a Locker that coordinates processes on the same host
// using lock files in the specified directory.
func NewFileLocker(dir string) Locker {
	return &fileLocker{
		dir: dir,
	}
}

func (f *fileLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	if err := os.MkdirAll(f.dir, 0700); err != nil {
		return nil, errors.Wrapf(err, "error creating lock directory %s", f.dir)
	}
	path := filepath.Join(f.dir, safeKey(key)+".lock")
	fl := flock.New(path)
	locked, err := fl.TryLockContext(ctx, fileLockRetryDelay)
	if err != nil {
		return nil, errors.Wrapf(err, "error obtaining file lock %s", path)
	}
	if !locked {
		return nil, errors.Errorf("could not obtain file lock %s", path)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			glog.Errorf("error releasing file lock %s: %s", path, err)
		}
	}, nil
}
