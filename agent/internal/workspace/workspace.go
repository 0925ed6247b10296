package workspace

import (
	"os"
	"path/filepath"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
)

// Manager creates private, per-job scratch directories beneath a common root.
type Manager struct {
	root          string
	keepOnFailure bool
}

// NewManager returns a Manager that creates workspaces beneath root. If
// keepOnFailure is true, the workspaces of failed jobs are left in place for
// diagnostics.
func NewManager(root string, keepOnFailure bool) *Manager {
	return &Manager{
		root:          root,
		keepOnFailure: keepOnFailure,
	}
}

// Workspace is a scratch directory owned by a single job.
type Workspace struct {
	// Dir is the absolute path of the workspace.
	Dir           string
	keepOnFailure bool
}

// Create makes a new, uniquely named workspace.
func (m *Manager) Create() (*Workspace, error) {
	dir := filepath.Join(m.root, uuid.NewV4().String())
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrapf(err, "error creating workspace %s", dir)
	}
	return &Workspace{
		Dir:           dir,
		keepOnFailure: m.keepOnFailure,
	}, nil
}

// Path joins elems onto the workspace directory.
func (w *Workspace) Path(elems ...string) string {
	return filepath.Join(append([]string{w.Dir}, elems...)...)
}

// Release removes the workspace. Failures to remove it are logged and never
// returned, so they cannot mask the outcome of the job that used it.
func (w *Workspace) Release(failed bool) {
	if failed && w.keepOnFailure {
		glog.Warningf("keeping workspace %s of failed job", w.Dir)
		return
	}
	if err := os.RemoveAll(w.Dir); err != nil {
		glog.Errorf("error removing workspace %s: %s", w.Dir, err)
	}
}
