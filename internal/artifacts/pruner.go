package artifacts

import (
	"context"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// Pruner removes artifacts that have outlived the retention window.
type Pruner struct {
	store          Store
	expirationDays int
	now            func() time.Time
}

// NewPruner returns a Pruner that removes objects from store once they are
// expirationDays old.
func NewPruner(store Store, expirationDays int) *Pruner {
	return &Pruner{
		store:          store,
		expirationDays: expirationDays,
		now:            time.Now,
	}
}

// Prune removes every expired object and returns the names of the objects it
// removed. A failure to stat or remove an individual object does not stop the
// sweep; such failures are reported together once the sweep is complete.
func (p *Pruner) Prune(ctx context.Context) ([]string, error) {
	objects, err := p.store.List(ctx, "")
	if err != nil {
		return nil, errors.Wrap(err, "error listing artifacts")
	}
	now := p.now()
	removed := []string{}
	failures := []string{}
	for _, object := range objects {
		if object.LastModified.IsZero() {
			if object, err = p.store.Stat(ctx, object.Name); err != nil {
				failures = append(failures, err.Error())
				continue
			}
		}
		if !IsExpired(object, p.expirationDays, now) {
			continue
		}
		if err = p.store.Remove(ctx, object.Name); err != nil {
			glog.Errorf("error removing expired artifact %q: %s", object.Name, err)
			failures = append(failures, err.Error())
			continue
		}
		glog.Infof("removed expired artifact %q", object.Name)
		removed = append(removed, object.Name)
	}
	if len(failures) > 0 {
		return removed, errors.Errorf(
			"%d artifact(s) could not be pruned: %s",
			len(failures),
			strings.Join(failures, "; "),
		)
	}
	return removed, nil
}

// Run prunes on the specified interval until the context is canceled. An
// interval of zero disables pruning.
func (p *Pruner) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		glog.Info("artifact pruning is disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if removed, err := p.Prune(ctx); err != nil {
			glog.Error(err)
		} else {
			glog.V(1).Infof("pruned %d expired artifact(s)", len(removed))
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
