package locks

import (
	"context"
	"regexp"
)

// Unlock releases a lock obtained from a Locker.
type Unlock func()

// Locker is the interface for components that provide mutual exclusion keyed
// by an arbitrary string.
type Locker interface {
	// Lock blocks until the lock for key has been obtained or the context is
	// canceled.
	Lock(ctx context.Context, key string) (Unlock, error)
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// safeKey maps a key onto characters that are safe to use in file names and
// Redis keys.
func safeKey(key string) string {
	return unsafeKeyChars.ReplaceAllString(key, "_")
}

type compositeLocker struct {
	lockers []Locker
}

// Compose returns a Locker that obtains the lock from every specified Locker,
// in order, and releases them in reverse order.
func Compose(lockers ...Locker) Locker {
	return &compositeLocker{
		lockers: lockers,
	}
}

func (c *compositeLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	unlocks := make([]Unlock, 0, len(c.lockers))
	unlockAll := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, locker := range c.lockers {
		unlock, err := locker.Lock(ctx, key)
		if err != nil {
			unlockAll()
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}
	return unlockAll, nil
}
