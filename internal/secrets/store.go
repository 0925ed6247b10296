package secrets

import "context"

// Store is the interface for components that hold signing and publishing
// credentials. Values are addressed by a key (what the value is, e.g.
// "storePassword") and an account (whom it belongs to, e.g. a bundle
// identifier or a symbolic publishing account name).
type Store interface {
	// Get returns the value stored under key for account. A *meta.ErrNotFound
	// is returned when no such value exists.
	Get(ctx context.Context, key, account string) (string, error)
	// Put stores value under key for account, replacing any existing value.
	Put(ctx context.Context, key, account, value string) error
}
