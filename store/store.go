package store

import "context"

// Store is the byte-oriented persistence boundary used for resume snapshots
// and audit records. Keys are namespaced by prefix.
type Store interface {
	Get(ctx context.Context, prefix, key string) ([]byte, error)
	Set(ctx context.Context, prefix, key string, value []byte) error
	/**
	 * Remove a prefix and key.
	 * removing an unknown prefix + key is NOT an error.
	 */
	Remove(ctx context.Context, prefix, key string) error

	List(ctx context.Context, prefix string, iterator func(key string) bool) error
}
