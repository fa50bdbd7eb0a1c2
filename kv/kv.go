// Package kv is the persistent key-value store that holds serialized session history.
package kv

import "context"

// Store reads and writes opaque string values by key.
type Store interface {
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Close() error
}
