// Package storage defines the persistent key/value slot abstraction and its backends.
package storage

import "context"

// KV is a key-scoped persistent store. Each key holds one opaque value that
// is always read and written whole.
type KV interface {
	// Get returns the value stored at key. ok is false when the key was never set.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set replaces the value stored at key.
	Set(ctx context.Context, key string, value []byte) error
}

// Closer is implemented by backends that hold a connection.
type Closer interface {
	Close() error
}

// Drivers accepted by Open.
const (
	DriverFS     = "fs"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)
