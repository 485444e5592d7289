package storage

import "fmt"

// Options selects and configures a backend for Open.
type Options struct {
	Driver string
	// Path is the directory for fs and the database file for sqlite.
	Path  string
	Redis RedisOptions
}

// Open constructs the backend named by opts.Driver.
func Open(opts Options) (KV, error) {
	switch opts.Driver {
	case DriverFS:
		return NewFS(opts.Path)
	case DriverSQLite:
		return OpenSQLite(opts.Path)
	case DriverRedis:
		return OpenRedis(opts.Redis)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", opts.Driver)
	}
}
