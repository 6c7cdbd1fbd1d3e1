// Package storage holds the device-local key/value stores the cart is
// persisted in.
package storage

import (
	"context"
	"fmt"
)

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Store is a string key/value store. Get reports whether the key exists.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Ping(ctx context.Context) error
	Close() error
}

// Open picks a Store by driver name. path is ignored by the memory driver.
func Open(driver, path string) (Store, error) {
	switch driver {
	case DriverMemory, "":
		return NewMemStore(), nil
	case DriverSQLite:
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", driver)
	}
}
