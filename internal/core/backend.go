package core

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by backends when a key is absent.
// Absence is a miss, not a failure; the router treats any other
// backend error as a transport failure and reports it to the
// availability monitor.
var ErrKeyNotFound = errors.New("key not found")

// SecureBackend is the contract for the hardware/OS-backed encrypted
// store. It offers stronger confidentiality but may be unavailable,
// for example while the device is locked.
type SecureBackend interface {
	// Get retrieves a value by key. Returns ErrKeyNotFound if absent.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a key-value pair.
	Set(ctx context.Context, key, value string) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// IsAvailable reports whether the secure store can currently
	// serve requests.
	IsAvailable(ctx context.Context) bool
}

// GeneralBackend is the contract for the ordinary unencrypted
// persistent store. Broadly available, unsuitable for secrets.
type GeneralBackend interface {
	// Get retrieves a value by key. Returns ErrKeyNotFound if absent.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a key-value pair.
	Set(ctx context.Context, key, value string) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// ListKeys returns all keys currently held by the store.
	ListKeys(ctx context.Context) ([]string, error)
}
