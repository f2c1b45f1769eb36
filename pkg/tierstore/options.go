package tierstore

import "time"

// SetOptions controls how SetItem persists a value.
type SetOptions struct {
	// Batch coalesces the write with others issued inside the batch
	// window. Batching affects only I/O scheduling; the caller still
	// receives the write's own outcome.
	Batch bool

	// TTL, when positive, gives the stored value an absolute expiry.
	// Expired values read as absent and are purged from the backend
	// on next access.
	TTL time.Duration
}

// RemoveOptions controls how RemoveItem deletes a key.
type RemoveOptions struct {
	// Batch coalesces the removal with other batched operations.
	Batch bool
}
