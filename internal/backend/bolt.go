package backend

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/gostash/tierstore/internal/core"
)

// BoltBackend implements core.GeneralBackend on a local bbolt file.
// This is the natural on-device general store: durable across
// restarts, broadly available, unencrypted.
type BoltBackend struct {
	db     *bolt.DB
	bucket []byte
}

// NewBoltBackend opens or creates the database file at path and
// ensures the bucket exists.
func NewBoltBackend(path, bucket string) (*BoltBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if bucket == "" {
		bucket = "tierstore"
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	name := []byte(bucket)
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(name)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &BoltBackend{db: db, bucket: name}, nil
}

// Get retrieves a value by key.
func (b *BoltBackend) Get(ctx context.Context, key string) (string, error) {
	var out []byte
	if err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(b.bucket).Get([]byte(key))
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("failed to get key %s: %w", key, err)
	}
	if out == nil {
		return "", core.ErrKeyNotFound
	}
	return string(out), nil
}

// Set stores a key-value pair.
func (b *BoltBackend) Set(ctx context.Context, key, value string) error {
	if err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Put([]byte(key), []byte(value))
	}); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// Delete removes a key. Absent keys are not an error.
func (b *BoltBackend) Delete(ctx context.Context, key string) error {
	if err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Delete([]byte(key))
	}); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// ListKeys returns all keys in the bucket.
func (b *BoltBackend) ListKeys(ctx context.Context) ([]string, error) {
	var keys []string
	if err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	}); err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return keys, nil
}

// Close closes the underlying database.
func (b *BoltBackend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

// boltGeneralFactory creates bolt general backends.
type boltGeneralFactory struct{}

func (boltGeneralFactory) Type() string { return "bolt" }

func (boltGeneralFactory) Validate(config Config) error {
	if config.Path == "" {
		return fmt.Errorf("path is required for bolt")
	}
	return nil
}

func (boltGeneralFactory) Create(config Config) (core.GeneralBackend, error) {
	return NewBoltBackend(config.Path, config.Bucket)
}

func init() {
	RegisterGeneralFactory(boltGeneralFactory{})
}
