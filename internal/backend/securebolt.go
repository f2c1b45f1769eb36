package backend

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/gostash/tierstore/internal/core"
)

// SecureBoltBackend implements core.SecureBackend on a local bbolt
// file whose values are sealed with AES-256-GCM under a device key.
// It stands in for a platform keychain on hosts that only give us a
// filesystem plus key material. IsAvailable reflects whether the key
// material was provided and the file opened.
type SecureBoltBackend struct {
	db     *bolt.DB
	bucket []byte
	aead   cipher.AEAD
}

// NewSecureBoltBackend opens the database at path and prepares the
// AEAD from the hex-encoded 32-byte seal key.
func NewSecureBoltBackend(path, bucket, sealKeyHex string) (*SecureBoltBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if bucket == "" {
		bucket = "tierstore_secure"
	}

	key, err := hex.DecodeString(sealKeyHex)
	if err != nil {
		return nil, fmt.Errorf("seal key is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("seal key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to init GCM: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open secure database: %w", err)
	}

	name := []byte(bucket)
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(name)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &SecureBoltBackend{db: db, bucket: name, aead: aead}, nil
}

// seal encrypts plaintext as nonce||ciphertext.
func (s *SecureBoltBackend) seal(plaintext string) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// open decrypts a nonce||ciphertext blob.
func (s *SecureBoltBackend) open(sealed []byte) (string, error) {
	if len(sealed) < s.aead.NonceSize() {
		return "", fmt.Errorf("sealed value too short")
	}
	nonce, ciphertext := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to unseal value: %w", err)
	}
	return string(plaintext), nil
}

// Get retrieves and unseals a value by key.
func (s *SecureBoltBackend) Get(ctx context.Context, key string) (string, error) {
	var sealed []byte
	if err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.bucket).Get([]byte(key))
		if v != nil {
			sealed = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("failed to get key %s: %w", key, err)
	}
	if sealed == nil {
		return "", core.ErrKeyNotFound
	}
	return s.open(sealed)
}

// Set seals and stores a key-value pair.
func (s *SecureBoltBackend) Set(ctx context.Context, key, value string) error {
	sealed, err := s.seal(value)
	if err != nil {
		return err
	}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), sealed)
	}); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// Delete removes a key. Absent keys are not an error.
func (s *SecureBoltBackend) Delete(ctx context.Context, key string) error {
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	}); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// IsAvailable reports whether the sealed store can serve requests.
func (s *SecureBoltBackend) IsAvailable(ctx context.Context) bool {
	return s.db != nil && s.aead != nil
}

// Close closes the underlying database.
func (s *SecureBoltBackend) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// secureBoltFactory creates sealed bolt secure backends.
type secureBoltFactory struct{}

func (secureBoltFactory) Type() string { return "securebolt" }

func (secureBoltFactory) Validate(config Config) error {
	if config.Path == "" {
		return fmt.Errorf("path is required for securebolt")
	}
	if config.SealKey == "" {
		return fmt.Errorf("seal_key is required for securebolt")
	}
	return nil
}

func (secureBoltFactory) Create(config Config) (core.SecureBackend, error) {
	return NewSecureBoltBackend(config.Path, config.Bucket, config.SealKey)
}

func init() {
	RegisterSecureFactory(secureBoltFactory{})
}
