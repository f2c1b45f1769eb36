package tierstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/gostash/tierstore/internal/backend"
	"github.com/gostash/tierstore/internal/batch"
	"github.com/gostash/tierstore/internal/breaker"
	"github.com/gostash/tierstore/internal/cache"
	"github.com/gostash/tierstore/internal/classify"
	"github.com/gostash/tierstore/internal/core"
	"github.com/gostash/tierstore/internal/router"
	"github.com/gostash/tierstore/internal/token"
)

var (
	// ErrNotInitialized is returned by operations before Init.
	ErrNotInitialized = errors.New("store is not initialized")

	// ErrStoreClosed is returned by every operation after Destroy.
	// Calls after Destroy fail fast without touching any backend.
	ErrStoreClosed = errors.New("store is destroyed")

	// ErrSecureStorageUnavailable is the actionable token-write
	// failure: the device lacks the required security capability.
	ErrSecureStorageUnavailable = token.ErrSecureStorageUnavailable

	// ErrValueTooLarge is returned when a value exceeds the
	// configured maximum serialized size.
	ErrValueTooLarge = router.ErrValueTooLarge
)

// userDataKey holds the serialized user profile. The "auth" fragment
// classifies it sensitive, so it prefers the secure tier but may fall
// back to the general one.
const userDataKey = "auth_user_data"

// Stats is a snapshot of store health.
type Stats struct {
	// TotalKeys is a best-effort count of keys on the general tier.
	TotalKeys int `json:"total_keys"`

	// CacheSize is the current number of cached entries.
	CacheSize int `json:"cache_size"`

	// SecureAvailable reports whether the secure tier is usable.
	SecureAvailable bool `json:"secure_available"`

	// CacheHitRate is the fraction of cache lookups that hit.
	CacheHitRate float64 `json:"cache_hit_rate"`
}

// Store persists credentials, user data and app state across two
// backends of different security and availability characteristics.
// It is a single process-wide instance with an explicit Init/Destroy
// lifecycle; build independent instances in tests with their own
// clocks and backends.
//
// Typical usage:
//
//	store, _ := tierstore.New(cfg, secure, general)
//	if err := store.Init(ctx); err != nil { ... }
//	defer store.Destroy()
//
//	store.SetItem(ctx, "theme", "dark", tierstore.SetOptions{})
//	value, found, _ := store.GetItem(ctx, "theme")
type Store struct {
	cfg        *Config
	clock      core.Clock
	classifier *classify.Classifier
	monitor    *breaker.Monitor
	router     *router.Router
	queue      *batch.Queue
	guard      *token.Guard

	mu          sync.Mutex
	initialized bool
	closed      bool
}

// Option customizes a Store at construction time.
type Option func(*storeOptions)

type storeOptions struct {
	clock core.Clock
}

// WithClock injects a clock, giving tests deterministic control over
// cache expiry, breaker cooldowns and batch windows.
func WithClock(clock core.Clock) Option {
	return func(o *storeOptions) {
		o.clock = clock
	}
}

// New creates a store over the two injected backends.
func New(cfg *Config, secure core.SecureBackend, general core.GeneralBackend, opts ...Option) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if secure == nil || general == nil {
		return nil, fmt.Errorf("both backends are required")
	}

	options := &storeOptions{clock: core.NewClock()}
	for _, opt := range opts {
		opt(options)
	}

	classifier := classify.New(classify.Rules{
		CredentialKey:     cfg.Classify.CredentialKey,
		SensitivePatterns: cfg.Classify.SensitivePatterns,
	})
	monitor := breaker.NewMonitor(options.clock, cfg.Breaker.FailureThreshold, cfg.Breaker.Cooldown)
	readCache := cache.New(options.clock, cfg.Cache.TTL, cfg.Cache.MaxSize)
	r := router.New(secure, general, classifier, monitor, readCache, options.clock, router.Config{
		CallTimeout:  cfg.Limits.CallTimeout,
		MaxValueSize: cfg.Limits.MaxValueSize,
	})

	s := &Store{
		cfg:        cfg,
		clock:      options.clock,
		classifier: classifier,
		monitor:    monitor,
		router:     r,
		guard:      token.NewGuard(r, classifier.CredentialKey()),
	}
	s.queue = batch.NewQueue(options.clock, s.applyBatched, batch.Config{
		Window:     cfg.Batch.Window,
		MaxDelay:   cfg.Batch.MaxDelay,
		MaxPending: cfg.Batch.MaxPending,
	})
	return s, nil
}

// NewFromConfig creates a store whose backends are built through the
// factory registry from cfg.Backends.
func NewFromConfig(cfg *Config, opts ...Option) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	secure, err := backend.CreateSecure(cfg.Backends.Secure.toFactory())
	if err != nil {
		return nil, fmt.Errorf("failed to create secure backend: %w", err)
	}
	general, err := backend.CreateGeneral(cfg.Backends.General.toFactory())
	if err != nil {
		return nil, fmt.Errorf("failed to create general backend: %w", err)
	}
	return New(cfg, secure, general, opts...)
}

// Init probes both backends and arms the store. It is cancellation
// aware: a cancelled context fails cleanly and leaves no
// partially-initialized availability state behind.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	if s.initialized {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	secureUp := s.router.SecureAvailable(ctx)
	totalKeys := s.router.TotalKeys(ctx)

	if err := ctx.Err(); err != nil {
		// Cancelled mid-probe: discard whatever the probes recorded.
		s.monitor.Reset()
		return err
	}

	logrus.Debugf("tierstore: initialized, secure tier up=%v, general tier holds %d keys", secureUp, totalKeys)

	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
	return nil
}

// checkReady returns the fail-fast error for the current lifecycle
// state, if any.
func (s *Store) checkReady() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if !s.initialized {
		return ErrNotInitialized
	}
	return nil
}

// GetItem returns the stored value for a key. A miss returns
// found=false with a nil error; backend failures degrade to a miss
// rather than surfacing.
func (s *Store) GetItem(ctx context.Context, key string) (string, bool, error) {
	if err := s.checkReady(); err != nil {
		return "", false, err
	}

	value, found, err := s.router.Read(ctx, key)
	if err != nil {
		logrus.Debugf("tierstore: read of %q degraded to miss: %v", key, err)
		return "", false, nil
	}
	return value, found, nil
}

// SetItem stores a value. With opts.Batch the write coalesces with
// others inside the batch window; either way the caller receives the
// write's own outcome.
func (s *Store) SetItem(ctx context.Context, key, value string, opts SetOptions) error {
	if err := s.checkReady(); err != nil {
		return err
	}

	if opts.Batch {
		done := s.queue.Enqueue(&batch.Operation{
			Kind:  batch.KindSet,
			Key:   key,
			Value: value,
			TTL:   opts.TTL,
		})
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.router.Write(ctx, key, value, opts.TTL)
}

// RemoveItem deletes a key from both backends. Removing an absent key
// still reports success.
func (s *Store) RemoveItem(ctx context.Context, key string, opts RemoveOptions) error {
	if err := s.checkReady(); err != nil {
		return err
	}

	if opts.Batch {
		done := s.queue.Enqueue(&batch.Operation{
			Kind: batch.KindRemove,
			Key:  key,
		})
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.router.Remove(ctx, key)
}

// SetToken persists the auth token to the secure backend only. It
// returns ErrSecureStorageUnavailable when that is impossible; the
// token is never silently persisted anywhere else.
func (s *Store) SetToken(ctx context.Context, tok string) error {
	if err := s.checkReady(); err != nil {
		return err
	}
	return s.guard.Set(ctx, tok)
}

// GetToken reads the auth token. Absent or unavailable both yield an
// empty string; the general tier is never consulted.
func (s *Store) GetToken(ctx context.Context) (string, error) {
	if err := s.checkReady(); err != nil {
		return "", err
	}
	return s.guard.Get(ctx), nil
}

// ClearToken removes the token from the secure tier and purges any
// legacy copy from the general tier.
func (s *Store) ClearToken(ctx context.Context) error {
	if err := s.checkReady(); err != nil {
		return err
	}
	return s.guard.Clear(ctx)
}

// SetUserData stores the user profile as JSON under a sensitive key.
func (s *Store) SetUserData(ctx context.Context, v any) error {
	if err := s.checkReady(); err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to serialize user data: %w", err)
	}
	return s.router.Write(ctx, userDataKey, string(data), 0)
}

// GetUserData unmarshals the stored user profile into dest. It
// returns found=false when nothing is stored.
func (s *Store) GetUserData(ctx context.Context, dest any) (bool, error) {
	if err := s.checkReady(); err != nil {
		return false, err
	}

	raw, found, err := s.router.Read(ctx, userDataKey)
	if err != nil {
		logrus.Debug("tierstore: user data read degraded to miss: ", err)
		return false, nil
	}
	if !found {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("failed to parse user data: %w", err)
	}
	return true, nil
}

// ClearAuth sweeps every auth-pattern key from both backends and the
// cache. It reports overall success only if every sub-operation
// succeeded, yet still performs every possible cleanup step.
//
// The sweep finds keys through the credential key, the general tier's
// listing, and the cache; the secure backend has no enumeration, so a
// sensitive key held only there is missed once its cache entry has
// aged out.
func (s *Store) ClearAuth(ctx context.Context) error {
	if err := s.checkReady(); err != nil {
		return err
	}
	return s.router.SweepAuth(ctx)
}

// Stats returns a snapshot of store health.
func (s *Store) Stats(ctx context.Context) Stats {
	if err := s.checkReady(); err != nil {
		return Stats{}
	}
	return Stats{
		TotalKeys:       s.router.TotalKeys(ctx),
		CacheSize:       s.router.CacheSize(),
		SecureAvailable: s.router.SecureAvailable(ctx),
		CacheHitRate:    s.router.CacheHitRate(),
	}
}

// Destroy tears the store down: pending batched operations are
// rejected, the cache is cleared, and every later call fails fast
// with ErrStoreClosed. Destroy is idempotent.
func (s *Store) Destroy() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.queue.Close()
	s.router.ClearCache()
	return nil
}

// applyBatched runs one queued operation through the direct router
// path during a flush.
func (s *Store) applyBatched(ctx context.Context, op *batch.Operation) error {
	switch op.Kind {
	case batch.KindSet:
		return s.router.Write(ctx, op.Key, op.Value, op.TTL)
	case batch.KindRemove:
		return s.router.Remove(ctx, op.Key)
	default:
		return fmt.Errorf("unknown batched operation kind: %d", op.Kind)
	}
}
