package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gostash/tierstore/internal/breaker"
	"github.com/gostash/tierstore/internal/cache"
	"github.com/gostash/tierstore/internal/classify"
	"github.com/gostash/tierstore/internal/core"
)

var (
	// ErrValueTooLarge is returned when a serialized value exceeds
	// the configured maximum size. Checked before any I/O.
	ErrValueTooLarge = errors.New("value exceeds maximum serialized size")

	// ErrBackendUnavailable is returned when every tier a key is
	// allowed to use is unavailable or failed.
	ErrBackendUnavailable = errors.New("backend unavailable")
)

const (
	// DefaultCallTimeout bounds every individual backend call.
	DefaultCallTimeout = 3 * time.Second

	// DefaultMaxValueSize is the maximum serialized value length.
	DefaultMaxValueSize = 1 << 20
)

// Policy maps a key class to the ordered backend tiers allowed to
// hold it. The security invariant of the whole layer is data here,
// not control flow: the credential row has no general-tier fallback.
type Policy map[core.KeyClass][]core.Tier

// DefaultPolicy returns the standard tier policy.
func DefaultPolicy() Policy {
	return Policy{
		core.ClassOrdinary:   {core.TierGeneral},
		core.ClassSensitive:  {core.TierSecure, core.TierGeneral},
		core.ClassCredential: {core.TierSecure},
	}
}

// Config contains configuration for the tiered store router.
type Config struct {
	// Policy is the per-class tier policy. Defaults to DefaultPolicy.
	Policy Policy

	// CallTimeout bounds each backend call. The call and the timeout
	// race; whichever fires first cancels the other.
	CallTimeout time.Duration

	// MaxValueSize is the maximum serialized value length in bytes.
	MaxValueSize int
}

// Router dispatches reads and writes to the secure and general
// backends according to key classification, backend availability and
// the tier policy. It owns the read cache and reports every backend
// outcome to the availability monitor.
type Router struct {
	secure     core.SecureBackend
	general    core.GeneralBackend
	classifier *classify.Classifier
	monitor    *breaker.Monitor
	cache      *cache.Cache
	clock      core.Clock
	inflight   *inflightGroup

	policy       Policy
	callTimeout  time.Duration
	maxValueSize int
}

// New creates a router over the two backends. Zero-value config
// fields fall back to the defaults.
func New(
	secure core.SecureBackend,
	general core.GeneralBackend,
	classifier *classify.Classifier,
	monitor *breaker.Monitor,
	readCache *cache.Cache,
	clock core.Clock,
	config Config,
) *Router {
	if config.Policy == nil {
		config.Policy = DefaultPolicy()
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = DefaultCallTimeout
	}
	if config.MaxValueSize <= 0 {
		config.MaxValueSize = DefaultMaxValueSize
	}
	return &Router{
		secure:       secure,
		general:      general,
		classifier:   classifier,
		monitor:      monitor,
		cache:        readCache,
		clock:        clock,
		inflight:     newInflightGroup(),
		policy:       config.Policy,
		callTimeout:  config.CallTimeout,
		maxValueSize: config.MaxValueSize,
	}
}

// Read returns the value for a key, consulting the cache first and
// then the tiers the key's class allows. A miss is (found=false,
// err=nil); err is non-nil only when an attempted backend call failed
// and no tier was left to try.
func (r *Router) Read(ctx context.Context, key string) (string, bool, error) {
	r.cache.PurgeExpired()
	if v, ok := r.cache.Get(key); ok {
		return v, true, nil
	}

	// An identical read already in flight is joined, not raced.
	return r.inflight.do(ctx, key, func() (string, bool, error) {
		return r.readTiers(ctx, key)
	})
}

func (r *Router) readTiers(ctx context.Context, key string) (string, bool, error) {
	class := r.classifier.Classify(key)
	var lastErr error

	for _, tier := range r.policy[class] {
		if !r.tierAvailable(ctx, tier) {
			logrus.Debugf("tierstore: skipping unavailable %s tier for read of %q", tier, key)
			continue
		}

		raw, err := r.tierGet(ctx, tier, key)
		if errors.Is(err, core.ErrKeyNotFound) {
			r.monitor.RecordSuccess(tier)
			continue
		}
		if err != nil {
			r.monitor.RecordFailure(tier)
			lastErr = fmt.Errorf("%s tier read of %q failed: %w", tier, key, err)
			logrus.Debug("tierstore: ", lastErr)
			continue
		}
		r.monitor.RecordSuccess(tier)

		value, expiresAt, expired := unwrapTTL(raw, r.clock.Now())
		if expired {
			// A stale envelope is absent; clean it up best-effort.
			if derr := r.tierDelete(ctx, tier, key); derr != nil {
				logrus.Debugf("tierstore: failed to purge expired %q from %s tier: %v", key, tier, derr)
			}
			continue
		}

		r.cachePut(key, value, expiresAt)
		return value, true, nil
	}

	return "", false, lastErr
}

// Write stores a value under a key on the first tier its class allows
// that accepts it. An optional TTL wraps the value in an expiry
// envelope for backends without native expiry. A successful write
// updates the cache with the pre-serialization value.
func (r *Router) Write(ctx context.Context, key, value string, ttl time.Duration) error {
	r.cache.PurgeExpired()

	serialized := value
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = r.clock.Now().Add(ttl)
		wrapped, err := wrapTTL(value, expiresAt)
		if err != nil {
			return fmt.Errorf("failed to build ttl envelope for %q: %w", key, err)
		}
		serialized = wrapped
	}

	// The size limit applies to what actually hits the backend, the
	// envelope included.
	if len(serialized) > r.maxValueSize {
		return fmt.Errorf("%w: %d bytes for key %q", ErrValueTooLarge, len(serialized), key)
	}

	class := r.classifier.Classify(key)
	var lastErr error

	for _, tier := range r.policy[class] {
		if !r.tierAvailable(ctx, tier) {
			lastErr = fmt.Errorf("%w: %s tier", ErrBackendUnavailable, tier)
			continue
		}

		if err := r.tierSet(ctx, tier, key, serialized); err != nil {
			r.monitor.RecordFailure(tier)
			lastErr = fmt.Errorf("%s tier write of %q failed: %w", tier, key, err)
			logrus.Debug("tierstore: ", lastErr)
			continue
		}
		r.monitor.RecordSuccess(tier)
		r.cachePut(key, value, expiresAt)
		return nil
	}

	if lastErr == nil {
		lastErr = ErrBackendUnavailable
	}
	return lastErr
}

// Remove deletes a key from both backends regardless of its class; a
// stale secret must never linger on either tier. Partial failures are
// aggregated, never short-circuited, so one backend's failure does
// not block cleanup of the other. Removing an absent key succeeds.
func (r *Router) Remove(ctx context.Context, key string) error {
	r.cache.Delete(key)

	var errs []error
	for _, tier := range []core.Tier{core.TierSecure, core.TierGeneral} {
		if err := r.tierDelete(ctx, tier, key); err != nil {
			r.monitor.RecordFailure(tier)
			errs = append(errs, fmt.Errorf("%s tier delete of %q failed: %w", tier, key, err))
			continue
		}
		r.monitor.RecordSuccess(tier)
	}
	return errors.Join(errs...)
}

// cachePut fills the cache, capping the entry's lifetime at the
// value's own expiry when it has one.
func (r *Router) cachePut(key, value string, expiresAt time.Time) {
	if expiresAt.IsZero() {
		r.cache.Put(key, value)
		return
	}
	r.cache.PutUntil(key, value, expiresAt)
}

// SweepAuth removes every auth-pattern key from both backends and the
// cache. Failures are aggregated; every possible cleanup step still
// runs regardless of earlier failures.
//
// Candidates are the credential key, the general tier's listing, and
// the cache. The secure contract has no enumeration, so a sensitive
// key held only on the secure tier is unreachable once its cache
// entry ages out.
func (r *Router) SweepAuth(ctx context.Context) error {
	var errs []error

	targets := map[string]struct{}{
		r.classifier.CredentialKey(): {},
	}

	keys, err := r.generalList(ctx)
	if err != nil {
		r.monitor.RecordFailure(core.TierGeneral)
		errs = append(errs, fmt.Errorf("failed to list general tier keys: %w", err))
	} else {
		r.monitor.RecordSuccess(core.TierGeneral)
		for _, key := range keys {
			if r.classifier.Classify(key) != core.ClassOrdinary {
				targets[key] = struct{}{}
			}
		}
	}

	for _, key := range r.cache.Keys() {
		if r.classifier.Classify(key) != core.ClassOrdinary {
			targets[key] = struct{}{}
		}
	}

	for key := range targets {
		if err := r.Remove(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SecureAvailable reports whether the secure tier is currently usable.
func (r *Router) SecureAvailable(ctx context.Context) bool {
	return r.tierAvailable(ctx, core.TierSecure)
}

// TotalKeys returns a best-effort count of keys on the general tier.
func (r *Router) TotalKeys(ctx context.Context) int {
	keys, err := r.generalList(ctx)
	if err != nil {
		return 0
	}
	return len(keys)
}

// CacheSize returns the current number of cached entries.
func (r *Router) CacheSize() int {
	return r.cache.Len()
}

// CacheHitRate returns the cache hit rate observed so far.
func (r *Router) CacheHitRate() float64 {
	return r.cache.HitRate()
}

// ClearCache drops every cached entry.
func (r *Router) ClearCache() {
	r.cache.Clear()
}

// tierAvailable consults the breaker and, for the secure tier, the
// backend's own availability signal.
func (r *Router) tierAvailable(ctx context.Context, tier core.Tier) bool {
	if !r.monitor.IsAvailable(tier) {
		return false
	}
	if tier == core.TierSecure {
		callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
		defer cancel()
		return r.secure.IsAvailable(callCtx)
	}
	return true
}

func (r *Router) tierGet(ctx context.Context, tier core.Tier, key string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	if tier == core.TierSecure {
		return r.secure.Get(callCtx, key)
	}
	return r.general.Get(callCtx, key)
}

func (r *Router) tierSet(ctx context.Context, tier core.Tier, key, value string) error {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	if tier == core.TierSecure {
		return r.secure.Set(callCtx, key, value)
	}
	return r.general.Set(callCtx, key, value)
}

func (r *Router) tierDelete(ctx context.Context, tier core.Tier, key string) error {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	if tier == core.TierSecure {
		return r.secure.Delete(callCtx, key)
	}
	return r.general.Delete(callCtx, key)
}

func (r *Router) generalList(ctx context.Context) ([]string, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	return r.general.ListKeys(callCtx)
}
