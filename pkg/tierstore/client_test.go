package tierstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gostash/tierstore/internal/backend"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- c.Now().Add(d)
	return ch
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	store   *Store
	secure  *backend.MemorySecure
	general *backend.MemoryGeneral
	clock   *fakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := newFakeClock()
	secure := backend.NewMemorySecure()
	general := backend.NewMemoryGeneral()

	cfg := DefaultConfig()
	cfg.Batch.Window = 20 * time.Millisecond
	cfg.Batch.MaxDelay = 200 * time.Millisecond

	store, err := New(cfg, secure, general, WithClock(clock))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Destroy() })

	return &harness{store: store, secure: secure, general: general, clock: clock}
}

func TestRoundTripWithSecureUp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.store.SetItem(ctx, "theme", "dark", SetOptions{}); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}
	v, found, err := h.store.GetItem(ctx, "theme")
	if err != nil || !found || v != "dark" {
		t.Fatalf("GetItem = (%q, %v, %v), want (dark, true, nil)", v, found, err)
	}
}

func TestRoundTripWithSecureDown(t *testing.T) {
	h := newHarness(t)
	h.secure.SetUnavailable(true)
	ctx := context.Background()

	if err := h.store.SetItem(ctx, "refresh_token", "r1", SetOptions{}); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}
	v, found, err := h.store.GetItem(ctx, "refresh_token")
	if err != nil || !found || v != "r1" {
		t.Fatalf("GetItem = (%q, %v, %v), want (r1, true, nil)", v, found, err)
	}
}

func TestSecurityInvariantSecureDown(t *testing.T) {
	h := newHarness(t)
	h.secure.SetUnavailable(true)
	ctx := context.Background()

	// setItem of an ordinary key succeeds and is retrievable.
	if err := h.store.SetItem(ctx, "theme", "dark", SetOptions{}); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}
	if v, found, _ := h.store.GetItem(ctx, "theme"); !found || v != "dark" {
		t.Fatal("ordinary key should survive a secure outage")
	}

	// setToken must throw, and getToken must stay empty: the token
	// is never served from the general tier.
	if err := h.store.SetToken(ctx, "abc123"); !errors.Is(err, ErrSecureStorageUnavailable) {
		t.Fatalf("SetToken error = %v, want ErrSecureStorageUnavailable", err)
	}
	tok, err := h.store.GetToken(ctx)
	if err != nil || tok != "" {
		t.Fatalf("GetToken = (%q, %v), want empty", tok, err)
	}
	if h.general.Has("auth_token") {
		t.Fatal("token leaked to the general tier")
	}
}

func TestRemoveItemIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.store.SetItem(ctx, "theme", "dark", SetOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := h.store.RemoveItem(ctx, "theme", RemoveOptions{}); err != nil {
		t.Fatalf("first RemoveItem failed: %v", err)
	}
	if err := h.store.RemoveItem(ctx, "theme", RemoveOptions{}); err != nil {
		t.Fatalf("RemoveItem on an absent key should still succeed: %v", err)
	}
}

func TestBatchedWritesCoalesceAndSettle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 3)
	keys := []string{"a", "b", "c"}
	for i, key := range keys {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			errs[i] = h.store.SetItem(ctx, key, "v-"+key, SetOptions{Batch: true})
		}(i, key)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("batched write %d failed: %v", i, err)
		}
	}
	for _, key := range keys {
		v, found, err := h.store.GetItem(ctx, key)
		if err != nil || !found || v != "v-"+key {
			t.Fatalf("GetItem(%s) = (%q, %v, %v)", key, v, found, err)
		}
	}
}

func TestOutageAndRecovery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.store.SetItem(ctx, "profile", "p1", SetOptions{}); err != nil {
		t.Fatal(err)
	}

	// Both backends go down; the cached copy ages out.
	h.secure.SetUnavailable(true)
	h.general.Fail(errors.New("disk io error"))
	h.clock.advance(6 * time.Minute)

	if _, found, err := h.store.GetItem(ctx, "profile"); found || err != nil {
		t.Fatalf("GetItem during outage = (found=%v, err=%v), want a silent miss", found, err)
	}

	// Backends recover; the real value is re-queried.
	h.secure.SetUnavailable(false)
	h.general.Fail(nil)
	h.clock.advance(31 * time.Second) // let the breaker cooldown lapse

	v, found, err := h.store.GetItem(ctx, "profile")
	if err != nil || !found || v != "p1" {
		t.Fatalf("GetItem after recovery = (%q, %v, %v), want (p1, true, nil)", v, found, err)
	}
}

func TestUserDataRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	type profile struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}

	var absent profile
	if found, err := h.store.GetUserData(ctx, &absent); err != nil || found {
		t.Fatalf("GetUserData on empty store = (%v, %v)", found, err)
	}

	in := profile{Name: "Ada", Email: "ada@example.com"}
	if err := h.store.SetUserData(ctx, in); err != nil {
		t.Fatalf("SetUserData failed: %v", err)
	}

	var out profile
	found, err := h.store.GetUserData(ctx, &out)
	if err != nil || !found {
		t.Fatalf("GetUserData = (%v, %v)", found, err)
	}
	if out != in {
		t.Fatalf("GetUserData = %+v, want %+v", out, in)
	}
}

func TestClearAuthSweepsEverything(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.store.SetItem(ctx, "theme", "dark", SetOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := h.store.SetItem(ctx, "refresh_token", "r1", SetOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := h.store.SetToken(ctx, "abc123"); err != nil {
		t.Fatal(err)
	}

	if err := h.store.ClearAuth(ctx); err != nil {
		t.Fatalf("ClearAuth failed: %v", err)
	}

	if tok, _ := h.store.GetToken(ctx); tok != "" {
		t.Error("token survived ClearAuth")
	}
	if _, found, _ := h.store.GetItem(ctx, "refresh_token"); found {
		t.Error("sensitive key survived ClearAuth")
	}
	if v, found, _ := h.store.GetItem(ctx, "theme"); !found || v != "dark" {
		t.Error("ordinary key was swept by ClearAuth")
	}
}

func TestStats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.store.SetItem(ctx, "theme", "dark", SetOptions{}); err != nil {
		t.Fatal(err)
	}
	h.store.GetItem(ctx, "theme") // cache hit

	stats := h.store.Stats(ctx)
	if stats.TotalKeys != 1 {
		t.Errorf("TotalKeys = %d, want 1", stats.TotalKeys)
	}
	if stats.CacheSize != 1 {
		t.Errorf("CacheSize = %d, want 1", stats.CacheSize)
	}
	if !stats.SecureAvailable {
		t.Error("SecureAvailable = false, want true")
	}
	if stats.CacheHitRate <= 0 {
		t.Errorf("CacheHitRate = %v, want > 0", stats.CacheHitRate)
	}
}

func TestDestroyFailsFast(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.store.Destroy(); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	// Idempotent.
	if err := h.store.Destroy(); err != nil {
		t.Fatalf("second Destroy failed: %v", err)
	}

	sets := h.general.SetCalls
	if err := h.store.SetItem(ctx, "theme", "dark", SetOptions{}); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("SetItem after Destroy = %v, want ErrStoreClosed", err)
	}
	if _, _, err := h.store.GetItem(ctx, "theme"); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("GetItem after Destroy should fail fast, got %v", err)
	}
	if h.general.SetCalls != sets {
		t.Error("a call after Destroy reached a backend")
	}
}

func TestOperationsBeforeInitFailFast(t *testing.T) {
	store, err := New(DefaultConfig(), backend.NewMemorySecure(), backend.NewMemoryGeneral())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Destroy()

	if _, _, err := store.GetItem(context.Background(), "theme"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("GetItem before Init = %v, want ErrNotInitialized", err)
	}
}

func TestInitHonorsCancellation(t *testing.T) {
	store, err := New(DefaultConfig(), backend.NewMemorySecure(), backend.NewMemoryGeneral())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Destroy()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.Init(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Init with cancelled context = %v, want context.Canceled", err)
	}

	// A later Init with a live context must succeed cleanly.
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("Init retry failed: %v", err)
	}
}

func TestOversizedValueSurfacesValidationError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limits.MaxValueSize = 8
	general := backend.NewMemoryGeneral()
	store, err := New(cfg, backend.NewMemorySecure(), general)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer store.Destroy()

	err = store.SetItem(context.Background(), "theme", "far too large a value", SetOptions{})
	if !errors.Is(err, ErrValueTooLarge) {
		t.Fatalf("error = %v, want ErrValueTooLarge", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	cfg.Batch.MaxDelay = 10 * time.Millisecond
	cfg.Batch.Window = 100 * time.Millisecond
	if err := cfg.Validate(); err == nil {
		t.Fatal("max_delay shorter than window should fail validation")
	}
}
