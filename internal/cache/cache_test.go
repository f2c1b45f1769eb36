package cache

import (
	"fmt"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- c.now.Add(d)
	return ch
}

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func TestCacheGetPut(t *testing.T) {
	clock := newFakeClock()
	c := New(clock, 5*time.Minute, 50)

	if _, ok := c.Get("missing"); ok {
		t.Fatal("empty cache should miss")
	}

	c.Put("theme", "dark")
	v, ok := c.Get("theme")
	if !ok || v != "dark" {
		t.Fatalf("Get(theme) = (%q, %v), want (dark, true)", v, ok)
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	clock := newFakeClock()
	c := New(clock, 5*time.Minute, 50)

	c.Put("theme", "dark")
	clock.advance(5*time.Minute + time.Second)

	if _, ok := c.Get("theme"); ok {
		t.Fatal("entry older than the TTL must miss")
	}
}

func TestCachePurgeExpired(t *testing.T) {
	clock := newFakeClock()
	c := New(clock, time.Minute, 50)

	c.Put("old", "1")
	clock.advance(2 * time.Minute)
	c.Put("fresh", "2")

	c.PurgeExpired()
	if c.Len() != 1 {
		t.Fatalf("Len = %d after purge, want 1", c.Len())
	}
	if _, ok := c.Get("fresh"); !ok {
		t.Fatal("fresh entry should survive the purge")
	}
}

func TestCacheEvictsOldestFirst(t *testing.T) {
	clock := newFakeClock()
	c := New(clock, time.Hour, 3)

	for i := 0; i < 4; i++ {
		c.Put(fmt.Sprintf("k%d", i), "v")
		clock.advance(time.Second)
	}

	if c.Len() != 3 {
		t.Fatalf("Len = %d, want 3", c.Len())
	}
	if _, ok := c.Get("k0"); ok {
		t.Fatal("oldest entry should have been evicted")
	}
	for i := 1; i < 4; i++ {
		if _, ok := c.Get(fmt.Sprintf("k%d", i)); !ok {
			t.Fatalf("entry k%d should still be cached", i)
		}
	}
}

func TestCacheRePutRefreshesEvictionOrder(t *testing.T) {
	clock := newFakeClock()
	c := New(clock, time.Hour, 2)

	c.Put("a", "1")
	clock.advance(time.Second)
	c.Put("b", "2")
	clock.advance(time.Second)
	c.Put("a", "1b") // refresh: "b" is now the oldest
	clock.advance(time.Second)
	c.Put("c", "3")

	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted as the oldest entry")
	}
	if v, ok := c.Get("a"); !ok || v != "1b" {
		t.Fatalf("Get(a) = (%q, %v), want (1b, true)", v, ok)
	}
}

func TestCachePutUntilHonorsValueExpiry(t *testing.T) {
	clock := newFakeClock()
	c := New(clock, 5*time.Minute, 50)

	c.PutUntil("flash", "hi", clock.Now().Add(50*time.Millisecond))
	if v, ok := c.Get("flash"); !ok || v != "hi" {
		t.Fatalf("Get(flash) = (%q, %v), want (hi, true)", v, ok)
	}

	// The value-level deadline wins over the longer cache TTL.
	clock.advance(100 * time.Millisecond)
	if _, ok := c.Get("flash"); ok {
		t.Fatal("entry served past its value-level expiry")
	}
	c.PurgeExpired()
	if c.Len() != 0 {
		t.Fatalf("Len = %d after purge, want 0", c.Len())
	}
}

func TestCachePutUntilStillBoundByCacheTTL(t *testing.T) {
	clock := newFakeClock()
	c := New(clock, time.Minute, 50)

	// A deadline far beyond the cache TTL does not extend the entry.
	c.PutUntil("flash", "hi", clock.Now().Add(time.Hour))
	clock.advance(2 * time.Minute)
	if _, ok := c.Get("flash"); ok {
		t.Fatal("value-level deadline must not extend the cache TTL")
	}
}

func TestCacheDeleteAndClear(t *testing.T) {
	clock := newFakeClock()
	c := New(clock, time.Hour, 50)

	c.Put("a", "1")
	c.Put("b", "2")
	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("deleted entry should miss")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("Len = %d after Clear, want 0", c.Len())
	}
}

func TestCacheHitRate(t *testing.T) {
	clock := newFakeClock()
	c := New(clock, time.Hour, 50)

	if rate := c.HitRate(); rate != 0 {
		t.Fatalf("HitRate = %v with no lookups, want 0", rate)
	}

	c.Put("a", "1")
	c.Get("a")       // hit
	c.Get("a")       // hit
	c.Get("missing") // miss

	want := 2.0 / 3.0
	if rate := c.HitRate(); rate != want {
		t.Fatalf("HitRate = %v, want %v", rate, want)
	}
}
