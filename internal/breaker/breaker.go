package breaker

import (
	"sync"
	"time"

	"github.com/gostash/tierstore/internal/core"
)

const (
	// DefaultFailureThreshold is the number of consecutive failures
	// after which a backend is considered unavailable.
	DefaultFailureThreshold = 3

	// DefaultCooldown is how long an open breaker blocks attempts
	// before the backend is optimistically retried.
	DefaultCooldown = 30 * time.Second
)

// Monitor tracks consecutive failures per backend tier and opens a
// circuit for a cooldown period once the threshold is crossed. It
// only observes outcomes reported by the router; it performs no I/O
// and never fails.
type Monitor struct {
	mu        sync.Mutex
	clock     core.Clock
	threshold int
	cooldown  time.Duration
	states    map[core.Tier]*tierState
}

type tierState struct {
	failures  int
	openUntil time.Time
}

// NewMonitor creates a monitor with the given threshold and cooldown.
// Non-positive values fall back to the defaults.
func NewMonitor(clock core.Clock, threshold int, cooldown time.Duration) *Monitor {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Monitor{
		clock:     clock,
		threshold: threshold,
		cooldown:  cooldown,
		states:    make(map[core.Tier]*tierState),
	}
}

// IsAvailable reports whether the tier should be attempted. Past the
// cooldown, availability is restored optimistically without clearing
// the failure history; only an actual success does that. A backend
// that fails its optimistic retry therefore re-opens immediately
// instead of flapping through the full threshold again.
func (m *Monitor) IsAvailable(tier core.Tier) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.states[tier]
	if !ok || s.failures < m.threshold {
		return true
	}
	return !m.clock.Now().Before(s.openUntil)
}

// RecordFailure records a failed backend call. Crossing the threshold
// opens the breaker for the cooldown period; further failures while
// open push the cooldown out again.
func (m *Monitor) RecordFailure(tier core.Tier) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state(tier)
	s.failures++
	if s.failures >= m.threshold {
		s.openUntil = m.clock.Now().Add(m.cooldown)
	}
}

// RecordSuccess records a successful backend call, closing the
// breaker and resetting the failure count to zero.
func (m *Monitor) RecordSuccess(tier core.Tier) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state(tier)
	s.failures = 0
	s.openUntil = time.Time{}
}

// ConsecutiveFailures returns the current failure count for a tier.
func (m *Monitor) ConsecutiveFailures(tier core.Tier) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.states[tier]
	if !ok {
		return 0
	}
	return s.failures
}

// Reset clears all recorded state for every tier.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = make(map[core.Tier]*tierState)
}

func (m *Monitor) state(tier core.Tier) *tierState {
	s, ok := m.states[tier]
	if !ok {
		s = &tierState{}
		m.states[tier] = s
	}
	return s
}
