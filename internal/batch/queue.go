package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gostash/tierstore/internal/core"
)

var (
	// ErrQueueClosed is returned for every operation still pending
	// when the queue is torn down, and for enqueues after close.
	ErrQueueClosed = errors.New("write queue is closed")

	// ErrQueueFull is returned when the queue is at capacity.
	ErrQueueFull = errors.New("write queue is full")
)

const (
	// DefaultWindow is the rolling delay during which operations
	// coalesce into one flush.
	DefaultWindow = 100 * time.Millisecond

	// DefaultMaxDelay caps how far successive enqueues can push the
	// flush out past the first operation.
	DefaultMaxDelay = 500 * time.Millisecond

	// DefaultMaxPending is the maximum number of queued operations.
	DefaultMaxPending = 1000
)

// Kind is the type of a batched operation.
type Kind int

const (
	// KindSet stores a value.
	KindSet Kind = iota

	// KindRemove deletes a key.
	KindRemove
)

// Operation is a single queued write or remove. Each operation
// settles independently: batching affects only I/O scheduling, never
// correctness or per-key ordering.
type Operation struct {
	Kind  Kind
	Key   string
	Value string
	TTL   time.Duration

	done chan error
}

// Executor applies one operation through the direct, non-batched
// store path during a flush.
type Executor func(ctx context.Context, op *Operation) error

// Config contains configuration for the batched write queue.
type Config struct {
	// Window is the rolling coalescing delay.
	Window time.Duration

	// MaxDelay caps the total delay from the first enqueued
	// operation to the flush.
	MaxDelay time.Duration

	// MaxPending is the maximum number of queued operations.
	MaxPending int
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Window:     DefaultWindow,
		MaxDelay:   DefaultMaxDelay,
		MaxPending: DefaultMaxPending,
	}
}

// Queue coalesces operations enqueued within a rolling window into a
// single flush. Every enqueue inside the window extends it, up to a
// hard cap measured from the first operation of the batch.
type Queue struct {
	clock core.Clock
	exec  Executor

	window     time.Duration
	maxDelay   time.Duration
	maxPending int

	mu         sync.Mutex
	pending    []*Operation
	generation int
	running    bool
	closed     bool
	stopCh     chan struct{}
	wg         sync.WaitGroup

	totalOps     int64
	totalFlushes int64
}

// NewQueue creates a batched write queue. Zero-value config fields
// fall back to the defaults.
func NewQueue(clock core.Clock, exec Executor, config Config) *Queue {
	if config.Window <= 0 {
		config.Window = DefaultWindow
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = DefaultMaxDelay
	}
	if config.MaxPending <= 0 {
		config.MaxPending = DefaultMaxPending
	}
	return &Queue{
		clock:      clock,
		exec:       exec,
		window:     config.Window,
		maxDelay:   config.MaxDelay,
		maxPending: config.MaxPending,
		stopCh:     make(chan struct{}),
	}
}

// Enqueue adds an operation to the current batch and returns a
// channel that receives the operation's outcome exactly once.
func (q *Queue) Enqueue(op *Operation) <-chan error {
	op.done = make(chan error, 1)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		op.done <- ErrQueueClosed
		return op.done
	}
	if len(q.pending) >= q.maxPending {
		q.mu.Unlock()
		op.done <- ErrQueueFull
		return op.done
	}

	q.pending = append(q.pending, op)
	q.generation++
	q.totalOps++
	if !q.running {
		q.running = true
		q.wg.Add(1)
		go q.waitAndFlush(q.clock.Now())
	}
	q.mu.Unlock()

	return op.done
}

// waitAndFlush waits out the rolling window, extending it whenever a
// newer enqueue arrives, then flushes the accumulated batch.
func (q *Queue) waitAndFlush(start time.Time) {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		gen := q.generation
		q.mu.Unlock()

		wait := q.window
		if remaining := q.maxDelay - q.clock.Now().Sub(start); remaining < wait {
			wait = remaining
		}
		if wait > 0 {
			select {
			case <-q.clock.After(wait):
			case <-q.stopCh:
			}
		}

		q.mu.Lock()
		if q.closed {
			q.running = false
			q.mu.Unlock()
			return
		}
		extended := q.generation != gen && q.clock.Now().Sub(start) < q.maxDelay
		if extended {
			q.mu.Unlock()
			continue
		}
		ops := q.pending
		q.pending = nil
		q.running = false
		if len(ops) > 0 {
			q.totalFlushes++
		}
		q.mu.Unlock()

		q.flush(ops)
		return
	}
}

// flush settles each operation with its own outcome.
func (q *Queue) flush(ops []*Operation) {
	for _, op := range ops {
		op.done <- q.exec(context.Background(), op)
	}
}

// Len returns the number of operations waiting for the next flush.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Flushes returns how many non-empty flushes have run.
func (q *Queue) Flushes() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.totalFlushes
}

// Close tears the queue down. All pending operations are rejected
// with ErrQueueClosed rather than left dangling. Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	ops := q.pending
	q.pending = nil
	close(q.stopCh)
	q.mu.Unlock()

	for _, op := range ops {
		op.done <- ErrQueueClosed
	}
	q.wg.Wait()
}
