package backend

import (
	"context"
	"sync"

	"github.com/gostash/tierstore/internal/core"
)

// MemoryGeneral is an in-process general backend. It supports failure
// injection and call counting, which makes it the backend of choice
// for tests and the demo server.
type MemoryGeneral struct {
	mu   sync.Mutex
	data map[string]string

	// FailErr, when non-nil, makes every operation fail with it.
	FailErr error

	// Call counters.
	GetCalls    int
	SetCalls    int
	DeleteCalls int
	ListCalls   int
}

// NewMemoryGeneral creates an empty in-memory general backend.
func NewMemoryGeneral() *MemoryGeneral {
	return &MemoryGeneral{data: make(map[string]string)}
}

// Get retrieves a value by key.
func (m *MemoryGeneral) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GetCalls++
	if m.FailErr != nil {
		return "", m.FailErr
	}
	v, ok := m.data[key]
	if !ok {
		return "", core.ErrKeyNotFound
	}
	return v, nil
}

// Set stores a key-value pair.
func (m *MemoryGeneral) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SetCalls++
	if m.FailErr != nil {
		return m.FailErr
	}
	m.data[key] = value
	return nil
}

// Delete removes a key. Absent keys are not an error.
func (m *MemoryGeneral) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DeleteCalls++
	if m.FailErr != nil {
		return m.FailErr
	}
	delete(m.data, key)
	return nil
}

// ListKeys returns all stored keys.
func (m *MemoryGeneral) ListKeys(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ListCalls++
	if m.FailErr != nil {
		return nil, m.FailErr
	}
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys, nil
}

// Fail makes every subsequent operation fail with err. Pass nil to
// restore normal operation.
func (m *MemoryGeneral) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailErr = err
}

// Has reports whether a key is currently stored, without counting as
// a backend call.
func (m *MemoryGeneral) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

// Raw returns the stored serialized value for a key, bypassing call
// accounting.
func (m *MemoryGeneral) Raw(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

// MemorySecure is an in-process secure backend with the same failure
// injection and call counting as MemoryGeneral, plus a switchable
// availability signal.
type MemorySecure struct {
	mu   sync.Mutex
	data map[string]string

	// Unavailable, when true, makes IsAvailable report false.
	Unavailable bool

	// FailErr, when non-nil, makes every operation fail with it.
	FailErr error

	GetCalls    int
	SetCalls    int
	DeleteCalls int
}

// NewMemorySecure creates an empty in-memory secure backend.
func NewMemorySecure() *MemorySecure {
	return &MemorySecure{data: make(map[string]string)}
}

// Get retrieves a value by key.
func (m *MemorySecure) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GetCalls++
	if m.FailErr != nil {
		return "", m.FailErr
	}
	v, ok := m.data[key]
	if !ok {
		return "", core.ErrKeyNotFound
	}
	return v, nil
}

// Set stores a key-value pair.
func (m *MemorySecure) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SetCalls++
	if m.FailErr != nil {
		return m.FailErr
	}
	m.data[key] = value
	return nil
}

// Delete removes a key. Absent keys are not an error.
func (m *MemorySecure) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DeleteCalls++
	if m.FailErr != nil {
		return m.FailErr
	}
	delete(m.data, key)
	return nil
}

// IsAvailable reports the configured availability signal.
func (m *MemorySecure) IsAvailable(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.Unavailable
}

// SetUnavailable toggles the availability signal.
func (m *MemorySecure) SetUnavailable(unavailable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Unavailable = unavailable
}

// Fail makes every subsequent operation fail with err. Pass nil to
// restore normal operation.
func (m *MemorySecure) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailErr = err
}

// Has reports whether a key is currently stored, without counting as
// a backend call.
func (m *MemorySecure) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

// memoryGeneralFactory creates MemoryGeneral backends.
type memoryGeneralFactory struct{}

func (memoryGeneralFactory) Type() string { return "memory" }

func (memoryGeneralFactory) Validate(config Config) error { return nil }

func (memoryGeneralFactory) Create(config Config) (core.GeneralBackend, error) {
	return NewMemoryGeneral(), nil
}

// memorySecureFactory creates MemorySecure backends.
type memorySecureFactory struct{}

func (memorySecureFactory) Type() string { return "memory" }

func (memorySecureFactory) Validate(config Config) error { return nil }

func (memorySecureFactory) Create(config Config) (core.SecureBackend, error) {
	return NewMemorySecure(), nil
}

func init() {
	RegisterGeneralFactory(memoryGeneralFactory{})
	RegisterSecureFactory(memorySecureFactory{})
}
