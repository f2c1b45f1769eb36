package backend

import (
	"fmt"
	"sync"
	"time"

	"github.com/gostash/tierstore/internal/core"
)

// Config represents the configuration needed to create a backend.
// Supports multiple stores (memory, bolt, redis, dynamodb) through a
// plugin-based factory registry.
type Config struct {
	Type string

	// Namespace prefixes every key on shared stores.
	Namespace string

	// File-backed stores (bolt, securebolt).
	Path   string
	Bucket string

	// SealKey is the hex-encoded 32-byte key used by securebolt.
	SealKey string

	// Redis.
	Endpoints    []string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// DynamoDB.
	Region          string
	TableName       string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// GeneralFactory is the strategy interface for creating general
// backend implementations.
type GeneralFactory interface {
	// Type returns the type identifier for this factory.
	Type() string

	// Validate validates the configuration for this backend type.
	Validate(config Config) error

	// Create creates a new general backend instance.
	Create(config Config) (core.GeneralBackend, error)
}

// SecureFactory is the strategy interface for creating secure
// backend implementations.
type SecureFactory interface {
	// Type returns the type identifier for this factory.
	Type() string

	// Validate validates the configuration for this backend type.
	Validate(config Config) error

	// Create creates a new secure backend instance.
	Create(config Config) (core.SecureBackend, error)
}

var (
	generalRegistry = make(map[string]GeneralFactory)
	secureRegistry  = make(map[string]SecureFactory)
	registryMutex   sync.RWMutex
)

// RegisterGeneralFactory registers a general backend factory.
// Called automatically by each implementation's init() function.
func RegisterGeneralFactory(factory GeneralFactory) {
	if factory == nil || factory.Type() == "" {
		panic("invalid general backend factory")
	}

	registryMutex.Lock()
	defer registryMutex.Unlock()

	if _, exists := generalRegistry[factory.Type()]; exists {
		panic(fmt.Sprintf("general backend factory for type %q is already registered", factory.Type()))
	}
	generalRegistry[factory.Type()] = factory
}

// RegisterSecureFactory registers a secure backend factory.
func RegisterSecureFactory(factory SecureFactory) {
	if factory == nil || factory.Type() == "" {
		panic("invalid secure backend factory")
	}

	registryMutex.Lock()
	defer registryMutex.Unlock()

	if _, exists := secureRegistry[factory.Type()]; exists {
		panic(fmt.Sprintf("secure backend factory for type %q is already registered", factory.Type()))
	}
	secureRegistry[factory.Type()] = factory
}

// CreateGeneral creates a general backend using the factory
// registered for config.Type.
func CreateGeneral(config Config) (core.GeneralBackend, error) {
	if config.Type == "" {
		return nil, fmt.Errorf("general backend type is required")
	}

	registryMutex.RLock()
	factory, exists := generalRegistry[config.Type]
	registryMutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unsupported general backend type: %s", config.Type)
	}
	if err := factory.Validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", config.Type, err)
	}
	return factory.Create(config)
}

// CreateSecure creates a secure backend using the factory registered
// for config.Type.
func CreateSecure(config Config) (core.SecureBackend, error) {
	if config.Type == "" {
		return nil, fmt.Errorf("secure backend type is required")
	}

	registryMutex.RLock()
	factory, exists := secureRegistry[config.Type]
	registryMutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unsupported secure backend type: %s", config.Type)
	}
	if err := factory.Validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", config.Type, err)
	}
	return factory.Create(config)
}

// RegisteredGeneralTypes returns all registered general backend types.
func RegisteredGeneralTypes() []string {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	types := make([]string, 0, len(generalRegistry))
	for t := range generalRegistry {
		types = append(types, t)
	}
	return types
}

// RegisteredSecureTypes returns all registered secure backend types.
func RegisteredSecureTypes() []string {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	types := make([]string, 0, len(secureRegistry))
	for t := range secureRegistry {
		types = append(types, t)
	}
	return types
}
