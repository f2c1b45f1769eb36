package tierstore

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/gostash/tierstore/internal/backend"
)

// Config represents the root configuration for a tierstore instance.
type Config struct {
	// Cache configures the in-memory TTL read cache.
	Cache CacheConfig `yaml:"cache" json:"cache"`

	// Breaker configures the per-backend availability monitor.
	Breaker BreakerConfig `yaml:"breaker" json:"breaker"`

	// Batch configures the batched write queue.
	Batch BatchConfig `yaml:"batch" json:"batch"`

	// Limits configures value-size and per-call bounds.
	Limits LimitsConfig `yaml:"limits" json:"limits"`

	// Classify configures key classification rules.
	Classify ClassifyConfig `yaml:"classify" json:"classify"`

	// Backends configures backend construction for deployments that
	// build their backends through the factory registry rather than
	// injecting them directly.
	Backends BackendsConfig `yaml:"backends" json:"backends"`
}

// CacheConfig contains configuration for the read cache.
type CacheConfig struct {
	// TTL is how long a cached entry stays valid.
	TTL time.Duration `yaml:"ttl" json:"ttl" env:"TIERSTORE_CACHE_TTL"`

	// MaxSize is the entry count beyond which the oldest entries are
	// evicted.
	MaxSize int `yaml:"max_size" json:"max_size" env:"TIERSTORE_CACHE_MAX_SIZE"`
}

// BreakerConfig contains configuration for the availability monitor.
type BreakerConfig struct {
	// FailureThreshold is the consecutive failure count that opens
	// the breaker.
	FailureThreshold int `yaml:"failure_threshold" json:"failure_threshold" env:"TIERSTORE_BREAKER_THRESHOLD"`

	// Cooldown is how long an open breaker blocks attempts before
	// the backend is optimistically retried.
	Cooldown time.Duration `yaml:"cooldown" json:"cooldown" env:"TIERSTORE_BREAKER_COOLDOWN"`
}

// BatchConfig contains configuration for the batched write queue.
type BatchConfig struct {
	// Window is the rolling coalescing delay.
	Window time.Duration `yaml:"window" json:"window" env:"TIERSTORE_BATCH_WINDOW"`

	// MaxDelay caps the total delay from the first queued operation
	// to the flush.
	MaxDelay time.Duration `yaml:"max_delay" json:"max_delay" env:"TIERSTORE_BATCH_MAX_DELAY"`

	// MaxPending is the maximum number of queued operations.
	MaxPending int `yaml:"max_pending" json:"max_pending" env:"TIERSTORE_BATCH_MAX_PENDING"`
}

// LimitsConfig contains value-size and timing bounds.
type LimitsConfig struct {
	// MaxValueSize is the maximum serialized value length in bytes,
	// checked before any I/O.
	MaxValueSize int `yaml:"max_value_size" json:"max_value_size" env:"TIERSTORE_MAX_VALUE_SIZE"`

	// CallTimeout bounds each individual backend call.
	CallTimeout time.Duration `yaml:"call_timeout" json:"call_timeout" env:"TIERSTORE_CALL_TIMEOUT"`
}

// ClassifyConfig contains key classification rules.
type ClassifyConfig struct {
	// CredentialKey is the exact key name holding the auth token.
	CredentialKey string `yaml:"credential_key" json:"credential_key" env:"TIERSTORE_CREDENTIAL_KEY"`

	// SensitivePatterns are case-insensitive substrings that mark a
	// key as sensitive.
	SensitivePatterns []string `yaml:"sensitive_patterns" json:"sensitive_patterns" env:"TIERSTORE_SENSITIVE_PATTERNS"`
}

// BackendsConfig configures backend construction.
type BackendsConfig struct {
	// Secure configures the secure backend ("memory", "securebolt").
	Secure BackendConfig `yaml:"secure" json:"secure"`

	// General configures the general backend ("memory", "bolt",
	// "redis", "dynamodb").
	General BackendConfig `yaml:"general" json:"general"`
}

// BackendConfig configures one backend.
type BackendConfig struct {
	Type      string `yaml:"type" json:"type"`
	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty"`

	// File-backed stores.
	Path    string `yaml:"path,omitempty" json:"path,omitempty"`
	Bucket  string `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	SealKey string `yaml:"seal_key,omitempty" json:"seal_key,omitempty"`

	// Redis.
	Endpoints    []string      `yaml:"endpoints,omitempty" json:"endpoints,omitempty"`
	Password     string        `yaml:"password,omitempty" json:"password,omitempty"`
	DB           int           `yaml:"db,omitempty" json:"db,omitempty"`
	DialTimeout  time.Duration `yaml:"dial_timeout,omitempty" json:"dial_timeout,omitempty"`
	ReadTimeout  time.Duration `yaml:"read_timeout,omitempty" json:"read_timeout,omitempty"`
	WriteTimeout time.Duration `yaml:"write_timeout,omitempty" json:"write_timeout,omitempty"`

	// DynamoDB.
	Region          string `yaml:"region,omitempty" json:"region,omitempty"`
	TableName       string `yaml:"table_name,omitempty" json:"table_name,omitempty"`
	Endpoint        string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" json:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" json:"secret_access_key,omitempty"`
}

// toFactory converts a public backend config to the internal factory
// config.
func (b BackendConfig) toFactory() backend.Config {
	return backend.Config{
		Type:            b.Type,
		Namespace:       b.Namespace,
		Path:            b.Path,
		Bucket:          b.Bucket,
		SealKey:         b.SealKey,
		Endpoints:       b.Endpoints,
		Password:        b.Password,
		DB:              b.DB,
		DialTimeout:     b.DialTimeout,
		ReadTimeout:     b.ReadTimeout,
		WriteTimeout:    b.WriteTimeout,
		Region:          b.Region,
		TableName:       b.TableName,
		Endpoint:        b.Endpoint,
		AccessKeyID:     b.AccessKeyID,
		SecretAccessKey: b.SecretAccessKey,
	}
}

// DefaultConfig returns a configuration with sensible defaults and
// in-memory backends.
func DefaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			TTL:     5 * time.Minute,
			MaxSize: 50,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 3,
			Cooldown:         30 * time.Second,
		},
		Batch: BatchConfig{
			Window:     100 * time.Millisecond,
			MaxDelay:   500 * time.Millisecond,
			MaxPending: 1000,
		},
		Limits: LimitsConfig{
			MaxValueSize: 1 << 20,
			CallTimeout:  3 * time.Second,
		},
		Classify: ClassifyConfig{},
		Backends: BackendsConfig{
			Secure:  BackendConfig{Type: "memory"},
			General: BackendConfig{Type: "memory"},
		},
	}
}

// LoadConfig reads a YAML config file, applies environment variable
// overrides, and validates the result.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must be non-negative, got: %v", c.Cache.TTL)
	}
	if c.Cache.MaxSize < 0 {
		return fmt.Errorf("cache.max_size must be non-negative, got: %d", c.Cache.MaxSize)
	}
	if c.Breaker.FailureThreshold < 0 {
		return fmt.Errorf("breaker.failure_threshold must be non-negative, got: %d", c.Breaker.FailureThreshold)
	}
	if c.Breaker.Cooldown < 0 {
		return fmt.Errorf("breaker.cooldown must be non-negative, got: %v", c.Breaker.Cooldown)
	}
	if c.Batch.Window < 0 {
		return fmt.Errorf("batch.window must be non-negative, got: %v", c.Batch.Window)
	}
	if c.Batch.MaxDelay > 0 && c.Batch.MaxDelay < c.Batch.Window {
		return fmt.Errorf("batch.max_delay (%v) must not be shorter than batch.window (%v)", c.Batch.MaxDelay, c.Batch.Window)
	}
	if c.Limits.MaxValueSize < 0 {
		return fmt.Errorf("limits.max_value_size must be non-negative, got: %d", c.Limits.MaxValueSize)
	}
	if c.Limits.CallTimeout < 0 {
		return fmt.Errorf("limits.call_timeout must be non-negative, got: %v", c.Limits.CallTimeout)
	}
	return nil
}
