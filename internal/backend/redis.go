package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/gostash/tierstore/internal/core"
)

// RedisBackend implements core.GeneralBackend using Redis. Keys are
// prefixed with a namespace so ListKeys only sees this store's keys.
type RedisBackend struct {
	client    *redis.Client
	namespace string
	closed    bool
}

// NewRedisBackend creates a Redis-backed general backend and verifies
// the connection with a ping.
func NewRedisBackend(endpoints []string, password string, db int, namespace string, dialTimeout, readTimeout, writeTimeout time.Duration) (*RedisBackend, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("at least one endpoint is required")
	}
	if namespace == "" {
		namespace = "tierstore"
	}

	opts := &redis.Options{
		Addr:         endpoints[0],
		Password:     password,
		DB:           db,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisBackend{client: client, namespace: namespace}, nil
}

func (r *RedisBackend) fullKey(key string) string {
	return r.namespace + ":" + key
}

// Get retrieves a value by key.
func (r *RedisBackend) Get(ctx context.Context, key string) (string, error) {
	if r.closed {
		return "", fmt.Errorf("redis backend is closed")
	}

	val, err := r.client.Get(ctx, r.fullKey(key)).Result()
	if err == redis.Nil {
		return "", core.ErrKeyNotFound
	}
	if err != nil {
		logrus.Debugf("tierstore: redis get %q failed: %v", key, err)
		return "", fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return val, nil
}

// Set stores a key-value pair.
func (r *RedisBackend) Set(ctx context.Context, key, value string) error {
	if r.closed {
		return fmt.Errorf("redis backend is closed")
	}

	if err := r.client.Set(ctx, r.fullKey(key), value, 0).Err(); err != nil {
		logrus.Debugf("tierstore: redis set %q failed: %v", key, err)
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// Delete removes a key. Absent keys are not an error.
func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	if r.closed {
		return fmt.Errorf("redis backend is closed")
	}

	if err := r.client.Del(ctx, r.fullKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// ListKeys scans the namespace and returns all keys, prefix stripped.
func (r *RedisBackend) ListKeys(ctx context.Context) ([]string, error) {
	if r.closed {
		return nil, fmt.Errorf("redis backend is closed")
	}

	prefix := r.namespace + ":"
	var keys []string
	iter := r.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan keys: %w", err)
	}
	return keys, nil
}

// Close closes the connection to Redis.
func (r *RedisBackend) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.client.Close()
}

// redisGeneralFactory creates Redis general backends.
type redisGeneralFactory struct{}

func (redisGeneralFactory) Type() string { return "redis" }

func (redisGeneralFactory) Validate(config Config) error {
	if len(config.Endpoints) == 0 {
		return fmt.Errorf("at least one endpoint is required for Redis")
	}
	if config.DB < 0 || config.DB > 15 {
		return fmt.Errorf("Redis DB must be between 0 and 15, got: %d", config.DB)
	}
	return nil
}

func (redisGeneralFactory) Create(config Config) (core.GeneralBackend, error) {
	dialTimeout := config.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	readTimeout := config.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 3 * time.Second
	}
	writeTimeout := config.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 3 * time.Second
	}

	store, err := NewRedisBackend(config.Endpoints, config.Password, config.DB, config.Namespace, dialTimeout, readTimeout, writeTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis backend: %w", err)
	}
	return store, nil
}

func init() {
	RegisterGeneralFactory(redisGeneralFactory{})
}
