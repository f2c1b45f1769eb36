package tierstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tierstore.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfigFile(t, `
cache:
  ttl: 1m
  max_size: 10
breaker:
  failure_threshold: 5
  cooldown: 45s
batch:
  window: 50ms
  max_delay: 250ms
classify:
  credential_key: master_key
backends:
  general:
    type: bolt
    path: /tmp/general.db
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Cache.TTL != time.Minute || cfg.Cache.MaxSize != 10 {
		t.Errorf("cache = %+v, want ttl=1m max_size=10", cfg.Cache)
	}
	if cfg.Breaker.FailureThreshold != 5 || cfg.Breaker.Cooldown != 45*time.Second {
		t.Errorf("breaker = %+v, want threshold=5 cooldown=45s", cfg.Breaker)
	}
	if cfg.Batch.Window != 50*time.Millisecond || cfg.Batch.MaxDelay != 250*time.Millisecond {
		t.Errorf("batch = %+v, want window=50ms max_delay=250ms", cfg.Batch)
	}
	if cfg.Classify.CredentialKey != "master_key" {
		t.Errorf("credential_key = %q, want master_key", cfg.Classify.CredentialKey)
	}
	if cfg.Backends.General.Type != "bolt" || cfg.Backends.General.Path != "/tmp/general.db" {
		t.Errorf("general backend = %+v, want bolt at /tmp/general.db", cfg.Backends.General)
	}

	// Fields the file omits keep their defaults.
	if cfg.Limits.MaxValueSize != 1<<20 {
		t.Errorf("max_value_size = %d, want default", cfg.Limits.MaxValueSize)
	}
	if cfg.Backends.Secure.Type != "memory" {
		t.Errorf("secure backend type = %q, want memory", cfg.Backends.Secure.Type)
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
cache:
  ttl: 1m
  max_size: 10
`)
	t.Setenv("TIERSTORE_CACHE_MAX_SIZE", "99")
	t.Setenv("TIERSTORE_BREAKER_COOLDOWN", "90s")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Cache.MaxSize != 99 {
		t.Errorf("max_size = %d, want the env override 99", cfg.Cache.MaxSize)
	}
	if cfg.Cache.TTL != time.Minute {
		t.Errorf("ttl = %v, want the file value 1m", cfg.Cache.TTL)
	}
	if cfg.Breaker.Cooldown != 90*time.Second {
		t.Errorf("cooldown = %v, want the env override 90s", cfg.Breaker.Cooldown)
	}
}

func TestLoadConfigWithoutFile(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Cache.TTL != 5*time.Minute {
		t.Errorf("ttl = %v, want the default 5m", cfg.Cache.TTL)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	path := writeConfigFile(t, `
batch:
  window: 100ms
  max_delay: 10ms
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("max_delay shorter than window should fail validation")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("a missing config file should be an error")
	}
}
