package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"API_ADDR", "POL_STORAGE", "POL_DEBOUNCE_MS", "POL_COMPUTE_TIMEOUT_MS", "LOG_JSON", "MINIO_ENDPOINT"} {
		t.Setenv(key, "")
	}
	cfg := FromEnv()
	if cfg.Addr != ":8787" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.Storage != StorageMemory {
		t.Errorf("Storage = %q", cfg.Storage)
	}
	if cfg.Debounce != 300*time.Millisecond {
		t.Errorf("Debounce = %v", cfg.Debounce)
	}
	if cfg.ComputeTimeout != 30*time.Second {
		t.Errorf("ComputeTimeout = %v", cfg.ComputeTimeout)
	}
	if cfg.LogJSON || cfg.MinioEndpoint != "" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("POL_STORAGE", "Redis")
	t.Setenv("POL_DEBOUNCE_MS", "50")
	t.Setenv("POL_COMPUTE_TIMEOUT_MS", "not-a-number")
	t.Setenv("LOG_JSON", "true")
	t.Setenv("MINIO_USE_SSL", "maybe")

	cfg := FromEnv()
	if cfg.Storage != StorageRedis {
		t.Errorf("Storage = %q", cfg.Storage)
	}
	if cfg.Debounce != 50*time.Millisecond {
		t.Errorf("Debounce = %v", cfg.Debounce)
	}
	if cfg.ComputeTimeout != 30*time.Second {
		t.Errorf("invalid numbers must fall back, got %v", cfg.ComputeTimeout)
	}
	if !cfg.LogJSON {
		t.Error("LogJSON not set")
	}
	if cfg.MinioUseSSL {
		t.Error("invalid bools must fall back")
	}
}

func TestLoadReadsDotEnvWithoutOverriding(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("POL_STATE_KEY=from-file\nAPI_ADDR=:1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("API_ADDR", ":9999")
	t.Setenv("POL_STATE_KEY", "")
	os.Unsetenv("POL_STATE_KEY")

	cfg := Load()
	t.Cleanup(func() { os.Unsetenv("POL_STATE_KEY") })
	if cfg.StateKey != "from-file" {
		t.Errorf("StateKey = %q", cfg.StateKey)
	}
	if cfg.Addr != ":9999" {
		t.Errorf("environment must win over .env, got %q", cfg.Addr)
	}
}
