package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BasePort != 3000 || cfg.ContainerPort != 3000 || cfg.MountTarget != "/game" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.EntryMarker != "index.html" || cfg.DefaultImage != "farrar142/mvix" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.MaxPortRetries != 100 || cfg.RuntimeTimeout != 10*time.Second {
		t.Fatalf("unexpected retry defaults: %+v", cfg)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gamehost.toml")
	data := `
listen_addr = ":9000"
base_port = 4000
runtime_timeout = "3s"
max_port_retries = 7

[registry]
backend = "redis"
redis_addr = "cache:6379"

[log]
level = "debug"
console = false
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GAMEHOST_BASE_PORT", "5000")
	t.Setenv("GAMEHOST_REDIS_PREFIX", "test:")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9000" || cfg.RuntimeTimeout != 3*time.Second || cfg.MaxPortRetries != 7 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.BasePort != 5000 {
		t.Fatalf("BasePort = %d, env should win", cfg.BasePort)
	}
	if cfg.Registry.Backend != BackendRedis || cfg.Registry.RedisAddr != "cache:6379" || cfg.Registry.RedisPrefix != "test:" {
		t.Fatalf("registry = %+v", cfg.Registry)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Console {
		t.Fatalf("log = %+v", cfg.Log)
	}
	// untouched keys keep defaults
	if cfg.MountTarget != "/game" {
		t.Fatalf("MountTarget = %q", cfg.MountTarget)
	}
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Setenv("GAMEHOST_RUNTIME_TIMEOUT", "soon")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "GAMEHOST_RUNTIME_TIMEOUT") {
		t.Fatalf("Load() err = %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.BasePort = 0
	cfg.MaxPortRetries = 0
	cfg.Registry.Backend = "sqlite"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil")
	}
	for _, want := range []string{"base_port", "max_port_retries", "sqlite"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("Validate() = %v, missing %q", err, want)
		}
	}
}
