package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFile_ReturnsDefault(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, path, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if path == "" {
		t.Fatalf("expected config path")
	}
	if got := cfg.Host(); got != DefaultHost {
		t.Fatalf("cfg.Host() = %q, want %q", got, DefaultHost)
	}
	if got := cfg.Port(); got != DefaultPort {
		t.Fatalf("cfg.Port() = %d, want %d", got, DefaultPort)
	}
	if got := cfg.StorageBackend(); got != DefaultStorageBackend {
		t.Fatalf("cfg.StorageBackend() = %q, want %q", got, DefaultStorageBackend)
	}
	if got := cfg.MaxSessions(); got != DefaultMaxSessions {
		t.Fatalf("cfg.MaxSessions() = %d, want %d", got, DefaultMaxSessions)
	}
	if got := cfg.SessionTTL(); got != DefaultSessionTTL {
		t.Fatalf("cfg.SessionTTL() = %v, want %v", got, DefaultSessionTTL)
	}
}

func TestEnsureDefaultConfig_CreatesFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path, err := EnsureDefaultConfig()
	if err != nil {
		t.Fatalf("EnsureDefaultConfig() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file to exist at %s: %v", path, err)
	}

	cfg, gotPath, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if filepath.Clean(gotPath) != filepath.Clean(path) {
		t.Fatalf("Load() path = %s, want %s", gotPath, path)
	}
	if got := cfg.Host(); got != DefaultHost {
		t.Fatalf("cfg.Host() = %q, want %q", got, DefaultHost)
	}
}

func TestLoad_ParsesFullConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	configDir := filepath.Join(home, ".coursepilot")
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	configPath := filepath.Join(configDir, "config.yaml")

	body := "server:\n  host: 0.0.0.0\n  port: 9090\n" +
		"storage:\n  backend: redis\n  redis_addr: 10.0.0.5:6379\n" +
		"completion:\n  endpoint: https://tutor.example.com/chat\n  timeout_seconds: 15\n" +
		"sessions:\n  max_sessions: 4\n  max_messages: 20\n  ttl_hours: 2\n"
	if err := os.WriteFile(configPath, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.Host(); got != "0.0.0.0" {
		t.Fatalf("cfg.Host() = %q, want %q", got, "0.0.0.0")
	}
	if got := cfg.Port(); got != 9090 {
		t.Fatalf("cfg.Port() = %d, want %d", got, 9090)
	}
	if got := cfg.StorageBackend(); got != "redis" {
		t.Fatalf("cfg.StorageBackend() = %q, want %q", got, "redis")
	}
	if got := cfg.RedisAddr(); got != "10.0.0.5:6379" {
		t.Fatalf("cfg.RedisAddr() = %q, want %q", got, "10.0.0.5:6379")
	}
	if got := cfg.CompletionEndpoint(); got != "https://tutor.example.com/chat" {
		t.Fatalf("cfg.CompletionEndpoint() = %q", got)
	}
	if got := cfg.CompletionTimeout(); got != 15*time.Second {
		t.Fatalf("cfg.CompletionTimeout() = %v, want %v", got, 15*time.Second)
	}
	if got := cfg.MaxSessions(); got != 4 {
		t.Fatalf("cfg.MaxSessions() = %d, want %d", got, 4)
	}
	if got := cfg.MaxMessages(); got != 20 {
		t.Fatalf("cfg.MaxMessages() = %d, want %d", got, 20)
	}
	if got := cfg.SessionTTL(); got != 2*time.Hour {
		t.Fatalf("cfg.SessionTTL() = %v, want %v", got, 2*time.Hour)
	}
}

func TestLoad_RejectsBadBackend(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	configDir := filepath.Join(home, ".coursepilot")
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	configPath := filepath.Join(configDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("storage:\n  backend: cassandra\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, _, err := Load(); err == nil {
		t.Fatalf("Load() expected error for unknown backend")
	}
}
