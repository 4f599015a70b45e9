package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig is read from a YAML file under the user's home directory.
// All fields are optional; defaults are applied by the accessor methods.
//
// Example (~/.coursepilot/config.yaml):
//
// server:
//   host: 127.0.0.1
//   port: 8090
// storage:
//   backend: file          # memory | file | redis
//   data_dir: ~/.coursepilot/data
//   redis_addr: 127.0.0.1:6379
// completion:
//   endpoint: https://api.example.com/ai/tutor
//   api_key: ""
//   timeout_seconds: 60
// sessions:
//   max_sessions: 10
//   max_messages: 50
//   ttl_hours: 24
//
// Notes:
// - If the config file does not exist, Load returns defaults without error.
// - If the config file exists but cannot be parsed, Load returns an error.
// - Port must be between 1 and 65535.

type AppConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Completion CompletionConfig `yaml:"completion"`
	Sessions   SessionConfig    `yaml:"sessions"`
}

type ServerConfig struct {
	Host *string `yaml:"host"`
	Port *int    `yaml:"port"`
}

type StorageConfig struct {
	Backend   *string `yaml:"backend"`
	DataDir   *string `yaml:"data_dir"`
	RedisAddr *string `yaml:"redis_addr"`
}

type CompletionConfig struct {
	Endpoint       *string `yaml:"endpoint"`
	APIKey         *string `yaml:"api_key"`
	TimeoutSeconds *int    `yaml:"timeout_seconds"`
}

type SessionConfig struct {
	MaxSessions *int `yaml:"max_sessions"`
	MaxMessages *int `yaml:"max_messages"`
	TTLHours    *int `yaml:"ttl_hours"`
}

const (
	DefaultHost              = "127.0.0.1"
	DefaultPort              = 8090
	DefaultStorageBackend    = "memory"
	DefaultRedisAddr         = "127.0.0.1:6379"
	DefaultCompletionTimeout = 60 * time.Second
	DefaultMaxSessions       = 10
	DefaultMaxMessages       = 50
	DefaultSessionTTL        = 24 * time.Hour
)

// DefaultPaths returns the config dir and config file path.
func DefaultPaths() (configDir string, configFile string, err error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("get user home dir: %w", err)
	}
	configDir = filepath.Join(home, ".coursepilot")
	configFile = filepath.Join(configDir, "config.yaml")
	return configDir, configFile, nil
}

// Load reads ~/.coursepilot/config.yaml.
// If the file doesn't exist, it returns a default config and nil error.
func Load() (*AppConfig, string, error) {
	_, configFile, err := DefaultPaths()
	if err != nil {
		return nil, "", err
	}

	cfg := &AppConfig{}

	b, err := os.ReadFile(configFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, configFile, nil
		}
		return nil, "", fmt.Errorf("read config file %s: %w", configFile, err)
	}

	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, "", fmt.Errorf("parse yaml config %s: %w", configFile, err)
	}

	// Validate
	if strings.TrimSpace(cfg.Host()) == "" {
		return nil, "", fmt.Errorf("invalid server.host (empty) in %s", configFile)
	}
	if port := cfg.Port(); port < 1 || port > 65535 {
		return nil, "", fmt.Errorf("invalid server.port %d in %s", port, configFile)
	}
	switch cfg.StorageBackend() {
	case "memory", "file", "redis":
	default:
		return nil, "", fmt.Errorf("invalid storage.backend %q in %s", cfg.StorageBackend(), configFile)
	}

	return cfg, configFile, nil
}

// EnsureDefaultConfig writes a default config file if it doesn't already exist.
// It is safe to call on startup.
func EnsureDefaultConfig() (string, error) {
	configDir, configFile, err := DefaultPaths()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(configFile); err == nil {
		return configFile, nil
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", fmt.Errorf("create config dir %s: %w", configDir, err)
	}

	defaultCfg := AppConfig{
		Server:  ServerConfig{Host: ptr(DefaultHost), Port: ptr(DefaultPort)},
		Storage: StorageConfig{Backend: ptr(DefaultStorageBackend)},
	}
	b, err := yaml.Marshal(&defaultCfg)
	if err != nil {
		return "", fmt.Errorf("marshal default config: %w", err)
	}

	// Write with restrictive permissions.
	if err := os.WriteFile(configFile, b, 0o600); err != nil {
		return "", fmt.Errorf("write default config file %s: %w", configFile, err)
	}

	return configFile, nil
}

func (c *AppConfig) Host() string {
	if c == nil || c.Server.Host == nil {
		return DefaultHost
	}
	v := strings.TrimSpace(*c.Server.Host)
	if v == "" {
		return DefaultHost
	}
	return v
}

func (c *AppConfig) Port() int {
	if c == nil || c.Server.Port == nil {
		return DefaultPort
	}
	return *c.Server.Port
}

func (c *AppConfig) StorageBackend() string {
	if c == nil || c.Storage.Backend == nil {
		return DefaultStorageBackend
	}
	v := strings.TrimSpace(*c.Storage.Backend)
	if v == "" {
		return DefaultStorageBackend
	}
	return v
}

// DataDir returns the directory used by the file storage backend.
func (c *AppConfig) DataDir() string {
	if c != nil && c.Storage.DataDir != nil && strings.TrimSpace(*c.Storage.DataDir) != "" {
		return *c.Storage.DataDir
	}
	configDir, _, err := DefaultPaths()
	if err != nil {
		return "data"
	}
	return filepath.Join(configDir, "data")
}

func (c *AppConfig) RedisAddr() string {
	if c == nil || c.Storage.RedisAddr == nil {
		return DefaultRedisAddr
	}
	v := strings.TrimSpace(*c.Storage.RedisAddr)
	if v == "" {
		return DefaultRedisAddr
	}
	return v
}

func (c *AppConfig) CompletionEndpoint() string {
	if c == nil || c.Completion.Endpoint == nil {
		return ""
	}
	return strings.TrimSpace(*c.Completion.Endpoint)
}

func (c *AppConfig) CompletionAPIKey() string {
	if c == nil || c.Completion.APIKey == nil {
		return ""
	}
	return *c.Completion.APIKey
}

func (c *AppConfig) CompletionTimeout() time.Duration {
	if c == nil || c.Completion.TimeoutSeconds == nil || *c.Completion.TimeoutSeconds <= 0 {
		return DefaultCompletionTimeout
	}
	return time.Duration(*c.Completion.TimeoutSeconds) * time.Second
}

func (c *AppConfig) MaxSessions() int {
	if c == nil || c.Sessions.MaxSessions == nil || *c.Sessions.MaxSessions <= 0 {
		return DefaultMaxSessions
	}
	return *c.Sessions.MaxSessions
}

func (c *AppConfig) MaxMessages() int {
	if c == nil || c.Sessions.MaxMessages == nil || *c.Sessions.MaxMessages <= 0 {
		return DefaultMaxMessages
	}
	return *c.Sessions.MaxMessages
}

func (c *AppConfig) SessionTTL() time.Duration {
	if c == nil || c.Sessions.TTLHours == nil || *c.Sessions.TTLHours <= 0 {
		return DefaultSessionTTL
	}
	return time.Duration(*c.Sessions.TTLHours) * time.Hour
}

func ptr[T any](v T) *T { return &v }
