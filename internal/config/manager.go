package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Manager loads configuration and watches the file for changes.
type Manager struct {
	path string
	v    *viper.Viper

	mu  sync.RWMutex
	cfg *Config
}

// NewManager creates a manager for the given config file path. An empty
// path uses defaults plus environment only.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Load reads configuration from file, environment, and defaults.
func (m *Manager) Load() (*Config, error) {
	m.v = viper.New()

	if m.path != "" {
		m.v.SetConfigFile(m.path)
		m.v.SetConfigType("yaml")
	}

	m.v.SetEnvPrefix("CLAUDEWAY")
	m.v.AutomaticEnv()
	m.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	if m.path != "" {
		if err := m.v.ReadInConfig(); err != nil {
			// Missing file is fine; defaults plus env vars apply.
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	cfg, err := m.unmarshal()
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	return cfg, nil
}

// Current returns the most recently loaded configuration.
func (m *Manager) Current() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Watch reloads the file on change and invokes onChange with the new
// configuration. Invalid updates are dropped; the previous configuration
// stays active.
func (m *Manager) Watch(onChange func(*Config)) {
	if m.path == "" {
		return
	}
	m.v.WatchConfig()
	m.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := m.unmarshal()
		if err != nil {
			return
		}
		if cfg.ValidateStrict() != nil {
			return
		}
		m.mu.Lock()
		m.cfg = cfg
		m.mu.Unlock()
		onChange(cfg)
	})
}

func (m *Manager) unmarshal() (*Config, error) {
	cfg := DefaultConfig()
	if err := m.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func (m *Manager) setDefaults() {
	defaults := DefaultConfig()
	m.v.SetDefault("server.host", defaults.Server.Host)
	m.v.SetDefault("server.port", defaults.Server.Port)
	m.v.SetDefault("upstream.api_path", defaults.Upstream.APIPath)
	m.v.SetDefault("logging.level", defaults.Logging.Level)
	m.v.SetDefault("request_timeout_seconds", defaults.RequestTimeoutSeconds)
	m.v.SetDefault("connect_timeout_seconds", defaults.ConnectTimeoutSeconds)
}

// applyEnvOverrides applies the unprefixed environment variables that take
// precedence over everything else.
func applyEnvOverrides(cfg *Config) {
	if key := os.Getenv("UPSTREAM_API_KEY"); key != "" {
		cfg.Upstream.APIKey = key
	}
	if port := os.Getenv("LISTEN_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = n
		}
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
