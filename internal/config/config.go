// Package config loads and validates gateway configuration.
//
// Responsibilities:
//   - Define the configuration schema with defaults
//   - Load from YAML file, environment, and defaults via Viper (manager.go)
//   - Validate configuration before the server starts
package config

import (
	"fmt"
	"strings"
)

// Config is the full gateway configuration.
type Config struct {
	Server   ServerConfig           `mapstructure:"server"`
	Upstream UpstreamConfig         `mapstructure:"upstream"`
	Models   map[string]ModelConfig `mapstructure:"models"`
	Logging  LoggingConfig          `mapstructure:"logging"`

	// StrictCapabilities rejects requests that need a capability the
	// model lacks instead of stripping the offending parameter.
	StrictCapabilities bool `mapstructure:"strict_capabilities"`

	// RequestTimeoutSeconds caps end-to-end request duration.
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`

	// ConnectTimeoutSeconds bounds upstream connection establishment.
	ConnectTimeoutSeconds int `mapstructure:"connect_timeout_seconds"`
}

// ServerConfig is the inbound listener configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// UpstreamConfig is the default upstream endpoint. Individual models may
// override any field.
type UpstreamConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIPath string `mapstructure:"api_path"`
	APIKey  string `mapstructure:"api_key"`
}

// ModelConfig maps one client-visible model id to its upstream handling.
type ModelConfig struct {
	// UpstreamModel is the model id sent upstream. Defaults to the
	// client-visible id.
	UpstreamModel string `mapstructure:"upstream_model"`

	// HandlerKind is openai_compat or anthropic_passthrough.
	HandlerKind string `mapstructure:"handler_kind"`

	// Per-model upstream overrides. Empty fields fall back to the
	// default upstream.
	BaseURL string `mapstructure:"base_url"`
	APIPath string `mapstructure:"api_path"`
	APIKey  string `mapstructure:"api_key"`

	SupportsTools     bool `mapstructure:"supports_tools"`
	SupportsStreaming bool `mapstructure:"supports_streaming"`
	SupportsImages    bool `mapstructure:"supports_images"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	FilePath string `mapstructure:"file_path"`
}

// DefaultConfig returns the configuration used when no file or environment
// overrides are present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8089,
		},
		Upstream: UpstreamConfig{
			APIPath: "/v1/chat/completions",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		RequestTimeoutSeconds: 300,
		ConnectTimeoutSeconds: 10,
	}
}

// Validate checks the configuration and returns all problems found.
func (c *Config) Validate() []error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: must be 1-65535, got %d", c.Server.Port))
	}
	if c.RequestTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("request_timeout_seconds: must be positive"))
	}
	if c.ConnectTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("connect_timeout_seconds: must be positive"))
	}

	switch c.Logging.Level {
	case "debug", "info", "minimal", "":
	default:
		errs = append(errs, fmt.Errorf("logging.level: must be debug, info, or minimal, got %q", c.Logging.Level))
	}

	for id, m := range c.Models {
		switch m.HandlerKind {
		case "openai_compat", "anthropic_passthrough", "":
		default:
			errs = append(errs, fmt.Errorf("models.%s.handler_kind: unknown kind %q", id, m.HandlerKind))
		}
		if m.BaseURL == "" && c.Upstream.BaseURL == "" {
			errs = append(errs, fmt.Errorf("models.%s: no base_url and no default upstream.base_url", id))
		}
	}

	return errs
}

// ValidateStrict folds all validation errors into one.
func (c *Config) ValidateStrict() error {
	errs := c.Validate()
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}
