package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	WebSocket WebSocketConfig `yaml:"websocket"`
	Capture   CaptureConfig   `yaml:"capture"`
	Chat      ChatConfig      `yaml:"chat"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type WebSocketConfig struct {
	URL               string        `yaml:"url"`
	ReconnectAttempts int           `yaml:"reconnect_attempts"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	Token             string        `yaml:"token"`
}

type CaptureConfig struct {
	DefaultFrequency time.Duration `yaml:"default_frequency"`
	Target           string        `yaml:"target"`
	Enabled          bool          `yaml:"enabled"`
	Command          []string      `yaml:"command"`
	File             string        `yaml:"file"`
}

type ChatConfig struct {
	Provider string `yaml:"provider"`
	Project  string `yaml:"project"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// ValidationError reports a configuration value that cannot be used.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func defaultConfig() *Config {
	return &Config{
		WebSocket: WebSocketConfig{
			URL:               "ws://localhost:8000/ws/chat/",
			ReconnectAttempts: 5,
			ReconnectInterval: time.Second,
			HandshakeTimeout:  10 * time.Second,
			PingInterval:      30 * time.Second,
		},
		Capture: CaptureConfig{
			DefaultFrequency: 5 * time.Second,
		},
		Chat: ChatConfig{
			Provider: "anthropic",
			Project:  "goblin",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  20,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// Load reads the YAML file at path over the defaults and validates the
// result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the values the realtime core depends on.
func (c *Config) Validate() error {
	var errs []error

	if c.WebSocket.URL == "" {
		errs = append(errs, &ValidationError{"websocket.url", "must be set"})
	} else if u, err := url.Parse(c.WebSocket.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		errs = append(errs, &ValidationError{"websocket.url", "must be a ws:// or wss:// URL"})
	}
	if c.WebSocket.ReconnectAttempts < 0 {
		errs = append(errs, &ValidationError{"websocket.reconnect_attempts", "must be >= 0"})
	}
	if c.WebSocket.ReconnectInterval <= 0 {
		errs = append(errs, &ValidationError{"websocket.reconnect_interval", "must be > 0"})
	}
	if c.Capture.DefaultFrequency < time.Second {
		errs = append(errs, &ValidationError{"capture.default_frequency", "must be at least 1s"})
	}

	return errors.Join(errs...)
}

// CaptureTarget is the project captures are attributed to. It falls back to
// the chat project when no dedicated target is configured.
func (c *Config) CaptureTarget() string {
	if c.Capture.Target != "" {
		return c.Capture.Target
	}
	return c.Chat.Project
}
