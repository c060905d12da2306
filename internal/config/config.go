package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime settings. Precedence: YAML file > environment >
// defaults.
type Config struct {
	HTTP      HTTPConfig
	WebSocket WebSocketConfig
	Tick      TickConfig
	Log       LogConfig
}

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type WebSocketConfig struct {
	// SweepInterval paces the liveness sweeper; a session that misses one
	// full interval without a pong is terminated.
	SweepInterval time.Duration
}

type TickConfig struct {
	// Interval between position broadcast ticks (33ms = 30 Hz).
	Interval time.Duration
}

type LogConfig struct {
	Level  string
	Pretty bool
}

func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: WebSocketConfig{
			SweepInterval: 30 * time.Second,
		},
		Tick: TickConfig{
			Interval: 33 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: false,
		},
	}
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("http host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("http timeouts must be positive")
	}
	if c.WebSocket.SweepInterval <= 0 {
		return fmt.Errorf("websocket sweep interval must be positive")
	}
	if c.Tick.Interval <= 0 {
		return fmt.Errorf("tick interval must be positive")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}

// ApplyEnv overrides settings from LOUNGE_* environment variables.
func (c *Config) ApplyEnv() {
	if port := os.Getenv("LOUNGE_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.HTTP.Port = p
		}
	}
	if host := os.Getenv("LOUNGE_HTTP_HOST"); host != "" {
		c.HTTP.Host = host
	}
	if v := os.Getenv("LOUNGE_HTTP_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HTTP.ReadTimeout = d
		}
	}
	if v := os.Getenv("LOUNGE_HTTP_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HTTP.WriteTimeout = d
		}
	}
	if v := os.Getenv("LOUNGE_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.WebSocket.SweepInterval = d
		}
	}
	if v := os.Getenv("LOUNGE_TICK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Tick.Interval = d
		}
	}
	if v := os.Getenv("LOUNGE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOUNGE_LOG_PRETTY"); v != "" {
		c.Log.Pretty = v == "true" || v == "1"
	}
}

// fileConfig mirrors Config for YAML decoding. Durations are strings in
// the file ("30s", "33ms") and converted with time.ParseDuration; only
// fields present in the file override.
type fileConfig struct {
	HTTP struct {
		Host         string `yaml:"host"`
		Port         int    `yaml:"port"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
	} `yaml:"http"`
	WebSocket struct {
		SweepInterval string `yaml:"sweep_interval"`
	} `yaml:"websocket"`
	Tick struct {
		Interval string `yaml:"interval"`
	} `yaml:"tick"`
	Log struct {
		Level  string `yaml:"level"`
		Pretty *bool  `yaml:"pretty"`
	} `yaml:"log"`
}

// LoadFromFile overlays settings from a YAML file.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if f.HTTP.Host != "" {
		c.HTTP.Host = f.HTTP.Host
	}
	if f.HTTP.Port != 0 {
		c.HTTP.Port = f.HTTP.Port
	}
	overlayDuration(&c.HTTP.ReadTimeout, f.HTTP.ReadTimeout)
	overlayDuration(&c.HTTP.WriteTimeout, f.HTTP.WriteTimeout)
	overlayDuration(&c.WebSocket.SweepInterval, f.WebSocket.SweepInterval)
	overlayDuration(&c.Tick.Interval, f.Tick.Interval)
	if f.Log.Level != "" {
		c.Log.Level = f.Log.Level
	}
	if f.Log.Pretty != nil {
		c.Log.Pretty = *f.Log.Pretty
	}
	return nil
}

func overlayDuration(dst *time.Duration, s string) {
	if s == "" {
		return
	}
	if d, err := time.ParseDuration(s); err == nil {
		*dst = d
	}
}

// Load builds the effective configuration: defaults, then environment,
// then an optional YAML file, then validation.
func Load(path string) (*Config, error) {
	cfg := Default()
	cfg.ApplyEnv()
	if path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}
