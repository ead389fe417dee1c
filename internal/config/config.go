// Package config - config.go loads and validates gateway configuration.
//
// DESIGN: Configuration is resolved once at startup and read-only afterwards:
// defaults -> optional YAML file -> environment overrides. Backend entries are
// validated for shape only; a missing base URL is deliberately not a load
// error, so partially configured deployments still serve the tiers they have
// (resolution reports the gap per request instead).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// BackendConf describes one upstream model backend.
type BackendConf struct {
	BaseURL        string `yaml:"base_url"`
	Mode           string `yaml:"mode"`
	Path           string `yaml:"path"`
	Model          string `yaml:"model"`
	APIKey         string `yaml:"api_key"`
	InternalAPIKey string `yaml:"internal_api_key"`
	AuthSlot       string `yaml:"auth_slot"`       // "public" (default) or "internal"
	RequestField   string `yaml:"request_field"`   // custom mode payload key
	ObjectiveField string `yaml:"objective_field"` // envelope mode params key
	AgentID        string `yaml:"agent_id"`        // envelope mode
	Action         string `yaml:"action"`          // envelope mode
	Command        string `yaml:"command"`         // relay mode
	ResponsePaths  string `yaml:"response_paths"`  // "|"-separated extraction paths
	TimeoutSeconds int    `yaml:"timeout_seconds"` // per-attempt override
}

// RetryConf bounds the upstream retry loop.
type RetryConf struct {
	MaxAttempts int `yaml:"max_attempts"`
	BaseDelayMS int `yaml:"base_delay_ms"`
	MaxDelayMS  int `yaml:"max_delay_ms"`
}

// BaseDelay returns the configured base delay as a duration.
func (r RetryConf) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMS) * time.Millisecond
}

// MaxDelay returns the configured delay cap as a duration.
func (r RetryConf) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMS) * time.Millisecond
}

// ServerConf is the listen address.
type ServerConf struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DeskConf tunes the ephemeral desk session store.
type DeskConf struct {
	SessionTTLMinutes int `yaml:"session_ttl_minutes"`
	SweepSeconds      int `yaml:"sweep_seconds"`
	MaxFrameBytes     int `yaml:"max_frame_bytes"`
}

// SessionTTL returns the session TTL as a duration.
func (d DeskConf) SessionTTL() time.Duration {
	return time.Duration(d.SessionTTLMinutes) * time.Minute
}

// SweepInterval returns the janitor interval as a duration.
func (d DeskConf) SweepInterval() time.Duration {
	return time.Duration(d.SweepSeconds) * time.Second
}

// FrameCap returns the effective frame size limit in bytes.
func (d DeskConf) FrameCap() int {
	if d.MaxFrameBytes > 0 {
		return d.MaxFrameBytes
	}
	return MaxFrameSize
}

// SnapshotConf tunes the backup/restore store.
type SnapshotConf struct {
	DBPath   string `yaml:"db_path"`
	MaxBytes int    `yaml:"max_bytes"`
}

// Cap returns the effective snapshot size limit in bytes.
func (s SnapshotConf) Cap() int {
	if s.MaxBytes > 0 {
		return s.MaxBytes
	}
	return MaxSnapshotSize
}

// Config is the process-wide gateway configuration. It is constructed once
// in main (or a test) and never mutated afterwards.
type Config struct {
	Server     ServerConf `yaml:"server"`
	GatewayKey string     `yaml:"gateway_key"` // inbound bearer auth; empty disables auth
	LogLevel   string     `yaml:"log_level"`
	LogFormat  string     `yaml:"log_format"` // "json", "console", or "" for autodetect

	DefaultBackend string                 `yaml:"default_backend"`
	Backends       map[string]BackendConf `yaml:"backends"`
	Models         map[string]string      `yaml:"models"` // model id -> backend name

	Retry                  RetryConf `yaml:"retry"`
	UpstreamTimeoutSeconds int       `yaml:"upstream_timeout_seconds"`

	Desk     DeskConf     `yaml:"desk"`
	Snapshot SnapshotConf `yaml:"snapshot"`
}

// UpstreamTimeout returns the per-attempt upstream timeout as a duration.
func (c *Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.UpstreamTimeoutSeconds) * time.Second
}

// Default returns the baseline configuration: the three well-known tiers
// declared with their modes but no base URLs, so only the environment (or a
// YAML file) decides what is actually reachable.
func Default() *Config {
	return &Config{
		Server:         ServerConf{Host: DefaultHost, Port: DefaultPort},
		LogLevel:       "info",
		DefaultBackend: "primary",
		Backends: map[string]BackendConf{
			"primary":   {Mode: "openai"},
			"secondary": {Mode: "custom"},
			"relay":     {Mode: "relay"},
		},
		Models: map[string]string{},
		Retry: RetryConf{
			MaxAttempts: DefaultMaxAttempts,
			BaseDelayMS: int(DefaultRetryBaseDelay / time.Millisecond),
			MaxDelayMS:  int(DefaultRetryMaxDelay / time.Millisecond),
		},
		UpstreamTimeoutSeconds: int(DefaultUpstreamTimeout / time.Second),
		Desk: DeskConf{
			SessionTTLMinutes: int(DefaultSessionTTL / time.Minute),
			SweepSeconds:      int(DefaultSweepInterval / time.Second),
			MaxFrameBytes:     MaxFrameSize,
		},
		Snapshot: SnapshotConf{DBPath: DefaultSnapshotDBPath, MaxBytes: MaxSnapshotSize},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// given), then environment overrides. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.fillBackendDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fillBackendDefaults restores the well-known tier modes when a YAML file
// declared a tier partially (yaml replaces whole map values).
func (c *Config) fillBackendDefaults() {
	if c.Backends == nil {
		c.Backends = map[string]BackendConf{}
	}
	if c.Models == nil {
		c.Models = map[string]string{}
	}
	for name, mode := range map[string]string{
		"primary":   "openai",
		"secondary": "custom",
		"relay":     "relay",
	} {
		b, ok := c.Backends[name]
		if !ok {
			continue
		}
		if b.Mode == "" {
			b.Mode = mode
			c.Backends[name] = b
		}
	}
}

func (c *Config) applyEnv() {
	envStr("GATEWAY_HOST", &c.Server.Host)
	envInt("GATEWAY_PORT", &c.Server.Port)
	envStr("GATEWAY_KEY", &c.GatewayKey)
	envStr("LOG_LEVEL", &c.LogLevel)
	envStr("LOG_FORMAT", &c.LogFormat)
	envStr("DEFAULT_BACKEND", &c.DefaultBackend)

	envInt("RETRY_MAX_ATTEMPTS", &c.Retry.MaxAttempts)
	envInt("RETRY_BASE_DELAY_MS", &c.Retry.BaseDelayMS)
	envInt("RETRY_MAX_DELAY_MS", &c.Retry.MaxDelayMS)
	envInt("UPSTREAM_TIMEOUT_SECONDS", &c.UpstreamTimeoutSeconds)

	envStr("SNAPSHOT_DB_PATH", &c.Snapshot.DBPath)

	for name, prefix := range map[string]string{
		"primary":   "PRIMARY",
		"secondary": "SECONDARY",
		"relay":     "RELAY",
	} {
		b := c.Backends[name]
		envStr(prefix+"_BASE_URL", &b.BaseURL)
		envStr(prefix+"_API_KEY", &b.APIKey)
		envStr(prefix+"_INTERNAL_API_KEY", &b.InternalAPIKey)
		envStr(prefix+"_AUTH_SLOT", &b.AuthSlot)
		envStr(prefix+"_MODE", &b.Mode)
		envStr(prefix+"_PATH", &b.Path)
		envStr(prefix+"_MODEL", &b.Model)
		envStr(prefix+"_RESPONSE_PATHS", &b.ResponsePaths)
		c.Backends[name] = b
	}
}

// Validate checks the parts that must be right before serving. Backend base
// URLs are exempt on purpose (see package comment).
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BaseDelayMS < 0 {
		return fmt.Errorf("retry base_delay_ms must not be negative, got %d", c.Retry.BaseDelayMS)
	}
	if c.Retry.MaxDelayMS < c.Retry.BaseDelayMS {
		return fmt.Errorf("retry max_delay_ms %d is smaller than base_delay_ms %d",
			c.Retry.MaxDelayMS, c.Retry.BaseDelayMS)
	}
	if c.DefaultBackend == "" {
		return errors.New("default_backend is required")
	}
	if _, ok := c.Backends[c.DefaultBackend]; !ok {
		return fmt.Errorf("default backend %q is not defined", c.DefaultBackend)
	}
	if c.Desk.SessionTTLMinutes < 1 {
		return fmt.Errorf("desk session_ttl_minutes must be at least 1, got %d", c.Desk.SessionTTLMinutes)
	}
	if c.Snapshot.DBPath == "" {
		return errors.New("snapshot db_path is required")
	}
	return nil
}

func envStr(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	*dst = n
}
