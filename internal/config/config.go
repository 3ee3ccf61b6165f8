// Package config loads the client configuration from YAML or JSON5
// files, with environment variable expansion and $include merging.
package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config is the main configuration structure for perch-sync.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	Transport     TransportConfig     `yaml:"transport"`
	Store         StoreConfig         `yaml:"store"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServerConfig struct {
	// APIURL is the base URL for REST queries, e.g. https://perch.example.com.
	APIURL string `yaml:"api_url"`
	// SocketURL is the websocket endpoint, e.g. wss://perch.example.com/socket.
	SocketURL string `yaml:"socket_url"`
	// PushURL is the optional push-registration endpoint.
	PushURL string `yaml:"push_url"`
}

type AuthConfig struct {
	// Token is the initial session token; usually injected via ${PERCH_TOKEN}.
	Token string `yaml:"token"`
	// RefreshURL exchanges a near-expiry token for a fresh one.
	RefreshURL string `yaml:"refresh_url"`
	// RefreshLeeway refreshes the token this long before expiry.
	RefreshLeeway time.Duration `yaml:"refresh_leeway"`
}

type TransportConfig struct {
	PingInterval time.Duration `yaml:"ping_interval"`
	PongWait     time.Duration `yaml:"pong_wait"`
	Backoff      BackoffConfig `yaml:"backoff"`
}

type BackoffConfig struct {
	Initial time.Duration `yaml:"initial"`
	Max     time.Duration `yaml:"max"`
	Factor  float64       `yaml:"factor"`
	Jitter  float64       `yaml:"jitter"`
}

type StoreConfig struct {
	// Path is the SQLite file that persists the session across runs.
	// ":memory:" disables persistence.
	Path string `yaml:"path"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	// Addr exposes /metrics when non-empty, e.g. "127.0.0.1:9301".
	Addr string `yaml:"addr"`
}

type TracingConfig struct {
	// Endpoint is the OTLP gRPC collector address; empty disables tracing.
	Endpoint     string  `yaml:"endpoint"`
	ServiceName  string  `yaml:"service_name"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// Load reads and parses the configuration file, resolving $include
// directives and expanding environment variables.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with all defaults applied and no
// server endpoints set.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Auth.RefreshLeeway == 0 {
		cfg.Auth.RefreshLeeway = 2 * time.Minute
	}
	if cfg.Transport.PingInterval == 0 {
		cfg.Transport.PingInterval = 15 * time.Second
	}
	if cfg.Transport.PongWait == 0 {
		cfg.Transport.PongWait = 45 * time.Second
	}
	if cfg.Transport.Backoff.Initial == 0 {
		cfg.Transport.Backoff.Initial = time.Second
	}
	if cfg.Transport.Backoff.Max == 0 {
		cfg.Transport.Backoff.Max = 30 * time.Second
	}
	if cfg.Transport.Backoff.Factor == 0 {
		cfg.Transport.Backoff.Factor = 2
	}
	if cfg.Transport.Backoff.Jitter == 0 {
		cfg.Transport.Backoff.Jitter = 0.1
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = ":memory:"
	}
	if cfg.Observability.Logging.Level == "" {
		cfg.Observability.Logging.Level = "info"
	}
	if cfg.Observability.Logging.Format == "" {
		cfg.Observability.Logging.Format = "json"
	}
	if cfg.Observability.Tracing.ServiceName == "" {
		cfg.Observability.Tracing.ServiceName = "perch-sync"
	}
	if cfg.Observability.Tracing.SamplingRate == 0 {
		cfg.Observability.Tracing.SamplingRate = 0.1
	}
}

// Validate checks the fields a running client cannot do without.
func (c *Config) Validate() error {
	if c.Server.APIURL == "" {
		return fmt.Errorf("server.api_url is required")
	}
	if _, err := url.Parse(c.Server.APIURL); err != nil {
		return fmt.Errorf("server.api_url: %w", err)
	}
	if c.Server.SocketURL == "" {
		return fmt.Errorf("server.socket_url is required")
	}
	socketURL, err := url.Parse(c.Server.SocketURL)
	if err != nil {
		return fmt.Errorf("server.socket_url: %w", err)
	}
	if socketURL.Scheme != "ws" && socketURL.Scheme != "wss" {
		return fmt.Errorf("server.socket_url must use ws or wss scheme, got %q", socketURL.Scheme)
	}
	if c.Transport.Backoff.Initial > c.Transport.Backoff.Max {
		return fmt.Errorf("transport.backoff.initial exceeds transport.backoff.max")
	}
	if c.Observability.Tracing.SamplingRate < 0 || c.Observability.Tracing.SamplingRate > 1 {
		return fmt.Errorf("observability.tracing.sampling_rate must be in [0, 1]")
	}
	return nil
}
