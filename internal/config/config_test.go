package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "perch.yaml", `
server:
  api_url: https://perch.example.com
  socket_url: wss://perch.example.com/socket
auth:
  refresh_url: https://perch.example.com/api/session/refresh
transport:
  ping_interval: 20s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.APIURL != "https://perch.example.com" {
		t.Errorf("APIURL = %q", cfg.Server.APIURL)
	}
	if cfg.Transport.PingInterval != 20*time.Second {
		t.Errorf("PingInterval = %v, want 20s", cfg.Transport.PingInterval)
	}
	// Unset fields pick up defaults.
	if cfg.Transport.PongWait != 45*time.Second {
		t.Errorf("PongWait = %v, want default 45s", cfg.Transport.PongWait)
	}
	if cfg.Transport.Backoff.Max != 30*time.Second {
		t.Errorf("Backoff.Max = %v, want default 30s", cfg.Transport.Backoff.Max)
	}
	if cfg.Observability.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want default info", cfg.Observability.Logging.Level)
	}
}

func TestLoadJSON5(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "perch.json5", `{
  // comments are allowed
  server: {
    api_url: "https://perch.example.com",
    socket_url: "wss://perch.example.com/socket",
  },
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.SocketURL != "wss://perch.example.com/socket" {
		t.Errorf("SocketURL = %q", cfg.Server.SocketURL)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("PERCH_TOKEN", "tok-from-env")
	dir := t.TempDir()
	path := writeFile(t, dir, "perch.yaml", `
server:
  api_url: https://perch.example.com
  socket_url: wss://perch.example.com/socket
auth:
  token: ${PERCH_TOKEN}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.Token != "tok-from-env" {
		t.Errorf("Auth.Token = %q, want tok-from-env", cfg.Auth.Token)
	}
}

func TestLoadInclude(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
server:
  api_url: https://perch.example.com
  socket_url: wss://perch.example.com/socket
observability:
  logging:
    level: debug
`)
	path := writeFile(t, dir, "perch.yaml", `
$include: base.yaml
observability:
  logging:
    level: warn
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// The including file wins over the included one.
	if cfg.Observability.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Observability.Logging.Level)
	}
	if cfg.Server.APIURL != "https://perch.example.com" {
		t.Errorf("APIURL = %q, want value from include", cfg.Server.APIURL)
	}
}

func TestLoadIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "$include: b.yaml\n")
	writeFile(t, dir, "b.yaml", "$include: a.yaml\n")

	if _, err := Load(filepath.Join(dir, "a.yaml")); err == nil {
		t.Fatal("Load succeeded on include cycle")
	} else if !strings.Contains(err.Error(), "cycle") {
		t.Errorf("error = %v, want cycle detection", err)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "perch.yaml", `
server:
  api_url: https://perch.example.com
  socket_url: wss://perch.example.com/socket
  websocket_url: typo
`)

	if _, err := Load(path); err == nil {
		t.Fatal("Load succeeded with unknown key")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing api url",
			mutate:  func(c *Config) { c.Server.APIURL = "" },
			wantErr: "api_url",
		},
		{
			name:    "missing socket url",
			mutate:  func(c *Config) { c.Server.SocketURL = "" },
			wantErr: "socket_url",
		},
		{
			name:    "http socket scheme",
			mutate:  func(c *Config) { c.Server.SocketURL = "https://perch.example.com/socket" },
			wantErr: "ws or wss",
		},
		{
			name: "inverted backoff bounds",
			mutate: func(c *Config) {
				c.Transport.Backoff.Initial = time.Minute
				c.Transport.Backoff.Max = time.Second
			},
			wantErr: "backoff",
		},
		{
			name:    "sampling rate out of range",
			mutate:  func(c *Config) { c.Observability.Tracing.SamplingRate = 1.5 },
			wantErr: "sampling_rate",
		},
		{
			name:    "valid",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Server.APIURL = "https://perch.example.com"
			cfg.Server.SocketURL = "wss://perch.example.com/socket"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
