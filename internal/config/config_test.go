package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "monitor.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAndValidate(t *testing.T) {
	t.Setenv("INFLUXDB_TOKEN", "test-token")

	path := writeConfig(t, `
influx:
  url: http://influx:8086
  token: ${INFLUXDB_TOKEN}
  org: linknode
  bucket: energy
auth:
  api_key: device-key
`)

	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate returned error: %v", err)
	}

	if cfg.Influx.Token != "test-token" {
		t.Errorf("Token = %q, want env-expanded %q", cfg.Influx.Token, "test-token")
	}
	if cfg.Influx.URL != "http://influx:8086" {
		t.Errorf("URL = %q, want %q", cfg.Influx.URL, "http://influx:8086")
	}
	if cfg.Auth.APIKey != "device-key" {
		t.Errorf("APIKey = %q, want %q", cfg.Auth.APIKey, "device-key")
	}

	// Unset fields get defaults.
	if cfg.Server.Port != DefaultPort {
		t.Errorf("Port = %d, want default %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.RateLimit.Limit != DefaultRateLimit {
		t.Errorf("RateLimit.Limit = %d, want default %d", cfg.RateLimit.Limit, DefaultRateLimit)
	}
	if cfg.RateLimit.Window != DefaultRateWindow {
		t.Errorf("RateLimit.Window = %v, want default %v", cfg.RateLimit.Window, DefaultRateWindow)
	}
	if cfg.Security.MaxAuthFailures != DefaultMaxAuthFailures {
		t.Errorf("MaxAuthFailures = %d, want default %d", cfg.Security.MaxAuthFailures, DefaultMaxAuthFailures)
	}
	if cfg.Security.Window != DefaultSecurityWindow {
		t.Errorf("Security.Window = %v, want default %v", cfg.Security.Window, DefaultSecurityWindow)
	}
	if cfg.Stats.PricePerKWh != DefaultPricePerKWh {
		t.Errorf("PricePerKWh = %v, want default %v", cfg.Stats.PricePerKWh, DefaultPricePerKWh)
	}
}

func TestLoadExplicitValuesOverrideDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  read_timeout: 5s
influx:
  url: http://influx:8086
  org: linknode
  bucket: energy
ratelimit:
  limit: 10
  window: 30s
`)

	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate returned error: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("ReadTimeout = %v, want 5s", cfg.Server.ReadTimeout)
	}
	if cfg.RateLimit.Limit != 10 {
		t.Errorf("RateLimit.Limit = %d, want 10", cfg.RateLimit.Limit)
	}
	if cfg.RateLimit.Window != 30*time.Second {
		t.Errorf("RateLimit.Window = %v, want 30s", cfg.RateLimit.Window)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("Load of missing file returned nil error")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "influx: [not: valid")
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load of broken yaml returned nil error")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *MonitorConfig {
		cfg := &MonitorConfig{}
		cfg.Influx.Org = "linknode"
		cfg.Influx.Bucket = "energy"
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*MonitorConfig)
		wantErr string
	}{
		{"valid", func(c *MonitorConfig) {}, ""},
		{"bad port", func(c *MonitorConfig) { c.Server.Port = 70000 }, "server.port"},
		{"missing url", func(c *MonitorConfig) { c.Influx.URL = "" }, "influx.url"},
		{"missing org", func(c *MonitorConfig) { c.Influx.Org = "" }, "influx.org"},
		{"missing bucket", func(c *MonitorConfig) { c.Influx.Bucket = "" }, "influx.bucket"},
		{"bad retries", func(c *MonitorConfig) { c.Influx.ConnectRetries = -1 }, "connect_retries"},
		{"bad rate limit", func(c *MonitorConfig) { c.RateLimit.Limit = -1 }, "ratelimit.limit"},
		{"bad rate window", func(c *MonitorConfig) { c.RateLimit.Window = -time.Second }, "ratelimit.window"},
		{"bad auth threshold", func(c *MonitorConfig) { c.Security.MaxAuthFailures = -1 }, "max_auth_failures"},
		{"bad violation threshold", func(c *MonitorConfig) { c.Security.MaxRateViolations = -1 }, "max_rate_violations"},
		{"bad security window", func(c *MonitorConfig) { c.Security.Window = -time.Hour }, "security.window"},
		{"negative price", func(c *MonitorConfig) { c.Stats.PricePerKWh = -0.1 }, "price_per_kwh"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate returned error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate returned nil error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
