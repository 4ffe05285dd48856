// Package config loads the monitor configuration from YAML with
// environment variable expansion, default filling and validation.
package config

import "time"

// MonitorConfig is the root configuration for a monitor instance.
type MonitorConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Influx    InfluxConfig    `yaml:"influx"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Security  SecurityConfig  `yaml:"security"`
	Stats     StatsConfig     `yaml:"stats"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// InfluxConfig holds the time-series store connection.
type InfluxConfig struct {
	URL            string        `yaml:"url"`
	Token          string        `yaml:"token"` // set via ${INFLUXDB_TOKEN}
	Org            string        `yaml:"org"`
	Bucket         string        `yaml:"bucket"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	ConnectRetries int           `yaml:"connect_retries"`
	ConnectDelay   time.Duration `yaml:"connect_delay"`
}

// AuthConfig holds the shared-key credentials. An empty APIKey
// disables the credential gate; an empty AdminKey disables the admin
// surface.
type AuthConfig struct {
	APIKey   string `yaml:"api_key"`
	AdminKey string `yaml:"admin_key"`
}

// RateLimitConfig holds the sliding-window limiter settings.
type RateLimitConfig struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

// SecurityConfig holds the security monitor thresholds and audit sink.
type SecurityConfig struct {
	MaxAuthFailures   int           `yaml:"max_auth_failures"`
	MaxRateViolations int           `yaml:"max_rate_violations"`
	Window            time.Duration `yaml:"window"`
	LogFile           string        `yaml:"log_file"`
}

// StatsConfig holds statistics-surface settings.
type StatsConfig struct {
	PricePerKWh float64 `yaml:"price_per_kwh"`
}
