package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultPort              = 8080
	DefaultReadTimeout       = 10 * time.Second
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultInfluxURL         = "http://localhost:8086"
	DefaultWriteTimeout      = 30 * time.Second
	DefaultConnectRetries    = 30
	DefaultConnectDelay      = 2 * time.Second
	DefaultRateLimit         = 60
	DefaultRateWindow        = 60 * time.Second
	DefaultMaxAuthFailures   = 5
	DefaultMaxRateViolations = 10
	DefaultSecurityWindow    = time.Hour
	DefaultSecurityLogFile   = "/tmp/security_events.log"
	DefaultPricePerKWh       = 0.12
)

func (c *MonitorConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if c.Influx.URL == "" {
		c.Influx.URL = DefaultInfluxURL
	}
	if c.Influx.WriteTimeout == 0 {
		c.Influx.WriteTimeout = DefaultWriteTimeout
	}
	if c.Influx.ConnectRetries == 0 {
		c.Influx.ConnectRetries = DefaultConnectRetries
	}
	if c.Influx.ConnectDelay == 0 {
		c.Influx.ConnectDelay = DefaultConnectDelay
	}

	if c.RateLimit.Limit == 0 {
		c.RateLimit.Limit = DefaultRateLimit
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = DefaultRateWindow
	}

	if c.Security.MaxAuthFailures == 0 {
		c.Security.MaxAuthFailures = DefaultMaxAuthFailures
	}
	if c.Security.MaxRateViolations == 0 {
		c.Security.MaxRateViolations = DefaultMaxRateViolations
	}
	if c.Security.Window == 0 {
		c.Security.Window = DefaultSecurityWindow
	}
	if c.Security.LogFile == "" {
		c.Security.LogFile = DefaultSecurityLogFile
	}

	if c.Stats.PricePerKWh == 0 {
		c.Stats.PricePerKWh = DefaultPricePerKWh
	}
}
