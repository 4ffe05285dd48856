package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *MonitorConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Influx.URL == "" {
		return errors.New("influx.url is required")
	}
	if c.Influx.Org == "" {
		return errors.New("influx.org is required")
	}
	if c.Influx.Bucket == "" {
		return errors.New("influx.bucket is required")
	}
	if c.Influx.ConnectRetries < 1 {
		return errors.New("influx.connect_retries must be >= 1")
	}

	if c.RateLimit.Limit < 1 {
		return errors.New("ratelimit.limit must be >= 1")
	}
	if c.RateLimit.Window <= 0 {
		return errors.New("ratelimit.window must be positive")
	}

	if c.Security.MaxAuthFailures < 1 {
		return errors.New("security.max_auth_failures must be >= 1")
	}
	if c.Security.MaxRateViolations < 1 {
		return errors.New("security.max_rate_violations must be >= 1")
	}
	if c.Security.Window <= 0 {
		return errors.New("security.window must be positive")
	}

	if c.Stats.PricePerKWh < 0 {
		return errors.New("stats.price_per_kwh cannot be negative")
	}

	return nil
}
