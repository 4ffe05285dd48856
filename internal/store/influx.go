// Package store wraps the InfluxDB client behind the narrow write and
// query capability the ingestion pipeline needs.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxapi "github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement is the single measurement all device readings land in.
const Measurement = "energy_monitor"

// Client provides point writes with a bounded timeout and the handful
// of Flux queries backing the statistics surface.
type Client struct {
	client influxdb2.Client
	write  influxapi.WriteAPIBlocking
	query  influxapi.QueryAPI
	bucket string

	writeTimeout time.Duration
	logger       *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithWriteTimeout bounds each point write.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.writeTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a store client. Connection is lazy; use Ping to
// probe readiness.
func NewClient(url, token, org, bucket string, opts ...Option) *Client {
	client := influxdb2.NewClient(url, token)
	c := &Client{
		client:       client,
		write:        client.WriteAPIBlocking(org, bucket),
		query:        client.QueryAPI(org),
		bucket:       bucket,
		writeTimeout: 30 * time.Second,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close releases the underlying client.
func (c *Client) Close() {
	c.client.Close()
}

// Ping reports whether the backend is reachable.
func (c *Client) Ping(ctx context.Context) bool {
	ok, err := c.client.Ping(ctx)
	if err != nil {
		c.logger.Debug("influxdb ping failed", "error", err)
		return false
	}
	return ok
}

// WritePoint writes one point within the configured timeout. A timed
// out write is reported as an error like any other failure; the caller
// decides whether that reaches the device.
func (c *Client) WritePoint(ctx context.Context, measurement string, tags map[string]string, fields map[string]any, ts time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()

	point := write.NewPoint(measurement, tags, fields, ts)
	if err := c.write.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("write point: %w", err)
	}
	return nil
}

// PowerStats aggregates the power_w field over the trailing range.
type PowerStats struct {
	MinW  float64 `json:"min_w"`
	MaxW  float64 `json:"max_w"`
	MeanW float64 `json:"mean_w"`
}

// PowerStats queries min, max and mean power over the last hours hours.
// Missing data yields zeros, not an error.
func (c *Client) PowerStats(ctx context.Context, hours int) (PowerStats, error) {
	base := fmt.Sprintf(`from(bucket: %q)
		|> range(start: -%dh)
		|> filter(fn: (r) => r["_measurement"] == %q)
		|> filter(fn: (r) => r["_field"] == "power_w")`, c.bucket, hours, Measurement)

	var stats PowerStats
	for _, agg := range []struct {
		fn   string
		dest *float64
	}{
		{"min()", &stats.MinW},
		{"max()", &stats.MaxW},
		{"mean()", &stats.MeanW},
	} {
		result, err := c.query.Query(ctx, base+"\n\t\t|> "+agg.fn)
		if err != nil {
			return PowerStats{}, fmt.Errorf("query %s: %w", agg.fn, err)
		}
		for result.Next() {
			if v, ok := result.Record().Value().(float64); ok {
				*agg.dest = v
			}
		}
		if err := result.Err(); err != nil {
			return PowerStats{}, fmt.Errorf("read %s result: %w", agg.fn, err)
		}
	}
	return stats, nil
}

// LatestReading returns the most recent field values within the last
// hour, keyed by field name, with the newest point time seen. An empty
// map means no recent data.
func (c *Client) LatestReading(ctx context.Context) (map[string]any, time.Time, error) {
	flux := fmt.Sprintf(`from(bucket: %q)
		|> range(start: -1h)
		|> filter(fn: (r) => r["_measurement"] == %q)
		|> last()`, c.bucket, Measurement)

	result, err := c.query.Query(ctx, flux)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("query latest: %w", err)
	}

	latest := make(map[string]any)
	var newest time.Time
	for result.Next() {
		record := result.Record()
		latest[record.Field()] = record.Value()
		if record.Time().After(newest) {
			newest = record.Time()
		}
	}
	if err := result.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("read latest result: %w", err)
	}
	return latest, newest, nil
}
