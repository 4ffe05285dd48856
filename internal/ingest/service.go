// Package ingest composes the gates and the decoder into the request
// pipeline: suspicious-check, credential check, rate limit, parse,
// convert, store write, stats. Every path ends in an acknowledgment;
// the device retries aggressively on a hung connection.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/murr2k/linknode-com/internal/eagle"
	"github.com/murr2k/linknode-com/internal/ratelimit"
	"github.com/murr2k/linknode-com/internal/security"
	"github.com/murr2k/linknode-com/internal/store"
)

// maxBodyBytes caps inbound payloads; device messages are a few KB.
const maxBodyBytes = 64 << 10

// PointWriter is the slice of the store the pipeline depends on.
type PointWriter interface {
	WritePoint(ctx context.Context, measurement string, tags map[string]string, fields map[string]any, ts time.Time) error
}

// Service is the ingestion orchestrator. Construct once at startup and
// share across requests; all collaborators are injected.
type Service struct {
	store   PointWriter
	limiter *ratelimit.Limiter
	monitor *security.Monitor
	parser  *eagle.Parser
	stats   *Stats

	apiKey string
	logger *slog.Logger
}

// NewService creates the orchestrator. An empty apiKey disables the
// credential gate (logged as a warning per request, matching the
// device-provisioning workflow where the key is configured later).
func NewService(store PointWriter, limiter *ratelimit.Limiter, monitor *security.Monitor, parser *eagle.Parser, apiKey string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		limiter: limiter,
		monitor: monitor,
		parser:  parser,
		stats:   NewStats(),
		apiKey:  apiKey,
		logger:  logger,
	}
}

// Stats exposes the ingestion counters for the statistics surface.
func (s *Service) Stats() *Stats {
	return s.stats
}

// Handle processes one telemetry POST.
func (s *Service) Handle(w http.ResponseWriter, r *http.Request) {
	s.stats.RequestReceived()

	reqID := uuid.NewString()
	addr := clientAddr(r)
	logger := s.logger.With("request_id", reqID, "addr", addr)

	// Known-bad sources are rejected before anything else is spent on
	// them.
	if s.monitor.IsSuspicious(addr) {
		s.monitor.RecordBlocked(addr)
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Access denied"})
		return
	}

	key := r.Header.Get("X-API-Key")
	if key == "" {
		key = r.URL.Query().Get("api_key")
	}
	switch {
	case s.apiKey == "":
		logger.Warn("api key not configured, authentication disabled")
	case key == "":
		s.monitor.RecordAuthFailure(addr, "")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "API key required"})
		return
	case key != s.apiKey:
		s.monitor.RecordAuthFailure(addr, key)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid API key"})
		return
	}

	if !s.limiter.Allow(addr+":"+key, time.Now()) {
		s.monitor.RecordRateViolation(addr)
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "Rate limit exceeded"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		logger.Warn("failed to read request body", "error", err)
		s.stats.WriteFailed()
		writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
		return
	}

	readings, err := s.parser.Parse(eagle.RawMessage{
		Body:        body,
		ContentType: r.Header.Get("Content-Type"),
		Source:      addr,
	})
	if err != nil {
		if !errors.Is(err, eagle.ErrParseFailure) {
			logger.Error("unexpected parse error", "error", err)
		}
		// Unparseable payloads are acknowledged benignly; a hard error
		// here just makes the device hammer the endpoint.
		s.stats.WriteFailed()
		writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
		return
	}

	attempted, stored := s.storeReadings(readings, logger)
	if attempted > 0 && stored == attempted {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

// storeReadings writes each storable reading and updates counters.
// Store writes deliberately run on a background context: a dropped
// device connection does not invalidate a point already decoded.
func (s *Service) storeReadings(readings []eagle.Reading, logger *slog.Logger) (attempted, stored int) {
	for _, reading := range readings {
		if reading.Type == eagle.Unknown {
			logger.Warn("skipping unknown message type",
				"device_id", reading.DeviceID)
			continue
		}

		fields := pointFields(reading)
		if len(fields) == 0 {
			logger.Debug("reading has no storable fields",
				"message_type", reading.Type.String(), "device_id", reading.DeviceID)
			continue
		}

		attempted++
		tags := map[string]string{
			"device_mac":   reading.DeviceID,
			"meter_mac":    reading.MeterID,
			"message_type": reading.Type.String(),
		}

		err := s.store.WritePoint(context.Background(), store.Measurement, tags, fields, reading.Timestamp)
		if err != nil {
			// Counted and logged, never surfaced: the device has no
			// buffering and retries on anything but success.
			s.stats.WriteFailed()
			logger.Error("store write failed", "error", err,
				"message_type", reading.Type.String())
			continue
		}

		stored++
		s.stats.WriteSucceeded(time.Now().UTC())
		if watts, ok := reading.Converted[eagle.FieldPowerW]; ok {
			s.stats.SetLastPower(watts)
		}
		logger.Info("stored reading",
			"message_type", reading.Type.String(),
			"device_id", reading.DeviceID,
			"fields", len(fields))
	}
	return attempted, stored
}

// pointFields assembles the stored fields: every converted quantity
// plus the few raw string fields the dashboards read.
func pointFields(reading eagle.Reading) map[string]any {
	fields := make(map[string]any, len(reading.Converted))
	for k, v := range reading.Converted {
		fields[k] = v
	}
	for _, key := range []string{"link_strength", "message_text"} {
		if v, ok := reading.RawFields[key]; ok {
			fields[key] = v
		}
	}
	return fields
}

// clientAddr resolves the source identity: the first X-Forwarded-For
// entry when present, otherwise the direct peer address.
func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
