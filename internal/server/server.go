// Package server wires the HTTP route table: the telemetry endpoint
// plus the health, statistics and security admin surfaces.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/murr2k/linknode-com/internal/ingest"
	"github.com/murr2k/linknode-com/internal/security"
	"github.com/murr2k/linknode-com/internal/store"
	"github.com/murr2k/linknode-com/internal/version"
)

// StoreReader is the query slice of the store the read endpoints use.
type StoreReader interface {
	Ping(ctx context.Context) bool
	PowerStats(ctx context.Context, hours int) (store.PowerStats, error)
	LatestReading(ctx context.Context) (map[string]any, time.Time, error)
}

// Handler owns the auxiliary endpoints and the route table.
type Handler struct {
	ingest  *ingest.Service
	store   StoreReader
	monitor *security.Monitor

	adminKey    string
	pricePerKWh float64
	logger      *slog.Logger
}

// New creates a Handler. pricePerKWh feeds the cost estimate on the
// statistics endpoint.
func New(ing *ingest.Service, st StoreReader, monitor *security.Monitor, adminKey string, pricePerKWh float64, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		ingest:      ing,
		store:       st,
		monitor:     monitor,
		adminKey:    adminKey,
		pricePerKWh: pricePerKWh,
		logger:      logger,
	}
}

// Routes builds the router. Both telemetry paths exist because deployed
// devices were provisioned against either.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/eagle", h.ingest.Handle)
	r.Post("/api/power-data", h.ingest.Handle)

	r.Get("/", h.handleIndex)
	r.Get("/health", h.handleHealth)
	r.Get("/api/stats", h.handleStats)
	r.Get("/api/power-data/latest", h.handleLatest)
	r.Get("/api/security/stats", h.handleSecurityStats)
	r.Post("/api/security/clear", h.handleSecurityClear)

	return r
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]any{
		"service": "Eagle energy monitor",
		"version": version.String(),
		"endpoints": map[string]string{
			"/eagle":                 "POST - receive device telemetry",
			"/api/power-data":        "POST - receive device telemetry",
			"/health":                "GET - health check",
			"/api/stats":             "GET - ingestion and power statistics",
			"/api/power-data/latest": "GET - latest stored reading",
			"/api/security/stats":    "GET - security monitor state (admin)",
			"/api/security/clear":    "POST - clear a flagged address (admin)",
		},
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	connected := h.store.Ping(ctx)
	status := "healthy"
	code := http.StatusOK
	if !connected {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	respond(w, code, map[string]any{
		"status":             status,
		"influxdb_connected": connected,
		"uptime_seconds":     h.ingest.Stats().Uptime().Seconds(),
	})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			hours = n
		}
	}

	snap := h.ingest.Stats().Snapshot()
	result := map[string]any{
		"current_power": snap.LastPowerReading,
		"last_update":   snap.LastDataReceived,
		"monitor_stats": snap,
		"min_24h":       0.0,
		"max_24h":       0.0,
		"avg_24h":       0.0,
		"cost_24h":      0.0,
	}

	// A store outage degrades the aggregates to zeros; the counters
	// above are still useful.
	power, err := h.store.PowerStats(r.Context(), hours)
	if err != nil {
		h.logger.Error("power stats query failed", "error", err)
	} else {
		result["min_24h"] = power.MinW
		result["max_24h"] = power.MaxW
		result["avg_24h"] = power.MeanW
		if power.MeanW > 0 {
			kwh := power.MeanW / 1000 * float64(hours)
			result["cost_24h"] = roundCents(kwh * h.pricePerKWh)
		}
	}

	respond(w, http.StatusOK, result)
}

func (h *Handler) handleLatest(w http.ResponseWriter, r *http.Request) {
	latest, ts, err := h.store.LatestReading(r.Context())
	if err != nil {
		h.logger.Error("latest reading query failed", "error", err)
		respond(w, http.StatusServiceUnavailable, map[string]string{"error": "store unavailable"})
		return
	}
	if len(latest) == 0 {
		respond(w, http.StatusNotFound, map[string]string{
			"status":  "no_data",
			"message": "No power readings found in the last hour",
		})
		return
	}
	latest["timestamp"] = ts.Format(time.RFC3339)
	respond(w, http.StatusOK, map[string]any{"status": "success", "data": latest})
}

func (h *Handler) handleSecurityStats(w http.ResponseWriter, r *http.Request) {
	if !h.isAdmin(r) {
		respond(w, http.StatusForbidden, map[string]string{"error": "Admin access required"})
		return
	}
	respond(w, http.StatusOK, h.monitor.Stats())
}

func (h *Handler) handleSecurityClear(w http.ResponseWriter, r *http.Request) {
	if !h.isAdmin(r) {
		respond(w, http.StatusForbidden, map[string]string{"error": "Admin access required"})
		return
	}
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		respond(w, http.StatusBadRequest, map[string]string{"error": "ip parameter required"})
		return
	}
	h.monitor.Clear(ip)
	respond(w, http.StatusOK, map[string]string{"status": "cleared", "ip": ip})
}

// isAdmin checks the admin key. No configured key means no admin
// surface at all.
func (h *Handler) isAdmin(r *http.Request) bool {
	if h.adminKey == "" {
		return false
	}
	key := r.Header.Get("X-API-Key")
	if key == "" {
		key = r.URL.Query().Get("api_key")
	}
	return key == h.adminKey
}

func roundCents(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

func respond(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
