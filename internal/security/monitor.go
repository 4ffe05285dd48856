// Package security tracks authentication failures and rate-limit
// violations per source address and escalates repeat offenders to a
// block-list consulted before any other gate.
package security

import (
	"log/slog"
	"sync"
	"time"
)

// Audit event kinds.
const (
	EventAuthFailure        = "AUTH_FAILURE"
	EventSuspiciousFlagged  = "SUSPICIOUS_IP_FLAGGED"
	EventRateViolation      = "RATE_LIMIT_VIOLATION"
	EventExcessiveRateViols = "EXCESSIVE_RATE_VIOLATIONS"
	EventBlockedSuspicious  = "BLOCKED_SUSPICIOUS_IP"
	EventCleared            = "IP_CLEARED"
)

// Config holds Monitor thresholds. Zero values get defaults.
type Config struct {
	MaxAuthFailures   int           // flag after this many auth failures in Window
	MaxRateViolations int           // flag after this many rate violations in Window
	Window            time.Duration // rolling window for both counters
}

func (c *Config) applyDefaults() {
	if c.MaxAuthFailures == 0 {
		c.MaxAuthFailures = 5
	}
	if c.MaxRateViolations == 0 {
		c.MaxRateViolations = 10
	}
	if c.Window == 0 {
		c.Window = time.Hour
	}
}

// Monitor is the per-address security state machine: Clean until a
// threshold is crossed, then Suspicious until explicitly cleared.
// Suspicious status never expires with the window; only Clear removes
// it, along with all recorded history for the address.
type Monitor struct {
	cfg Config
	log *EventLog

	mu             sync.Mutex
	authFailures   map[string][]time.Time
	rateViolations map[string][]time.Time
	suspicious     map[string]struct{}
}

// NewMonitor creates a Monitor emitting audit events to log.
func NewMonitor(cfg Config, log *EventLog) *Monitor {
	cfg.applyDefaults()
	if log == nil {
		log = NewEventLog("", slog.Default())
	}
	return &Monitor{
		cfg:            cfg,
		log:            log,
		authFailures:   make(map[string][]time.Time),
		rateViolations: make(map[string][]time.Time),
		suspicious:     make(map[string]struct{}),
	}
}

// RecordAuthFailure notes a failed credential check from addr. The
// presented key is truncated in the audit detail.
func (m *Monitor) RecordAuthFailure(addr, presentedKey string) {
	m.recordAuthFailureAt(addr, presentedKey, time.Now().UTC())
}

func (m *Monitor) recordAuthFailureAt(addr, presentedKey string, now time.Time) {
	m.mu.Lock()
	m.authFailures[addr] = appendPruned(m.authFailures[addr], now, m.cfg.Window)
	count := len(m.authFailures[addr])
	flagged := false
	if count >= m.cfg.MaxAuthFailures {
		if _, already := m.suspicious[addr]; !already {
			flagged = true
		}
		m.suspicious[addr] = struct{}{}
	}
	m.mu.Unlock()

	if flagged {
		m.log.Append(EventSuspiciousFlagged, addr, map[string]any{"auth_failures": count})
	}
	m.log.Append(EventAuthFailure, addr, map[string]any{"api_key": truncateKey(presentedKey)})
}

// RecordRateViolation notes a rate-limit rejection for addr.
func (m *Monitor) RecordRateViolation(addr string) {
	m.recordRateViolationAt(addr, time.Now().UTC())
}

func (m *Monitor) recordRateViolationAt(addr string, now time.Time) {
	m.mu.Lock()
	m.rateViolations[addr] = appendPruned(m.rateViolations[addr], now, m.cfg.Window)
	count := len(m.rateViolations[addr])
	flagged := false
	if count >= m.cfg.MaxRateViolations {
		if _, already := m.suspicious[addr]; !already {
			flagged = true
		}
		m.suspicious[addr] = struct{}{}
	}
	m.mu.Unlock()

	if flagged {
		m.log.Append(EventExcessiveRateViols, addr, map[string]any{"violations": count})
	}
	m.log.Append(EventRateViolation, addr, nil)
}

// RecordBlocked notes that a request from a flagged address was denied
// at the gate.
func (m *Monitor) RecordBlocked(addr string) {
	m.log.Append(EventBlockedSuspicious, addr, nil)
}

// IsSuspicious reports whether addr is on the block-list. O(1) and
// independent of window pruning.
func (m *Monitor) IsSuspicious(addr string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.suspicious[addr]
	return ok
}

// Clear removes the suspicious flag and all recorded history for addr.
func (m *Monitor) Clear(addr string) {
	m.mu.Lock()
	delete(m.suspicious, addr)
	delete(m.authFailures, addr)
	delete(m.rateViolations, addr)
	m.mu.Unlock()

	m.log.Append(EventCleared, addr, nil)
}

// Snapshot is the security state exposed on the admin surface.
type Snapshot struct {
	SuspiciousIPs   []string       `json:"suspicious_ips"`
	AuthFailures    map[string]int `json:"auth_failures"`
	RateViolations  map[string]int `json:"rate_violations"`
	TotalSuspicious int            `json:"total_suspicious"`
	Timestamp       string         `json:"timestamp"`
}

// Stats returns counts of failures and violations still inside the
// rolling window, plus the current block-list.
func (m *Monitor) Stats() Snapshot {
	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		SuspiciousIPs:   make([]string, 0, len(m.suspicious)),
		AuthFailures:    make(map[string]int),
		RateViolations:  make(map[string]int),
		TotalSuspicious: len(m.suspicious),
		Timestamp:       now.Format(time.RFC3339),
	}
	for addr := range m.suspicious {
		snap.SuspiciousIPs = append(snap.SuspiciousIPs, addr)
	}
	for addr, times := range m.authFailures {
		if n := countWithin(times, now, m.cfg.Window); n > 0 {
			snap.AuthFailures[addr] = n
		}
	}
	for addr, times := range m.rateViolations {
		if n := countWithin(times, now, m.cfg.Window); n > 0 {
			snap.RateViolations[addr] = n
		}
	}
	return snap
}

// appendPruned appends now and drops entries older than the window.
func appendPruned(entries []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	kept := entries[:0]
	for _, t := range entries {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return append(kept, now)
}

func countWithin(entries []time.Time, now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	n := 0
	for _, t := range entries {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

func truncateKey(key string) string {
	if key == "" {
		return "none"
	}
	if len(key) > 8 {
		return key[:8] + "..."
	}
	return key
}
