package ingest

import (
	"sync"
	"time"
)

// Stats holds process-lifetime ingestion counters. Counters are
// monotonic; the last_* fields are overwritten on each successful
// write.
type Stats struct {
	mu               sync.Mutex
	totalRequests    int64
	successfulWrites int64
	failedWrites     int64
	lastWriteAt      time.Time
	lastPowerW       float64
	hasPower         bool
	startTime        time.Time
}

// NewStats creates a Stats anchored at the current instant.
func NewStats() *Stats {
	return &Stats{startTime: time.Now().UTC()}
}

// RequestReceived counts one inbound request.
func (s *Stats) RequestReceived() {
	s.mu.Lock()
	s.totalRequests++
	s.mu.Unlock()
}

// WriteSucceeded counts a successful store write at instant now.
func (s *Stats) WriteSucceeded(now time.Time) {
	s.mu.Lock()
	s.successfulWrites++
	s.lastWriteAt = now
	s.mu.Unlock()
}

// WriteFailed counts a failed store write or an unusable payload.
func (s *Stats) WriteFailed() {
	s.mu.Lock()
	s.failedWrites++
	s.mu.Unlock()
}

// SetLastPower records the most recent power reading.
func (s *Stats) SetLastPower(watts float64) {
	s.mu.Lock()
	s.lastPowerW = watts
	s.hasPower = true
	s.mu.Unlock()
}

// StatsSnapshot is the JSON shape of the statistics surface.
type StatsSnapshot struct {
	TotalRequests    int64   `json:"total_requests"`
	SuccessfulWrites int64   `json:"successful_writes"`
	FailedWrites     int64   `json:"failed_writes"`
	LastDataReceived string  `json:"last_data_received,omitempty"`
	LastPowerReading float64 `json:"last_power_reading"`
	StartTime        string  `json:"start_time"`
}

// Snapshot returns a consistent copy of the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{
		TotalRequests:    s.totalRequests,
		SuccessfulWrites: s.successfulWrites,
		FailedWrites:     s.failedWrites,
		LastPowerReading: s.lastPowerW,
		StartTime:        s.startTime.Format(time.RFC3339),
	}
	if !s.lastWriteAt.IsZero() {
		snap.LastDataReceived = s.lastWriteAt.Format(time.RFC3339)
	}
	return snap
}

// Uptime returns time elapsed since the stats were created.
func (s *Stats) Uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.startTime)
}
