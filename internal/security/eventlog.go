package security

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Event is one entry in the append-only audit log.
type Event struct {
	Timestamp string         `json:"timestamp"`
	EventType string         `json:"event_type"`
	IPAddress string         `json:"ip_address"`
	Details   map[string]any `json:"details"`
}

// EventLog appends security events to a file, one JSON object per
// line. Append failures are logged and swallowed: an audit sink outage
// must never abort the request that triggered the event.
type EventLog struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewEventLog creates an EventLog writing to path. An empty path
// disables the file sink; events still reach the structured log.
func NewEventLog(path string, logger *slog.Logger) *EventLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventLog{path: path, logger: logger}
}

// Append records one event.
func (l *EventLog) Append(eventType, ipAddress string, details map[string]any) {
	event := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		EventType: eventType,
		IPAddress: ipAddress,
		Details:   details,
	}
	if event.Details == nil {
		event.Details = map[string]any{}
	}

	l.logger.Warn("security event",
		"event_type", eventType, "ip_address", ipAddress, "details", details)

	if l.path == "" {
		return
	}

	line, err := json.Marshal(event)
	if err != nil {
		l.logger.Error("failed to encode security event", "error", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		l.logger.Error("failed to open security log", "error", err, "path", l.path)
		return
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		l.logger.Error("failed to write security log", "error", err, "path", l.path)
	}
}
