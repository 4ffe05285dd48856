package eagle

import (
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// deviceEpoch is the zero point of the EAGLE clock.
var deviceEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// maxClockSkew bounds how far a device timestamp may drift from the
// server clock before it is discarded. Corrupt device clocks otherwise
// produce far-future points that break range queries.
const maxClockSkew = 365 * 24 * time.Hour

// currentSentinel is sent by the device in place of a timestamp when it
// wants the receiver to use its own clock.
const currentSentinel = "CURRENT"

// ParseHex decodes a device hex field, with or without a 0x/0X prefix.
// The device occasionally sends blank or garbage fields; those decode
// to 0 with a warning rather than failing the whole message.
func ParseHex(s string) int64 {
	trimmed := stripHexPrefix(strings.TrimSpace(s))
	if trimmed == "" {
		slog.Warn("empty hex field, using 0")
		return 0
	}
	v, err := strconv.ParseUint(trimmed, 16, 64)
	if err != nil {
		slog.Warn("undecodable hex field, using 0", "value", s)
		return 0
	}
	return int64(v)
}

// ParseNumeric decodes a field the device sends in either base:
// 0x-prefixed values are hex, everything else decimal.
func ParseNumeric(s string) int64 {
	trimmed := strings.TrimSpace(s)
	if hasHexPrefix(trimmed) {
		return ParseHex(trimmed)
	}
	if trimmed == "" {
		slog.Warn("empty numeric field, using 0")
		return 0
	}
	v, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		slog.Warn("undecodable numeric field, using 0", "value", s)
		return 0
	}
	return v
}

// ParseTimestamp converts a device timestamp field to an absolute
// instant. The value is a hex- or decimal-encoded count of seconds
// since the device epoch, or the literal "CURRENT". Any parse failure
// yields now: time must always be populated.
func ParseTimestamp(s string, now time.Time) time.Time {
	trimmed := strings.TrimSpace(s)
	if trimmed == currentSentinel {
		return now
	}
	var seconds int64
	if hasHexPrefix(trimmed) {
		v, err := strconv.ParseUint(stripHexPrefix(trimmed), 16, 64)
		if err != nil {
			slog.Warn("undecodable device timestamp, using current time", "value", s)
			return now
		}
		seconds = int64(v)
	} else {
		v, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			slog.Warn("undecodable device timestamp, using current time", "value", s)
			return now
		}
		seconds = v
	}
	return deviceEpoch.Add(time.Duration(seconds) * time.Second)
}

// NormalizeTimestamp rejects candidates further than a year from now,
// substituting now. Idempotent: a normalized timestamp passes through.
func NormalizeTimestamp(candidate, now time.Time) time.Time {
	diff := candidate.Sub(now)
	if diff < 0 {
		diff = -diff
	}
	if diff > maxClockSkew {
		slog.Warn("implausible device timestamp, using current time",
			"candidate", candidate, "now", now)
		return now
	}
	return candidate
}

func hasHexPrefix(s string) bool {
	return strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")
}

func stripHexPrefix(s string) string {
	if hasHexPrefix(s) {
		return s[2:]
	}
	return s
}
