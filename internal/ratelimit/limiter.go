// Package ratelimit implements sliding-window admission control for the
// ingestion endpoint.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter admits at most limit requests per identity within a trailing
// window. Entries older than the window are pruned lazily on each
// check. Request volume is low, so one mutex covers all buckets.
type Limiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	buckets map[string][]time.Time
}

// NewLimiter creates a Limiter admitting limit requests per window.
func NewLimiter(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string][]time.Time),
	}
}

// Allow reports whether a request from identity at instant now is
// admitted, and records it if so. Identity combines source address and
// credential so a shared address with distinct keys gets independent
// budgets.
func (l *Limiter) Allow(identity string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.prune(identity, now)
	if len(kept) >= l.limit {
		return false
	}
	l.buckets[identity] = append(kept, now)
	return true
}

// Size returns the number of retained request instants for identity.
func (l *Limiter) Size(identity string, now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.prune(identity, now)
	if len(kept) == 0 {
		delete(l.buckets, identity)
		return 0
	}
	l.buckets[identity] = kept
	return len(kept)
}

// prune drops entries older than now minus the window. Caller holds mu.
func (l *Limiter) prune(identity string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	entries := l.buckets[identity]
	kept := entries[:0]
	for _, t := range entries {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
