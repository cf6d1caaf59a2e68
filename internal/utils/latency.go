package utils

import (
	"sort"
	"sync"
	"time"
)

// LatencyTracker keeps the most recent analysis durations in a ring and
// computes percentiles over them.
type LatencyTracker struct {
	mu      sync.RWMutex
	ring    []time.Duration
	next    int
	total   int
	maxSize int
}

// NewLatencyTracker creates a tracker retaining up to maxSize samples.
func NewLatencyTracker(maxSize int) *LatencyTracker {
	if maxSize <= 0 {
		maxSize = 512
	}
	return &LatencyTracker{ring: make([]time.Duration, 0, maxSize), maxSize: maxSize}
}

// Observe records a new duration, overwriting the oldest once full.
func (l *LatencyTracker) Observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.total++
	if len(l.ring) < l.maxSize {
		l.ring = append(l.ring, d)
		return
	}
	l.ring[l.next] = d
	l.next = (l.next + 1) % l.maxSize
}

// Percentile returns the percentile (0-100) duration. Returns zero if no samples.
func (l *LatencyTracker) Percentile(p float64) time.Duration {
	return l.Percentiles(p)[0]
}

// Percentiles returns one duration per requested percentile from a single sort.
func (l *LatencyTracker) Percentiles(ps ...float64) []time.Duration {
	l.mu.RLock()
	sorted := append([]time.Duration(nil), l.ring...)
	l.mu.RUnlock()

	out := make([]time.Duration, len(ps))
	if len(sorted) == 0 {
		return out
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	last := len(sorted) - 1
	for i, p := range ps {
		switch {
		case p <= 0:
			out[i] = sorted[0]
		case p >= 100:
			out[i] = sorted[last]
		default:
			out[i] = sorted[int((p/100.0)*float64(last))]
		}
	}
	return out
}

// Count returns the number of retained samples.
func (l *LatencyTracker) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.ring)
}

// Total returns the number of durations observed since creation.
func (l *LatencyTracker) Total() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}
