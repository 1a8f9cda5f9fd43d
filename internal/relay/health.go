package relay

import (
	"sync"
	"time"
)

const (
	// maxLatencySamples bounds the rolling latency buffer.
	maxLatencySamples = 64

	// healthyThreshold is the minimum score considered healthy.
	healthyThreshold = 0.5
)

// Health tracks rolling reliability statistics for one relay.
//
// The score combines error rate and latency:
//
//	score = (1 - errorRate) * 1s / (1s + averageLatency)
//
// A relay with no recorded data scores 1.0. Recording an error strictly
// lowers the score (until it reaches zero), and accumulating latency lowers
// it smoothly with 1s of average latency halving the latency factor.
type Health struct {
	mu        sync.Mutex
	successes int64
	errors    int64
	samples   []time.Duration
	next      int // ring cursor, valid once len(samples) == maxLatencySamples
}

// NewHealth creates an empty tracker.
func NewHealth() *Health {
	return &Health{}
}

// RecordSuccess increments the success counter.
func (h *Health) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.successes++
}

// RecordError increments the error counter.
func (h *Health) RecordError() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors++
}

// RecordLatency appends a latency sample, evicting the oldest once the
// buffer is full.
func (h *Health) RecordLatency(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.samples) < maxLatencySamples {
		h.samples = append(h.samples, d)
		return
	}
	h.samples[h.next] = d
	h.next = (h.next + 1) % maxLatencySamples
}

// Counts returns the current success and error counters.
func (h *Health) Counts() (successes, errors int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.successes, h.errors
}

// ErrorRate returns errors / (successes + errors), or 0 with no samples.
func (h *Health) ErrorRate() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.errorRateLocked()
}

func (h *Health) errorRateLocked() float64 {
	total := h.successes + h.errors
	if total == 0 {
		return 0
	}
	return float64(h.errors) / float64(total)
}

// AverageLatency returns the mean of the recorded samples, or 0 with none.
func (h *Health) AverageLatency() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.averageLatencyLocked()
}

func (h *Health) averageLatencyLocked() time.Duration {
	if len(h.samples) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range h.samples {
		sum += d
	}
	return sum / time.Duration(len(h.samples))
}

// Score returns the current health score in [0,1].
func (h *Health) Score() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	errFactor := 1 - h.errorRateLocked()
	avg := h.averageLatencyLocked()
	latFactor := float64(time.Second) / float64(time.Second+avg)
	return errFactor * latFactor
}

// Healthy reports whether the score is above the fixed threshold.
func (h *Health) Healthy() bool {
	return h.Score() >= healthyThreshold
}

// Snapshot is a point-in-time view of a relay's health.
type Snapshot struct {
	Successes      int64
	Errors         int64
	ErrorRate      float64
	AverageLatency time.Duration
	Score          float64
	Healthy        bool
}

// Snapshot returns a consistent point-in-time view.
func (h *Health) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	rate := h.errorRateLocked()
	avg := h.averageLatencyLocked()
	score := (1 - rate) * float64(time.Second) / float64(time.Second+avg)
	return Snapshot{
		Successes:      h.successes,
		Errors:         h.errors,
		ErrorRate:      rate,
		AverageLatency: avg,
		Score:          score,
		Healthy:        score >= healthyThreshold,
	}
}
