package relay

import (
	"testing"
	"time"
)

func TestHealth_BaselineScore(t *testing.T) {
	h := NewHealth()

	if got := h.Score(); got != 1.0 {
		t.Errorf("Score = %v, want 1.0 with no data", got)
	}
	if !h.Healthy() {
		t.Error("expected Healthy with no data")
	}
	if got := h.ErrorRate(); got != 0 {
		t.Errorf("ErrorRate = %v, want 0 with no data", got)
	}
	if got := h.AverageLatency(); got != 0 {
		t.Errorf("AverageLatency = %v, want 0 with no data", got)
	}
}

func TestHealth_ErrorRate(t *testing.T) {
	h := NewHealth()

	h.RecordSuccess()
	h.RecordSuccess()
	h.RecordSuccess()
	h.RecordError()

	if got := h.ErrorRate(); got != 0.25 {
		t.Errorf("ErrorRate = %v, want 0.25", got)
	}
	successes, errors := h.Counts()
	if successes != 3 || errors != 1 {
		t.Errorf("Counts = (%d, %d), want (3, 1)", successes, errors)
	}
}

func TestHealth_ScoreStrictlyDecreasesOnError(t *testing.T) {
	h := NewHealth()
	h.RecordSuccess()
	h.RecordSuccess()

	before := h.Score()
	h.RecordError()
	after := h.Score()

	if after >= before {
		t.Errorf("Score did not strictly decrease: before %v, after %v", before, after)
	}

	// And again.
	h.RecordError()
	if next := h.Score(); next >= after {
		t.Errorf("Score did not strictly decrease on second error: %v -> %v", after, next)
	}
}

func TestHealth_ScoreDecreasesWithLatency(t *testing.T) {
	h := NewHealth()

	before := h.Score()
	h.RecordLatency(500 * time.Millisecond)
	after := h.Score()

	if after >= before {
		t.Errorf("Score did not decrease with latency: before %v, after %v", before, after)
	}

	// 1s of average latency halves the latency factor.
	fresh := NewHealth()
	fresh.RecordLatency(time.Second)
	if got := fresh.Score(); got != 0.5 {
		t.Errorf("Score = %v with 1s average latency, want 0.5", got)
	}
}

func TestHealth_AverageLatency(t *testing.T) {
	h := NewHealth()

	h.RecordLatency(100 * time.Millisecond)
	h.RecordLatency(300 * time.Millisecond)

	if got := h.AverageLatency(); got != 200*time.Millisecond {
		t.Errorf("AverageLatency = %v, want 200ms", got)
	}
}

func TestHealth_LatencyBufferBounded(t *testing.T) {
	h := NewHealth()

	// Fill past the cap with 1ms, then overwrite with a distinct value. The
	// average must eventually reflect only the newest samples.
	for i := 0; i < maxLatencySamples; i++ {
		h.RecordLatency(time.Millisecond)
	}
	for i := 0; i < maxLatencySamples; i++ {
		h.RecordLatency(time.Second)
	}

	if got := h.AverageLatency(); got != time.Second {
		t.Errorf("AverageLatency = %v, want 1s after ring wrap", got)
	}
}

func TestHealth_Unhealthy(t *testing.T) {
	h := NewHealth()

	// All errors: score 0.
	h.RecordError()

	if got := h.Score(); got != 0 {
		t.Errorf("Score = %v, want 0 with only errors", got)
	}
	if h.Healthy() {
		t.Error("expected unhealthy with score 0")
	}
}

func TestHealth_Snapshot(t *testing.T) {
	h := NewHealth()
	h.RecordSuccess()
	h.RecordError()
	h.RecordLatency(time.Second)

	snap := h.Snapshot()
	if snap.Successes != 1 || snap.Errors != 1 {
		t.Errorf("Snapshot counts = (%d, %d), want (1, 1)", snap.Successes, snap.Errors)
	}
	if snap.ErrorRate != 0.5 {
		t.Errorf("Snapshot.ErrorRate = %v, want 0.5", snap.ErrorRate)
	}
	if snap.AverageLatency != time.Second {
		t.Errorf("Snapshot.AverageLatency = %v, want 1s", snap.AverageLatency)
	}
	// (1 - 0.5) * 0.5
	if snap.Score != 0.25 {
		t.Errorf("Snapshot.Score = %v, want 0.25", snap.Score)
	}
	if snap.Healthy {
		t.Error("expected unhealthy snapshot at score 0.25")
	}
}
