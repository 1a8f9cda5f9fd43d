package relay

import (
	"sync/atomic"
	"time"
)

// Relay binds one remote endpoint's identity and configuration to its own
// state machine and health tracker. The URL is the relay's unique identity
// within a pool and never changes for the relay's lifetime.
//
// The transport layer (or a test harness) drives the lifecycle hooks; each
// hook applies the appropriate state transition and health update.
type Relay struct {
	url     string
	cfg     Config
	machine *Machine
	health  *Health

	inflight atomic.Int64
}

// New creates a relay for the given endpoint identity.
func New(url string, cfg Config) *Relay {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Relay{
		url:     url,
		cfg:     cfg,
		machine: NewMachine(),
		health:  NewHealth(),
	}
}

// URL returns the relay's endpoint identity.
func (r *Relay) URL() string { return r.url }

// Config returns the relay's immutable configuration.
func (r *Relay) Config() Config { return r.cfg }

// Machine returns the relay's state machine.
func (r *Relay) Machine() *Machine { return r.machine }

// Health returns the relay's health tracker.
func (r *Relay) Health() *Health { return r.health }

// State returns the current lifecycle state.
func (r *Relay) State() State { return r.machine.Current() }

// HealthSnapshot returns a point-in-time health view.
func (r *Relay) HealthSnapshot() Snapshot { return r.health.Snapshot() }

// ConnectStarted records the beginning of a connection attempt. Legal from
// disconnected, error (explicit retry), and reconnecting states.
func (r *Relay) ConnectStarted() error {
	return r.machine.TransitionTo(StateConnecting, "connect attempt started")
}

// ConnectSucceeded records a successful connection attempt and its
// handshake latency.
func (r *Relay) ConnectSucceeded(latency time.Duration) error {
	if err := r.machine.TransitionTo(StateConnected, "connected"); err != nil {
		return err
	}
	r.health.RecordSuccess()
	if latency > 0 {
		r.health.RecordLatency(latency)
	}
	return nil
}

// ConnectFailed records a failed connection attempt.
func (r *Relay) ConnectFailed(reason error) error {
	msg := "connect failed"
	if reason != nil {
		msg = reason.Error()
	}
	if err := r.machine.TransitionTo(StateError, msg); err != nil {
		return err
	}
	r.health.RecordError()
	return nil
}

// Disconnected records an unexpected loss of an established connection.
func (r *Relay) Disconnected(reason error) error {
	msg := "connection lost"
	if reason != nil {
		msg = reason.Error()
	}
	if err := r.machine.TransitionTo(StateError, msg); err != nil {
		return err
	}
	r.health.RecordError()
	return nil
}

// ObserveLatency records a latency sample observed by the transport.
func (r *Relay) ObserveLatency(d time.Duration) {
	r.health.RecordLatency(d)
}

// ObserveError records a non-fatal error observed by the transport.
func (r *Relay) ObserveError() {
	r.health.RecordError()
}

// ObserveSuccess records a successful operation observed by the transport.
func (r *Relay) ObserveSuccess() {
	r.health.RecordSuccess()
}

// BeginSend increments the in-flight operation counter used by the
// least-connections balancing strategy.
func (r *Relay) BeginSend() { r.inflight.Add(1) }

// EndSend decrements the in-flight operation counter.
func (r *Relay) EndSend() { r.inflight.Add(-1) }

// InFlight returns the current number of in-flight operations.
func (r *Relay) InFlight() int64 { return r.inflight.Load() }
