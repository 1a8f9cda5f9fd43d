package relay

import (
	"sync"
	"time"

	"github.com/nostrvine/relaypool/internal/events"
)

// legalEdges enumerates every permitted state transition. Closed is terminal
// except for the single reset edge back to disconnected.
var legalEdges = map[State]map[State]bool{
	StateDisconnected: {
		StateConnecting: true,
		StateClosed:     true,
	},
	StateConnecting: {
		StateConnected:    true,
		StateError:        true,
		StateDisconnected: true,
		StateClosed:       true,
	},
	StateConnected: {
		StateDisconnected: true,
		StateError:        true,
		StateClosed:       true,
	},
	StateError: {
		StateReconnecting: true,
		StateDisconnected: true,
		StateConnecting:   true,
		StateClosed:       true,
	},
	StateReconnecting: {
		StateConnected:    true,
		StateError:        true,
		StateDisconnected: true,
		StateClosed:       true,
	},
	StateClosed: {
		StateDisconnected: true,
	},
}

// Machine enforces the relay connection lifecycle. All transitions against
// one machine serialize on its mutex; a contended TransitionTo either wins
// and applies a single legal edge or fails without mutating anything.
type Machine struct {
	mu         sync.Mutex
	current    State
	history    []Transition
	lastReason string
	changedAt  time.Time
	disposed   bool

	hub *events.Hub[Transition]
}

// NewMachine creates a machine in the disconnected state with a seeded
// history entry.
func NewMachine() *Machine {
	now := time.Now()
	return &Machine{
		current: StateDisconnected,
		history: []Transition{{
			From: StateDisconnected,
			To:   StateDisconnected,
			At:   now,
		}},
		changedAt: now,
		hub:       events.NewHub[Transition](0),
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// LastReason returns the reason attached to the most recent transition, if
// any.
func (m *Machine) LastReason() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastReason
}

// History returns a copy of the ordered transition history, beginning with
// the initial disconnected entry.
func (m *Machine) History() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}

// TimeInState returns the elapsed time since the last successful transition.
func (m *Machine) TimeInState() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Since(m.changedAt)
}

// CanTransition reports whether moving to the candidate state is a legal
// edge from the current state. It has no side effects.
func (m *Machine) CanTransition(to State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return legalEdges[m.current][to]
}

// TransitionTo validates the requested edge and, if legal, atomically
// updates the current state, appends a history record, and publishes the
// transition on the machine's stream. An illegal edge returns
// *InvalidTransitionError and mutates nothing. A disposed machine returns
// ErrMachineDisposed.
func (m *Machine) TransitionTo(to State, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disposed {
		return ErrMachineDisposed
	}
	if !legalEdges[m.current][to] {
		return &InvalidTransitionError{From: m.current, To: to}
	}

	tr := Transition{
		From:   m.current,
		To:     to,
		Reason: reason,
		At:     time.Now(),
	}
	m.current = to
	m.lastReason = reason
	m.changedAt = tr.At
	m.history = append(m.history, tr)

	// Published under the lock so subscribers observe transitions in the
	// order they were applied.
	m.hub.Publish(tr)
	return nil
}

// Reset unconditionally returns the machine to disconnected with a fresh
// seeded history, regardless of current state. It is an explicit escape
// hatch for reusing a machine, not a validated transition, and publishes
// nothing.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.current = StateDisconnected
	m.lastReason = ""
	m.changedAt = now
	m.history = []Transition{{
		From: StateDisconnected,
		To:   StateDisconnected,
		At:   now,
	}}
}

// Transitions returns an ordered stream of future transitions plus a cancel
// function. Past transitions are never replayed.
func (m *Machine) Transitions() (<-chan Transition, func()) {
	return m.hub.Subscribe()
}

// Dispose marks the machine inert. Current and History stay readable, but
// any later TransitionTo returns ErrMachineDisposed.
func (m *Machine) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return
	}
	m.disposed = true
	m.hub.Close()
}
