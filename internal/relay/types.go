package relay

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrMachineDisposed = errors.New("state machine disposed")
	ErrNotConnected    = errors.New("relay not connected")
)

// InvalidTransitionError reports a request for an illegal state-machine edge.
// The machine's state and history are unchanged when it is returned.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}

// State is the lifecycle state of a relay connection.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateError        State = "error"
	StateClosed       State = "closed"
)

// Transition is one recorded state change. Machine history is seeded with a
// synthetic entry whose From and To are both StateDisconnected.
type Transition struct {
	From   State
	To     State
	Reason string
	At     time.Time
}

// Config is the immutable per-relay configuration supplied at registration.
type Config struct {
	// Priority orders connection attempts under the priority establishment
	// strategy. Lower values connect first.
	Priority int

	// Timeout bounds a single connection attempt.
	Timeout time.Duration

	// Headers are sent verbatim during the transport handshake.
	Headers map[string]string
}

// DefaultConfig returns sensible per-relay defaults.
func DefaultConfig() Config {
	return Config{
		Priority: 0,
		Timeout:  10 * time.Second,
	}
}

// Conn is an established transport connection to a relay. Implementations
// must tolerate concurrent Send calls and an idempotent Close.
type Conn interface {
	// Send writes an opaque payload to the relay.
	Send(data []byte) error

	// Messages returns the channel of inbound payloads. It is closed when
	// the connection ends.
	Messages() <-chan []byte

	// Errors returns a channel that yields at most one terminal connection
	// error.
	Errors() <-chan error

	// Close tears the connection down.
	Close() error
}

// Dialer establishes transport connections. The pool is agnostic to the wire
// protocol behind it.
type Dialer interface {
	Dial(ctx context.Context, url string, cfg Config) (Conn, error)
}
