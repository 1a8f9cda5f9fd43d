package pool

import (
	"errors"
	"log/slog"
	"time"

	"github.com/nostrvine/relaypool/internal/balancer"
	"github.com/nostrvine/relaypool/internal/relay"
)

// Errors
var (
	ErrPoolClosed     = errors.New("pool closed")
	ErrUnknownRelay   = errors.New("relay not registered")
	ErrDuplicateRelay = errors.New("relay already registered")
	ErrConnClosed     = errors.New("connection closed")
)

// EstablishStrategy controls how ConnectAll drives connection attempts.
type EstablishStrategy string

const (
	// EstablishPriority attempts relays strictly in ascending configured
	// priority, each attempt fully resolved before the next begins.
	EstablishPriority EstablishStrategy = "priority"

	// EstablishParallel attempts all relays concurrently.
	EstablishParallel EstablishStrategy = "parallel"
)

// State is the aggregate pool health bucket, a pure function of the
// connected count and the total registered count.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnected    State = "connected"
	StateDegraded     State = "degraded"
	StatePartial      State = "partial"
)

// Endpoint registers one relay at pool construction.
type Endpoint struct {
	URL    string
	Config relay.Config
}

// Options configures a pool.
type Options struct {
	// MaxConnections caps the connected view. Zero means no cap.
	MaxConnections int

	// Establishment selects the ConnectAll strategy. Defaults to parallel.
	Establishment EstablishStrategy

	// Balancer selects the SelectRelay strategy. Defaults to round-robin.
	Balancer balancer.Strategy

	// Dialer establishes transport connections. Required.
	Dialer relay.Dialer

	// Logger for structured logging. Nil falls back to slog.Default().
	Logger *slog.Logger

	// EventBuffer is the per-subscriber buffer for all event streams.
	EventBuffer int
}

// EventType tags entries on the generalized pool event stream.
type EventType string

const (
	EventConnected     EventType = "connected"
	EventConnectFailed EventType = "connect_failed"
	EventDisconnected  EventType = "disconnected"
	EventFailover      EventType = "failover"
	EventBroadcast     EventType = "broadcast"
	EventMessageSent   EventType = "message_sent"
	EventRelayAdded    EventType = "relay_added"
	EventRelayRemoved  EventType = "relay_removed"
)

// Event is one entry on the generalized pool event stream, a superset trace
// of the dedicated streams.
type Event struct {
	Type  EventType
	Relay string // endpoint identity, empty for pool-wide events
	// Remaining is the post-event connected count for failover events.
	Remaining int
	// Recipients is the delivery count for broadcast events.
	Recipients int
	At         time.Time
}

// Message is one payload delivery record, keyed by the relay it was sent to
// or received from.
type Message struct {
	Relay string
	Data  []byte
}

// FailoverEvent reports an unexpected loss of a previously connected relay.
type FailoverEvent struct {
	FailedRelay        string
	RemainingConnected int
}

// aggregateState maps (connected, total) onto the overall pool state.
func aggregateState(connected, total int) State {
	switch {
	case connected == 0:
		return StateDisconnected
	case connected == total:
		return StateConnected
	case 2*connected < total:
		return StateDegraded
	default:
		return StatePartial
	}
}
