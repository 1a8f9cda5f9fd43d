package pool

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nostrvine/relaypool/internal/balancer"
	"github.com/nostrvine/relaypool/internal/events"
	"github.com/nostrvine/relaypool/internal/metrics"
	"github.com/nostrvine/relaypool/internal/relay"
)

// memberStatus partitions registered relays into the pool's three views.
type memberStatus int

const (
	statusPending memberStatus = iota
	statusConnected
	statusFailed
)

// member is one registered relay plus its pool-side bookkeeping.
type member struct {
	relay   *relay.Relay
	seq     int // registration order, tie-breaker for priority sorting
	status  memberStatus
	conn    relay.Conn
	dialing bool // attempt in flight, reserves a capacity slot
	removed bool
}

// Pool owns a dynamic set of relay connections. All mutable pool state
// lives behind one mutex; per-relay state machines serialize independently
// so one relay's transition never blocks another's.
type Pool struct {
	opts     Options
	dialer   relay.Dialer
	balancer balancer.Balancer
	logger   *slog.Logger

	mu      sync.Mutex
	members map[string]*member
	nextSeq int
	closed  bool

	wg sync.WaitGroup

	connectedHub *events.Hub[string]
	lostHub      *events.Hub[string]
	messagesHub  *events.Hub[Message]
	receivedHub  *events.Hub[Message]
	failoverHub  *events.Hub[FailoverEvent]
	eventsHub    *events.Hub[Event]
}

// New creates a pool with the given endpoints registered but not connected.
// Endpoint URLs must be unique; a duplicate returns ErrDuplicateRelay.
func New(endpoints []Endpoint, opts Options) (*Pool, error) {
	if opts.Establishment == "" {
		opts.Establishment = EstablishParallel
	}
	if opts.Balancer == "" {
		opts.Balancer = balancer.RoundRobin
	}
	bal, err := balancer.New(opts.Balancer)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{
		opts:         opts,
		dialer:       opts.Dialer,
		balancer:     bal,
		logger:       logger,
		members:      make(map[string]*member),
		connectedHub: events.NewHub[string](opts.EventBuffer),
		lostHub:      events.NewHub[string](opts.EventBuffer),
		messagesHub:  events.NewHub[Message](opts.EventBuffer),
		receivedHub:  events.NewHub[Message](opts.EventBuffer),
		failoverHub:  events.NewHub[FailoverEvent](opts.EventBuffer),
		eventsHub:    events.NewHub[Event](opts.EventBuffer),
	}

	for _, ep := range endpoints {
		if _, exists := p.members[ep.URL]; exists {
			return nil, ErrDuplicateRelay
		}
		p.members[ep.URL] = &member{
			relay: relay.New(ep.URL, ep.Config),
			seq:   p.nextSeq,
		}
		p.nextSeq++
	}
	return p, nil
}

// ConnectAll attempts to establish every registered relay that is not
// already connected, honoring the establishment strategy and the connection
// cap. Individual connection failures are quarantined, not returned; only a
// closed pool or canceled context yields an error.
func (p *Pool) ConnectAll(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	targets := p.candidatesLocked(func(m *member) bool {
		return m.status != statusConnected && !m.dialing
	})
	p.mu.Unlock()

	return p.runAttempts(ctx, targets)
}

// ReconnectFailed re-attempts every relay currently in the failed view.
// Successes are promoted to the connected view, subject to the cap.
func (p *Pool) ReconnectFailed(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	targets := p.candidatesLocked(func(m *member) bool {
		return m.status == statusFailed && !m.dialing
	})
	p.mu.Unlock()

	return p.runAttempts(ctx, targets)
}

// candidatesLocked snapshots members matching the filter, ordered by
// ascending priority with registration order breaking ties.
func (p *Pool) candidatesLocked(match func(*member) bool) []*member {
	var out []*member
	for _, m := range p.members {
		if match(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := out[i].relay.Config().Priority, out[j].relay.Config().Priority
		if pi != pj {
			return pi < pj
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// runAttempts drives connection attempts under the configured strategy.
func (p *Pool) runAttempts(ctx context.Context, targets []*member) error {
	switch p.opts.Establishment {
	case EstablishPriority:
		for _, m := range targets {
			if err := ctx.Err(); err != nil {
				return err
			}
			p.attempt(ctx, m)
		}
		return nil
	default:
		var g errgroup.Group
		for _, m := range targets {
			m := m
			g.Go(func() error {
				p.attempt(ctx, m)
				return nil
			})
		}
		return g.Wait()
	}
}

// attempt resolves one connection attempt end to end: capacity check, dial,
// state transition, view update, event emission. A relay that cannot get a
// capacity slot stays pending without being attempted.
func (p *Pool) attempt(ctx context.Context, m *member) {
	p.mu.Lock()
	if p.closed || m.removed || m.status == statusConnected || m.dialing {
		p.mu.Unlock()
		return
	}
	if p.opts.MaxConnections > 0 && p.occupiedLocked() >= p.opts.MaxConnections {
		m.status = statusPending
		p.mu.Unlock()
		p.logger.Debug("connection cap reached, relay stays pending",
			"relay", m.relay.URL(),
		)
		return
	}
	m.dialing = true
	p.mu.Unlock()

	r := m.relay
	if err := r.ConnectStarted(); err != nil {
		p.mu.Lock()
		m.dialing = false
		p.mu.Unlock()
		p.logger.Warn("relay not attemptable", "relay", r.URL(), "error", err)
		return
	}

	dialCtx, cancel := context.WithTimeout(ctx, r.Config().Timeout)
	start := time.Now()
	conn, err := p.dialer.Dial(dialCtx, r.URL(), r.Config())
	cancel()

	p.mu.Lock()
	m.dialing = false
	if p.closed || m.removed {
		p.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		m.status = statusFailed
		p.mu.Unlock()

		r.ConnectFailed(err)
		metrics.ConnectAttempts.WithLabelValues("failure").Inc()
		p.logger.Warn("relay connect failed", "relay", r.URL(), "error", err)
		p.eventsHub.Publish(Event{
			Type:  EventConnectFailed,
			Relay: r.URL(),
			At:    time.Now(),
		})
		return
	}
	m.status = statusConnected
	m.conn = conn
	p.mu.Unlock()

	r.ConnectSucceeded(time.Since(start))
	metrics.ConnectAttempts.WithLabelValues("success").Inc()
	metrics.ConnectionsCurrent.Inc()
	metrics.RelayHealthScore.WithLabelValues(r.URL()).Set(r.Health().Score())
	p.logger.Info("relay connected", "relay", r.URL())

	p.watch(m, conn)

	p.connectedHub.Publish(r.URL())
	p.eventsHub.Publish(Event{
		Type:  EventConnected,
		Relay: r.URL(),
		At:    time.Now(),
	})
}

// occupiedLocked counts capacity slots in use: established connections plus
// attempts in flight.
func (p *Pool) occupiedLocked() int {
	n := 0
	for _, m := range p.members {
		if m.status == statusConnected || m.dialing {
			n++
		}
	}
	return n
}

func (p *Pool) connectedCountLocked() int {
	n := 0
	for _, m := range p.members {
		if m.status == statusConnected {
			n++
		}
	}
	return n
}

// watch forwards inbound payloads and surfaces a terminal connection error
// as an unexpected disconnect.
func (p *Pool) watch(m *member, conn relay.Conn) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case err := <-conn.Errors():
				if err == nil {
					err = ErrConnClosed
				}
				p.handleConnLost(m, conn, err)
				return
			case data, ok := <-conn.Messages():
				if !ok {
					p.handleConnLost(m, conn, ErrConnClosed)
					return
				}
				p.receivedHub.Publish(Message{Relay: m.relay.URL(), Data: data})
			}
		}
	}()
}

// handleConnLost quarantines a relay after an unexpected disconnect and
// emits lost plus failover events. Explicit RemoveRelay and Close tear-downs
// never reach here because the member is marked removed first.
func (p *Pool) handleConnLost(m *member, conn relay.Conn, cause error) {
	p.mu.Lock()
	if p.closed || m.removed || m.conn != conn {
		p.mu.Unlock()
		return
	}
	m.status = statusFailed
	m.conn = nil
	remaining := p.connectedCountLocked()
	p.mu.Unlock()

	conn.Close()
	m.relay.Disconnected(cause)
	metrics.ConnectionsCurrent.Dec()
	metrics.Failovers.Inc()
	metrics.RelayHealthScore.WithLabelValues(m.relay.URL()).Set(m.relay.Health().Score())
	p.logger.Warn("relay connection lost",
		"relay", m.relay.URL(),
		"remaining", remaining,
		"error", cause,
	)

	p.lostHub.Publish(m.relay.URL())
	p.failoverHub.Publish(FailoverEvent{
		FailedRelay:        m.relay.URL(),
		RemainingConnected: remaining,
	})
	now := time.Now()
	p.eventsHub.Publish(Event{Type: EventDisconnected, Relay: m.relay.URL(), At: now})
	p.eventsHub.Publish(Event{
		Type:      EventFailover,
		Relay:     m.relay.URL(),
		Remaining: remaining,
		At:        now,
	})
}

// Broadcast delivers an opaque payload to every currently connected relay.
// Each successful delivery emits one record on the message stream; the call
// as a whole emits a single broadcast event on the pool event stream.
func (p *Pool) Broadcast(msg []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	targets := p.connectedMembersLocked()
	p.mu.Unlock()

	delivered := 0
	for _, m := range targets {
		if p.deliver(m, msg) {
			delivered++
		}
	}

	p.eventsHub.Publish(Event{
		Type:       EventBroadcast,
		Recipients: delivered,
		At:         time.Now(),
	})
	return nil
}

// SendToRelay delivers a payload to exactly one relay. It returns
// ErrUnknownRelay for an unregistered identity and relay.ErrNotConnected
// for a registered relay outside the connected view; it never silently
// drops a send.
func (p *Pool) SendToRelay(url string, msg []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	m, ok := p.members[url]
	if !ok {
		p.mu.Unlock()
		return ErrUnknownRelay
	}
	if m.status != statusConnected || m.conn == nil {
		p.mu.Unlock()
		return relay.ErrNotConnected
	}
	p.mu.Unlock()

	if !p.deliver(m, msg) {
		return relay.ErrNotConnected
	}
	p.eventsHub.Publish(Event{
		Type:       EventMessageSent,
		Relay:      url,
		Recipients: 1,
		At:         time.Now(),
	})
	return nil
}

// deliver performs one send, updating health and emitting the per-recipient
// message record on success.
func (p *Pool) deliver(m *member, msg []byte) bool {
	p.mu.Lock()
	conn := m.conn
	p.mu.Unlock()
	if conn == nil {
		return false
	}

	r := m.relay
	r.BeginSend()
	err := conn.Send(msg)
	r.EndSend()

	if err != nil {
		r.ObserveError()
		p.logger.Warn("send failed", "relay", r.URL(), "error", err)
		return false
	}
	r.ObserveSuccess()
	metrics.MessagesSent.Inc()
	p.messagesHub.Publish(Message{Relay: r.URL(), Data: msg})
	return true
}

// SelectRelay delegates to the configured load balancer over the current
// connected view.
func (p *Pool) SelectRelay() (*relay.Relay, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	targets := p.connectedMembersLocked()
	p.mu.Unlock()

	candidates := make([]*relay.Relay, len(targets))
	for i, m := range targets {
		candidates[i] = m.relay
	}
	return p.balancer.Select(candidates)
}

// AddRelay registers a new relay at runtime and attempts to connect it,
// subject to the same capacity rule as ConnectAll.
func (p *Pool) AddRelay(ctx context.Context, url string, cfg relay.Config) (*relay.Relay, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if _, exists := p.members[url]; exists {
		p.mu.Unlock()
		return nil, ErrDuplicateRelay
	}
	m := &member{
		relay: relay.New(url, cfg),
		seq:   p.nextSeq,
	}
	p.nextSeq++
	p.members[url] = m
	p.mu.Unlock()

	p.eventsHub.Publish(Event{Type: EventRelayAdded, Relay: url, At: time.Now()})
	p.attempt(ctx, m)
	return m.relay, nil
}

// RemoveRelay disconnects and deregisters a relay. The relay is excluded
// from the connected view, broadcasts, and balancing immediately; no lost or
// failover event is emitted for an explicit removal. An unregistered
// identity returns ErrUnknownRelay.
func (p *Pool) RemoveRelay(url string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	m, ok := p.members[url]
	if !ok {
		p.mu.Unlock()
		return ErrUnknownRelay
	}
	m.removed = true
	wasConnected := m.status == statusConnected
	conn := m.conn
	m.conn = nil
	delete(p.members, url)
	p.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	p.teardownRelay(m.relay, wasConnected, "removed from pool")
	if wasConnected {
		metrics.ConnectionsCurrent.Dec()
	}
	p.logger.Info("relay removed", "relay", url)
	p.eventsHub.Publish(Event{Type: EventRelayRemoved, Relay: url, At: time.Now()})
	return nil
}

// teardownRelay walks a relay's machine to closed and disposes it.
func (p *Pool) teardownRelay(r *relay.Relay, wasConnected bool, reason string) {
	sm := r.Machine()
	if wasConnected {
		sm.TransitionTo(relay.StateDisconnected, reason)
	}
	if err := sm.TransitionTo(relay.StateClosed, reason); err != nil {
		p.logger.Debug("relay already closed", "relay", r.URL(), "error", err)
	}
	sm.Dispose()
}

// GetRelay looks up a registered relay by identity.
func (p *Pool) GetRelay(url string) (*relay.Relay, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.members[url]
	if !ok {
		return nil, false
	}
	return m.relay, true
}

// Close disconnects and releases every relay and closes all event streams.
// The pool is permanently unusable afterwards: every mutating operation
// returns ErrPoolClosed. Close itself is idempotent.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	type teardown struct {
		relay        *relay.Relay
		conn         relay.Conn
		wasConnected bool
	}
	var toClose []teardown
	for url, m := range p.members {
		m.removed = true
		toClose = append(toClose, teardown{
			relay:        m.relay,
			conn:         m.conn,
			wasConnected: m.status == statusConnected,
		})
		m.conn = nil
		delete(p.members, url)
	}
	p.mu.Unlock()

	for _, td := range toClose {
		if td.conn != nil {
			td.conn.Close()
		}
		p.teardownRelay(td.relay, td.wasConnected, "pool disposed")
		if td.wasConnected {
			metrics.ConnectionsCurrent.Dec()
		}
	}

	p.wg.Wait()

	p.connectedHub.Close()
	p.lostHub.Close()
	p.messagesHub.Close()
	p.receivedHub.Close()
	p.failoverHub.Close()
	p.eventsHub.Close()

	p.logger.Info("pool closed", "relays", len(toClose))
	return nil
}

// connectedMembersLocked returns connected members in registration order.
func (p *Pool) connectedMembersLocked() []*member {
	var out []*member
	for _, m := range p.members {
		if m.status == statusConnected && m.conn != nil {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// ConnectedRelays returns the identities in the connected view, in
// registration order.
func (p *Pool) ConnectedRelays() []string {
	return p.viewURLs(statusConnected)
}

// FailedRelays returns the identities in the failed view.
func (p *Pool) FailedRelays() []string {
	return p.viewURLs(statusFailed)
}

// PendingRelays returns the identities registered but not yet attempted or
// awaiting a capacity slot.
func (p *Pool) PendingRelays() []string {
	return p.viewURLs(statusPending)
}

func (p *Pool) viewURLs(status memberStatus) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var members []*member
	for _, m := range p.members {
		if m.status == status {
			members = append(members, m)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].seq < members[j].seq })

	out := make([]string, len(members))
	for i, m := range members {
		out[i] = m.relay.URL()
	}
	return out
}

// ConnectionCount returns the size of the connected view.
func (p *Pool) ConnectionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connectedCountLocked()
}

// IsConnected reports whether at least one relay is connected.
func (p *Pool) IsConnected() bool {
	return p.ConnectionCount() > 0
}

// State returns the overall pool state derived from the connected and total
// registered counts.
func (p *Pool) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return aggregateState(p.connectedCountLocked(), len(p.members))
}

// Connected streams identities of newly established relays.
func (p *Pool) Connected() (<-chan string, func()) {
	return p.connectedHub.Subscribe()
}

// Lost streams identities of relays lost unexpectedly.
func (p *Pool) Lost() (<-chan string, func()) {
	return p.lostHub.Subscribe()
}

// Messages streams one record per successful payload delivery.
func (p *Pool) Messages() (<-chan Message, func()) {
	return p.messagesHub.Subscribe()
}

// Received streams inbound payloads from all connected relays.
func (p *Pool) Received() (<-chan Message, func()) {
	return p.receivedHub.Subscribe()
}

// Failovers streams failover events for unexpected disconnects.
func (p *Pool) Failovers() (<-chan FailoverEvent, func()) {
	return p.failoverHub.Subscribe()
}

// Events streams the generalized tagged pool event trace.
func (p *Pool) Events() (<-chan Event, func()) {
	return p.eventsHub.Subscribe()
}
