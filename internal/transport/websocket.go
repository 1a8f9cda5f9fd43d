// Package transport provides the WebSocket implementation of the pool's
// dialer contract. It is the only package that knows the wire transport;
// the pool and relay packages treat payloads as opaque bytes.
package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nostrvine/relaypool/internal/relay"
)

// ErrStaleConnection is surfaced when a connection goes silent past the
// stale timeout.
var ErrStaleConnection = errors.New("connection stale (no activity)")

const (
	defaultWriteTimeout  = 5 * time.Second
	defaultMessageBuffer = 256
	staleCheckInterval   = 15 * time.Second
	staleTimeout         = 90 * time.Second
)

// WebSocketDialer dials relays over WebSocket.
type WebSocketDialer struct {
	logger       *slog.Logger
	writeTimeout time.Duration
}

// NewWebSocketDialer creates a dialer. A nil logger falls back to
// slog.Default().
func NewWebSocketDialer(logger *slog.Logger) *WebSocketDialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketDialer{
		logger:       logger,
		writeTimeout: defaultWriteTimeout,
	}
}

// Dial establishes a WebSocket connection to the relay, sending the
// configured headers during the handshake. The attempt is bounded by the
// relay's configured timeout via both the context and the handshake
// deadline.
func (d *WebSocketDialer) Dial(ctx context.Context, url string, cfg relay.Config) (relay.Conn, error) {
	header := http.Header{}
	for k, v := range cfg.Headers {
		header.Set(k, v)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.Timeout,
	}
	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}

	c := &wsConn{
		conn:         conn,
		logger:       d.logger.With("relay", url),
		writeTimeout: d.writeTimeout,
		messages:     make(chan []byte, defaultMessageBuffer),
		errors:       make(chan error, 1),
		done:         make(chan struct{}),
		lastActivity: time.Now(),
	}

	// Server pings refresh the activity clock; the pong reply is written
	// under the same control deadline the tearer-down uses.
	conn.SetPingHandler(func(data string) error {
		c.touch()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	go c.readLoop()
	go c.staleLoop()

	d.logger.Debug("websocket connected", "relay", url)
	return c, nil
}

// wsConn is one established WebSocket connection.
type wsConn struct {
	conn         *websocket.Conn
	logger       *slog.Logger
	writeTimeout time.Duration

	messages chan []byte
	errors   chan error
	done     chan struct{}

	writeMu sync.Mutex

	mu           sync.Mutex
	closed       bool
	lastActivity time.Time
}

// Send writes an opaque payload as one text frame.
func (c *wsConn) Send(data []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return relay.ErrNotConnected
	}
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Messages returns the inbound payload channel. It is closed when the
// connection ends, whatever the cause.
func (c *wsConn) Messages() <-chan []byte {
	return c.messages
}

// Errors returns a channel yielding at most one terminal connection error.
func (c *wsConn) Errors() <-chan error {
	return c.errors
}

// Close tears the connection down. It is idempotent.
func (c *wsConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)

	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.conn.Close()
}

func (c *wsConn) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// readLoop reads frames until the connection ends. A read error on a live
// connection is surfaced on the errors channel; an error after Close is the
// expected teardown and stays silent. The messages channel always closes
// when the loop exits.
func (c *wsConn) readLoop() {
	defer close(c.messages)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				select {
				case c.errors <- err:
				default:
				}
			}
			return
		}

		c.touch()

		select {
		case c.messages <- data:
		case <-c.done:
			return
		default:
			c.logger.Warn("inbound buffer full, dropping message")
		}
	}
}

// staleLoop flags a connection that has gone silent past the stale timeout.
func (c *wsConn) staleLoop() {
	ticker := time.NewTicker(staleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			last := c.lastActivity
			c.mu.Unlock()

			if time.Since(last) > staleTimeout {
				c.logger.Warn("connection stale, closing", "last_activity", last)
				select {
				case c.errors <- ErrStaleConnection:
				default:
				}
				c.Close()
				return
			}
		}
	}
}
