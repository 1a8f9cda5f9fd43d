// Package events provides a generic multicast hub for fanning events out to
// subscribers. Publishes are ordered per subscriber, never buffered for late
// subscribers, and never replayed.
package events

import (
	"sync"

	"github.com/google/uuid"
)

// DefaultBuffer is the per-subscriber channel buffer size.
const DefaultBuffer = 64

// Hub fans values out to all current subscribers.
//
// A slow subscriber whose buffer is full misses the value rather than
// blocking the publisher or other subscribers.
type Hub[T any] struct {
	mu     sync.Mutex
	subs   map[string]chan T
	buffer int
	closed bool
}

// NewHub creates a hub. A non-positive buffer falls back to DefaultBuffer.
func NewHub[T any](buffer int) *Hub[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub[T]{
		subs:   make(map[string]chan T),
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber and returns its channel plus a cancel
// function. The channel is closed on cancel or when the hub closes. Only
// values published after Subscribe returns are delivered, and a subscriber
// that falls more than the hub's buffer behind misses values; size the
// buffer for the worst-case publish burst if every value matters.
func (h *Hub[T]) Subscribe() (<-chan T, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan T, h.buffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := uuid.NewString()
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers v to every current subscriber. Successive publishes are
// observed by each subscriber in publish order. Delivery to a subscriber
// with a full buffer is skipped.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	for _, ch := range h.subs {
		select {
		case ch <- v:
		default:
			// Subscriber buffer full, drop for this subscriber.
		}
	}
}

// Close closes all subscriber channels. Subsequent publishes are no-ops and
// subsequent subscriptions receive an already-closed channel.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub[T]) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
