// Package balancer selects a target relay from the pool's live connected
// set under a pluggable strategy. Strategies never mutate the candidate
// slice; the caller supplies the current connected view on every call.
package balancer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nostrvine/relaypool/internal/relay"
)

// Errors
var (
	ErrNoCandidates = errors.New("no candidate relays")
)

// Strategy identifies a selection strategy.
type Strategy string

const (
	// RoundRobin cycles through candidates in supplied order, wrapping
	// after the last.
	RoundRobin Strategy = "round_robin"

	// LeastConnections picks the candidate with the fewest in-flight
	// operations, ties broken by input order.
	LeastConnections Strategy = "least_connections"

	// LowestLatency picks the candidate with the smallest average recorded
	// latency, ties broken by input order. Candidates with no samples
	// report zero latency and therefore rank best.
	LowestLatency Strategy = "lowest_latency"
)

// Balancer picks one relay from a non-empty candidate set.
type Balancer interface {
	Select(candidates []*relay.Relay) (*relay.Relay, error)
}

// New returns a balancer for the given strategy.
func New(s Strategy) (Balancer, error) {
	switch s {
	case RoundRobin:
		return &roundRobin{}, nil
	case LeastConnections:
		return leastConnections{}, nil
	case LowestLatency:
		return lowestLatency{}, nil
	default:
		return nil, fmt.Errorf("unknown balancer strategy %q", s)
	}
}

// roundRobin keeps a cursor across successive calls on the same instance.
type roundRobin struct {
	mu   sync.Mutex
	next int
}

func (b *roundRobin) Select(candidates []*relay.Relay) (*relay.Relay, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	r := candidates[b.next%len(candidates)]
	b.next++
	return r, nil
}

type leastConnections struct{}

func (leastConnections) Select(candidates []*relay.Relay) (*relay.Relay, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	best := candidates[0]
	bestCount := best.InFlight()
	for _, c := range candidates[1:] {
		if n := c.InFlight(); n < bestCount {
			best = c
			bestCount = n
		}
	}
	return best, nil
}

type lowestLatency struct{}

func (lowestLatency) Select(candidates []*relay.Relay) (*relay.Relay, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	best := candidates[0]
	bestLatency := best.Health().AverageLatency()
	for _, c := range candidates[1:] {
		if l := c.Health().AverageLatency(); l < bestLatency {
			best = c
			bestLatency = l
		}
	}
	return best, nil
}
