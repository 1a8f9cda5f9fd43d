// Package pool implements the relay connection pool.
//
// The pool:
//   - Owns the full set of registered relays and their lifecycles
//   - Connects them under a priority or parallel establishment strategy
//   - Enforces a configurable cap on concurrent connections
//   - Routes traffic via broadcast, direct send, or a load-balanced pick
//   - Surfaces unexpected disconnects as failover events
//
// Failed relays are quarantined in the failed view and re-attempted only
// through an explicit ReconnectFailed call; the pool runs no implicit
// reconnect loop.
package pool
