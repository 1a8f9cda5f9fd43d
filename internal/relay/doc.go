// Package relay implements the per-relay building blocks of the pool:
//
//   - Machine: the connection lifecycle state machine
//   - Health: rolling success/error/latency statistics
//   - Relay: one remote endpoint binding identity, configuration,
//     state machine, and health tracker
//
// The transport layer drives a Relay through its lifecycle hooks
// (ConnectStarted, ConnectSucceeded, ConnectFailed, Disconnected); the pool
// observes the resulting state transitions through the machine's stream.
package relay
