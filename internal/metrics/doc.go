// Package metrics provides Prometheus metrics for monitoring the relay
// pool.
//
// Key metrics:
//   - Connection attempt outcomes and current connection count
//   - Message delivery throughput
//   - Failover occurrences
//   - Per-relay health scores
package metrics
