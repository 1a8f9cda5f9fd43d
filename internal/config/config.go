// Package config loads and validates relayd configuration from YAML.
package config

import "time"

// RelaydConfig is the root configuration for a relayd instance.
type RelaydConfig struct {
	Relays  []RelayConfig `yaml:"relays"`
	Pool    PoolConfig    `yaml:"pool"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// RelayConfig registers one relay endpoint.
type RelayConfig struct {
	URL      string            `yaml:"url"`
	Priority int               `yaml:"priority"`
	Timeout  time.Duration     `yaml:"timeout"`
	Headers  map[string]string `yaml:"headers"`
}

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	MaxConnections int    `yaml:"max_connections"`
	Establishment  string `yaml:"establishment"` // "priority" or "parallel"
	Balancer       string `yaml:"balancer"`      // "round_robin", "least_connections", "lowest_latency"
	EventBuffer    int    `yaml:"event_buffer"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
