package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRelayTimeout  = 10 * time.Second
	DefaultEstablishment = "parallel"
	DefaultBalancer      = "round_robin"
	DefaultEventBuffer   = 64
	DefaultMetricsPort   = 9090
	DefaultMetricsPath   = "/metrics"
)

func (c *RelaydConfig) applyDefaults() {
	for i := range c.Relays {
		if c.Relays[i].Timeout == 0 {
			c.Relays[i].Timeout = DefaultRelayTimeout
		}
	}

	if c.Pool.Establishment == "" {
		c.Pool.Establishment = DefaultEstablishment
	}
	if c.Pool.Balancer == "" {
		c.Pool.Balancer = DefaultBalancer
	}
	if c.Pool.EventBuffer == 0 {
		c.Pool.EventBuffer = DefaultEventBuffer
	}

	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}
