package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *RelaydConfig) Validate() error {
	if len(c.Relays) == 0 {
		return errors.New("at least one relay is required")
	}

	seen := make(map[string]bool, len(c.Relays))
	for i, r := range c.Relays {
		if r.URL == "" {
			return fmt.Errorf("relays[%d].url is required", i)
		}
		u, err := url.Parse(r.URL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("relays[%d].url must be a ws:// or wss:// URL, got %q", i, r.URL)
		}
		if seen[r.URL] {
			return fmt.Errorf("relays[%d].url %q is duplicated", i, r.URL)
		}
		seen[r.URL] = true
		if r.Timeout < 0 {
			return fmt.Errorf("relays[%d].timeout must be >= 0", i)
		}
	}

	if c.Pool.MaxConnections < 0 {
		return errors.New("pool.max_connections must be >= 0")
	}
	switch c.Pool.Establishment {
	case "priority", "parallel":
	default:
		return fmt.Errorf("pool.establishment must be \"priority\" or \"parallel\", got %q", c.Pool.Establishment)
	}
	switch c.Pool.Balancer {
	case "round_robin", "least_connections", "lowest_latency":
	default:
		return fmt.Errorf("pool.balancer must be one of round_robin, least_connections, lowest_latency, got %q", c.Pool.Balancer)
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}
