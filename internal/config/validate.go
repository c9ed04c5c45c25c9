package config

import (
	"errors"
	"fmt"
)

// Validate rejects settings the gateway cannot run with. A reload that fails
// validation leaves the previous configuration in place.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver))
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required for sqlite"))
	}
	switch c.Catalog.Source {
	case "database", "config":
	default:
		errs = append(errs, fmt.Errorf("catalog.source must be database or config, got %q", c.Catalog.Source))
	}
	switch c.Filter.Secrets.Action {
	case "", "flag", "block":
	default:
		errs = append(errs, fmt.Errorf("filter.secrets.action must be flag or block, got %q", c.Filter.Secrets.Action))
	}
	inj := c.Filter.Injection
	if inj.FlagThreshold < 0 || inj.BlockThreshold > 1 || inj.FlagThreshold > inj.BlockThreshold {
		errs = append(errs, errors.New("filter.injection thresholds must satisfy 0 <= flag_threshold <= block_threshold <= 1"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Routing.CircuitBreaker.RecoveryProbeInterval < 0 {
		errs = append(errs, errors.New("routing.circuit_breaker.recovery_probe_interval must not be negative"))
	}
	return errors.Join(errs...)
}

// Validate checks model ids are unique and prices are not negative.
func (m *ModelsConfig) Validate() error {
	seen := make(map[string]struct{}, len(m.Models))
	for _, e := range m.Models {
		if e.ID == "" || e.Provider == "" {
			return fmt.Errorf("model entry needs id and provider: %+v", e)
		}
		if _, dup := seen[e.ID]; dup {
			return fmt.Errorf("duplicate model id %q", e.ID)
		}
		seen[e.ID] = struct{}{}
		if e.PriceInputPer1K < 0 || e.PriceOutputPer1K < 0 {
			return fmt.Errorf("model %s: prices must not be negative", e.ID)
		}
	}
	return nil
}
