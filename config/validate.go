package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/TEENet-io/watchtower-go/agreement"
	"github.com/go-playground/validator/v10"
)

var ErrInvalidConfig = errors.New("invalid configuration")

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Validate checks field constraints and then the relations between chains,
// roles and routes.
func (cfg *Config) Validate() error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	names := make(map[string]bool, len(cfg.Chains))
	keys := make(map[agreement.ChainKey]string, len(cfg.Chains))
	for i := range cfg.Chains {
		c := &cfg.Chains[i]
		if names[c.Name] {
			return invalid("duplicate chain name %q", c.Name)
		}
		names[c.Name] = true

		key, err := c.ChainKey()
		if err != nil {
			return invalid("chain %s: %v", c.Name, err)
		}
		if other, ok := keys[key]; ok {
			return invalid("chains %s and %s have the same chain key %s", other, c.Name, key.Hex())
		}
		keys[key] = c.Name

		if c.OperatorKey != "" && sameKey(c.OperatorKey, c.CancelerKey) {
			return invalid("chain %s: operator and canceler must use different keys", c.Name)
		}
	}

	if err := cfg.checkRoutes("operator.sources", cfg.Operator.Sources); err != nil {
		return err
	}
	if err := cfg.checkRoutes("operator.destinations", cfg.Operator.Destinations); err != nil {
		return err
	}
	if err := cfg.checkRoutes("canceler.destinations", cfg.Canceler.Destinations); err != nil {
		return err
	}
	for _, fee := range cfg.Operator.Fees {
		if !names[fee.Chain] {
			return invalid("operator.fees: unknown chain %q", fee.Chain)
		}
	}

	if cfg.Operator.Enabled {
		for _, name := range cfg.OperatorDestinations() {
			c, _ := cfg.Chain(name)
			if c.OperatorKey == "" {
				return invalid("chain %s: operator enabled without operator_key", name)
			}
		}
	}
	if cfg.Canceler.Enabled {
		for _, name := range cfg.CancelerDestinations() {
			c, _ := cfg.Chain(name)
			if c.CancelerKey == "" {
				return invalid("chain %s: canceler enabled without canceler_key", name)
			}
		}
	}
	return nil
}

func (cfg *Config) checkRoutes(field string, routes []string) error {
	for _, name := range routes {
		if _, ok := cfg.Chain(name); !ok {
			return invalid("%s: unknown chain %q", field, name)
		}
	}
	return nil
}

func sameKey(a, b string) bool {
	norm := func(s string) string {
		return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	}
	return norm(a) == norm(b)
}
