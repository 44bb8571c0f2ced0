// Package security implements the three-checkpoint trust gate applied while
// resolving action links: websites, interstitials and action endpoints are
// each classified by a trust oracle and compared against a configured level.
package security

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Level is the minimum trust a checkpoint requires.
type Level string

const (
	OnlyTrusted  Level = "only-trusted"
	NonMalicious Level = "non-malicious"
	All          Level = "all"
)

// ParseLevel accepts the canonical names, case-insensitively.
func ParseLevel(s string) (Level, error) {
	switch l := Level(strings.ToLower(strings.TrimSpace(s))); l {
	case OnlyTrusted, NonMalicious, All:
		return l, nil
	}
	return "", fmt.Errorf("security: unknown level %q", s)
}

// TrustState is what the oracle reports for a URL.
type TrustState string

const (
	Trusted   TrustState = "trusted"
	Unknown   TrustState = "unknown"
	Malicious TrustState = "malicious"
)

// Category names a checkpoint.
type Category string

const (
	Websites      Category = "websites"
	Interstitials Category = "interstitials"
	Actions       Category = "actions"
)

// Evaluate reports whether state passes level. An unrecognised level is
// treated as only-trusted.
func Evaluate(state TrustState, level Level) bool {
	switch level {
	case All:
		return true
	case NonMalicious:
		return state != Malicious
	default:
		return state == Trusted
	}
}

// Policy is the per-category threshold. It is immutable after setup and
// shared by every dispatch.
type Policy struct {
	Websites      Level `json:"websites" yaml:"websites"`
	Interstitials Level `json:"interstitials" yaml:"interstitials"`
	Actions       Level `json:"actions" yaml:"actions"`
}

// DefaultPolicy requires trusted classification at every checkpoint.
func DefaultPolicy() Policy { return Uniform(OnlyTrusted) }

// Uniform broadcasts one level to all categories.
func Uniform(l Level) Policy {
	return Policy{Websites: l, Interstitials: l, Actions: l}
}

// Level returns the threshold for a category.
func (p Policy) Level(c Category) Level {
	switch c {
	case Websites:
		return p.Websites
	case Interstitials:
		return p.Interstitials
	default:
		return p.Actions
	}
}

// Check evaluates state against the threshold of category c.
func (p Policy) Check(c Category, state TrustState) bool {
	return Evaluate(state, p.Level(c))
}

// withDefaults fills empty categories with only-trusted.
func (p Policy) withDefaults() Policy {
	if p.Websites == "" {
		p.Websites = OnlyTrusted
	}
	if p.Interstitials == "" {
		p.Interstitials = OnlyTrusted
	}
	if p.Actions == "" {
		p.Actions = OnlyTrusted
	}
	return p
}

func (p Policy) validate() error {
	for _, l := range []Level{p.Websites, p.Interstitials, p.Actions} {
		if _, err := ParseLevel(string(l)); err != nil {
			return err
		}
	}
	return nil
}

// Config is the user-facing security setting: either a single level for
// every category, or a per-category record.
//
//	security_level: all
//	security_level: {websites: only-trusted, actions: non-malicious}
type Config struct {
	policy Policy
	set    bool
}

// NewConfig wraps an explicit policy.
func NewConfig(p Policy) Config { return Config{policy: p, set: true} }

// Policy returns the effective policy. The zero Config yields DefaultPolicy.
func (c Config) Policy() Policy {
	if !c.set {
		return DefaultPolicy()
	}
	return c.policy.withDefaults()
}

// UnmarshalYAML accepts a scalar or a mapping.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		l, err := ParseLevel(node.Value)
		if err != nil {
			return err
		}
		*c = NewConfig(Uniform(l))
		return nil
	case yaml.MappingNode:
		var p Policy
		if err := node.Decode(&p); err != nil {
			return fmt.Errorf("security: decode policy: %w", err)
		}
		return c.setRecord(p)
	}
	return fmt.Errorf("security: line %d: expected level or mapping", node.Line)
}

// UnmarshalJSON accepts a string or an object.
func (c *Config) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		l, err := ParseLevel(s)
		if err != nil {
			return err
		}
		*c = NewConfig(Uniform(l))
		return nil
	}
	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("security: decode policy: %w", err)
	}
	return c.setRecord(p)
}

// MarshalJSON always emits the full record.
func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Policy())
}

func (c *Config) setRecord(p Policy) error {
	p = p.withDefaults()
	if err := p.validate(); err != nil {
		return err
	}
	*c = NewConfig(p)
	return nil
}
