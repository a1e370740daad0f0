// Package ratelimit enforces dual-window (burst + sustained) request
// quotas per caller identity, backed by Redis fixed-window counters.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Rule is a quota over a fixed duration for one identity
type Rule struct {
	Name   string        `yaml:"name"`
	Quota  int           `yaml:"quota"`
	Window time.Duration `yaml:"window"`
}

func (r Rule) String() string {
	return fmt.Sprintf("%s: %d per %s", r.Name, r.Quota, r.Window)
}

// UnmarshalYAML accepts window values like "1s" or "1m". Fields absent
// from the document keep their current values so rule files can override
// defaults partially.
func (r *Rule) UnmarshalYAML(value *yaml.Node) error {
	raw := struct {
		Name   string `yaml:"name"`
		Quota  int    `yaml:"quota"`
		Window string `yaml:"window"`
	}{
		Name:   r.Name,
		Quota:  r.Quota,
		Window: r.Window.String(),
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	window, err := time.ParseDuration(raw.Window)
	if err != nil {
		return fmt.Errorf("rule %s: parse window %q: %w", raw.Name, raw.Window, err)
	}
	r.Name = raw.Name
	r.Quota = raw.Quota
	r.Window = window
	return nil
}

// RuleSet pairs the two rules evaluated together for every rate-limited
// request: a short-horizon burst rule and a long-horizon sustained rule.
type RuleSet struct {
	Burst     Rule `yaml:"burst"`
	Sustained Rule `yaml:"sustained"`
}

// Stats describes the current state of one rule's window for an identity
type Stats struct {
	Limit     int
	Remaining int
	Reset     time.Duration // time until the window resets
}

// Limiter decides admission for one (rule, identity) charge
type Limiter interface {
	// Hit atomically charges one event against the rule's current window
	// and reports whether the quota held. Charging is never rolled back.
	Hit(ctx context.Context, rule Rule, identity string) (bool, error)

	// WindowStats reports the rule's current window state for an identity
	// without charging it.
	WindowStats(ctx context.Context, rule Rule, identity string) (Stats, error)
}

// Error reports a denied request. It carries the rule pair that was
// evaluated and the subset that was actually violated; it is a client
// error, never retried by the server.
type Error struct {
	Rules    RuleSet
	Violated []Rule
}

func (e *Error) Error() string {
	names := make([]string, len(e.Violated))
	for i, r := range e.Violated {
		names[i] = r.String()
	}
	return fmt.Sprintf("rate limit exceeded: %s (evaluated %s and %s)",
		strings.Join(names, " and "), e.Rules.Burst, e.Rules.Sustained)
}

// ViolatedNames returns the names of the violated rules
func (e *Error) ViolatedNames() []string {
	names := make([]string, len(e.Violated))
	for i, r := range e.Violated {
		names[i] = r.Name
	}
	return names
}
