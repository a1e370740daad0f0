package ratelimit

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the tiered rule sets and path policy for the limiter.
// Authentication-surface paths always get the auth tier regardless of
// identity; otherwise authenticated callers get the logged-in tier and
// anonymous callers the public tier.
type Config struct {
	Auth     RuleSet `yaml:"auth"`
	LoggedIn RuleSet `yaml:"loggedin"`
	Public   RuleSet `yaml:"public"`

	// AuthPathPrefixes mark the authentication surface (login,
	// registration) that gets the strictest tier
	AuthPathPrefixes []string `yaml:"auth_path_prefixes"`

	// ExcludedPaths bypass rate limiting entirely
	ExcludedPaths []string `yaml:"excluded_paths"`

	// HeadersEnabled attaches X-RateLimit-* headers derived from the
	// sustained rule to every rate-limited response
	HeadersEnabled bool `yaml:"headers_enabled"`

	// KeyPrefix is the Redis key prefix for window counters
	KeyPrefix string `yaml:"key_prefix"`
}

// DefaultConfig returns the default tier quotas
func DefaultConfig() *Config {
	return &Config{
		Auth: RuleSet{
			Burst:     Rule{Name: "auth-burst", Quota: 2, Window: time.Second},
			Sustained: Rule{Name: "auth-sustained", Quota: 60, Window: time.Minute},
		},
		LoggedIn: RuleSet{
			Burst:     Rule{Name: "loggedin-burst", Quota: 10, Window: time.Second},
			Sustained: Rule{Name: "loggedin-sustained", Quota: 300, Window: time.Minute},
		},
		Public: RuleSet{
			Burst:     Rule{Name: "public-burst", Quota: 5, Window: time.Second},
			Sustained: Rule{Name: "public-sustained", Quota: 100, Window: time.Minute},
		},
		AuthPathPrefixes: []string{"/v1/auth"},
		ExcludedPaths:    []string{"/healthz", "/metrics"},
		HeadersEnabled:   false,
		KeyPrefix:        "ratelimit",
	}
}

// LoadConfigFromEnv loads quota overrides from environment variables
func LoadConfigFromEnv() *Config {
	config := DefaultConfig()

	setQuota := func(env string, quota *int) {
		if v := os.Getenv(env); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*quota = n
			}
		}
	}

	setQuota("RATE_LIMIT_PER_SECOND_AUTH", &config.Auth.Burst.Quota)
	setQuota("RATE_LIMIT_PER_MINUTE_AUTH", &config.Auth.Sustained.Quota)
	setQuota("RATE_LIMIT_PER_SECOND_LOGGEDIN", &config.LoggedIn.Burst.Quota)
	setQuota("RATE_LIMIT_PER_MINUTE_LOGGEDIN", &config.LoggedIn.Sustained.Quota)
	setQuota("RATE_LIMIT_PER_SECOND_PUBLIC", &config.Public.Burst.Quota)
	setQuota("RATE_LIMIT_PER_MINUTE_PUBLIC", &config.Public.Sustained.Quota)

	if v := os.Getenv("RATE_LIMIT_HEADERS_ENABLED"); v != "" {
		config.HeadersEnabled = v == "true" || v == "1"
	}

	return config
}

// LoadConfigFromFile loads a YAML rule file over the defaults
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rate limit config: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse rate limit config: %w", err)
	}
	return config, nil
}

// Select returns the rule set for a request: auth paths win over identity,
// then authenticated vs anonymous.
func (c *Config) Select(path string, authenticated bool) RuleSet {
	for _, prefix := range c.AuthPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return c.Auth
		}
	}
	if authenticated {
		return c.LoggedIn
	}
	return c.Public
}

// Excluded reports whether a path bypasses rate limiting
func (c *Config) Excluded(path string) bool {
	for _, excluded := range c.ExcludedPaths {
		if path == excluded || strings.HasPrefix(path, excluded+"/") {
			return true
		}
	}
	return false
}
