package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

import (
	"gopkg.in/yaml.v3"
)

// ServerCfg — listen address and upstream target.
type ServerCfg struct {
	HTTPAddr    string `yaml:"httpAddr"`    // listen address, e.g. ":8080"
	UpstreamURL string `yaml:"upstreamUrl"` // marketplace backend base URL, e.g. "http://127.0.0.1:9000"
}

// RedisCfg — connection and namespace settings for the shared-store variant.
type RedisCfg struct {
	Addr           string `yaml:"addr"`           // Redis address, e.g. "127.0.0.1:6379"
	Password       string `yaml:"password"`       // Redis password
	DB             int    `yaml:"db"`             // Redis DB index
	Prefix         string `yaml:"prefix"`         // key prefix
	PoolSize       int    `yaml:"poolSize"`       // connection pool size
	MinIdleConns   int    `yaml:"minIdleConns"`   // minimum idle connections
	DialTimeoutMs  int    `yaml:"dialTimeoutMs"`  // dial timeout (ms)
	ReadTimeoutMs  int    `yaml:"readTimeoutMs"`  // read timeout (ms)
	WriteTimeoutMs int    `yaml:"writeTimeoutMs"` // write timeout (ms)
	MaxRetries     int    `yaml:"maxRetries"`     // command retry count
}

// RouteCfg pins a rule to one exact method+path pair.
type RouteCfg struct {
	Method string `yaml:"method" json:"method"`
	Path   string `yaml:"path"   json:"path"`
}

// Rule — a single rate-limit rule. Exactly one of Prefix or Route must be set.
// Route rules are more specific and win over prefix rules; their buckets are
// additionally keyed by request path.
type Rule struct {
	Key      string   `yaml:"key"      json:"key"`      // logical bucket name, unique
	Capacity int64    `yaml:"capacity" json:"capacity"` // tokens per window
	RefillMs int64    `yaml:"refillMs" json:"refillMs"` // window over which Capacity tokens replenish
	Prefix   string   `yaml:"prefix"   json:"prefix"`   // request-path prefix matcher
	Route    RouteCfg `yaml:"route"    json:"route"`    // exact route matcher
}

// HasRoute reports whether the rule is route-scoped.
func (r Rule) HasRoute() bool {
	return r.Route.Path != ""
}

// IdempotencyCfg — retry-deduplication settings.
type IdempotencyCfg struct {
	TTLHours        int      `yaml:"ttlHours"`        // record lifetime, default 24
	SweepIntervalMs int      `yaml:"sweepIntervalMs"` // expiry sweep cadence, default 60000
	BypassPrefixes  []string `yaml:"bypassPrefixes"`  // auth/realtime paths never cached
}

// Config — full gateway configuration.
type Config struct {
	Server      ServerCfg      `yaml:"server"`
	Store       string         `yaml:"store"` // "memory" (default) or "redis"
	Redis       RedisCfg       `yaml:"redis"`
	Rules       []Rule         `yaml:"rules"`
	Idempotency IdempotencyCfg `yaml:"idempotency"`
}

// Load reads a YAML config file, expanding ${ENV} references first.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	expanded := os.ExpandEnv(string(b))
	var c Config
	if err := yaml.Unmarshal([]byte(expanded), &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Store) == "" {
		c.Store = "memory"
	}
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	if c.Idempotency.TTLHours <= 0 {
		c.Idempotency.TTLHours = 24
	}
	if c.Idempotency.SweepIntervalMs <= 0 {
		c.Idempotency.SweepIntervalMs = 60000
	}
}

// Validate rejects configs the admission layer cannot run on.
func (c *Config) Validate() error {
	if c.Store != "memory" && c.Store != "redis" {
		return fmt.Errorf("unsupported store: %q", c.Store)
	}
	if c.Store == "redis" && strings.TrimSpace(c.Redis.Addr) == "" {
		return errors.New("store is redis but redis.addr is empty")
	}
	seen := make(map[string]bool, len(c.Rules))
	for i, r := range c.Rules {
		if strings.TrimSpace(r.Key) == "" {
			return fmt.Errorf("rules[%d]: key is required", i)
		}
		if seen[r.Key] {
			return fmt.Errorf("rules[%d]: duplicate key %q", i, r.Key)
		}
		seen[r.Key] = true
		if r.Capacity <= 0 {
			return fmt.Errorf("rule %q: capacity must be > 0", r.Key)
		}
		if r.RefillMs <= 0 {
			return fmt.Errorf("rule %q: refillMs must be > 0", r.Key)
		}
		hasPrefix := strings.TrimSpace(r.Prefix) != ""
		if hasPrefix == r.HasRoute() {
			return fmt.Errorf("rule %q: exactly one of prefix or route must be set", r.Key)
		}
		if r.HasRoute() && strings.TrimSpace(r.Route.Method) == "" {
			return fmt.Errorf("rule %q: route.method is required", r.Key)
		}
	}
	return nil
}
