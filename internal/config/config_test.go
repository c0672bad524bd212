package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  httpAddr: ":8080"
  upstreamUrl: "http://127.0.0.1:9000"
store: "memory"
rules:
  - key: "auth"
    capacity: 5
    refillMs: 60000
    prefix: "/api/auth"
  - key: "listing_create"
    capacity: 10
    refillMs: 60000
    route:
      method: "POST"
      path: "/api/listings"
idempotency:
  ttlHours: 12
  sweepIntervalMs: 30000
  bypassPrefixes: ["/api/auth", "/ws"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Store != "memory" {
		t.Fatalf("store = %q", cfg.Store)
	}
	if len(cfg.Rules) != 2 {
		t.Fatalf("rules = %d", len(cfg.Rules))
	}
	if cfg.Rules[0].HasRoute() {
		t.Fatalf("prefix rule reported as route rule")
	}
	if !cfg.Rules[1].HasRoute() || cfg.Rules[1].Route.Method != "POST" {
		t.Fatalf("route rule not parsed: %#v", cfg.Rules[1])
	}
	if cfg.Idempotency.TTLHours != 12 {
		t.Fatalf("ttlHours = %d", cfg.Idempotency.TTLHours)
	}
	if len(cfg.Idempotency.BypassPrefixes) != 2 {
		t.Fatalf("bypassPrefixes = %v", cfg.Idempotency.BypassPrefixes)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  httpAddr: ":8080"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Store != "memory" {
		t.Fatalf("default store = %q", cfg.Store)
	}
	if cfg.Idempotency.TTLHours != 24 {
		t.Fatalf("default ttlHours = %d", cfg.Idempotency.TTLHours)
	}
	if cfg.Idempotency.SweepIntervalMs != 60000 {
		t.Fatalf("default sweepIntervalMs = %d", cfg.Idempotency.SweepIntervalMs)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("MG_REDIS_ADDR", "127.0.0.1:6380")
	path := writeConfig(t, `
store: "redis"
redis:
  addr: "${MG_REDIS_ADDR}"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Redis.Addr != "127.0.0.1:6380" {
		t.Fatalf("env not expanded: %q", cfg.Redis.Addr)
	}
}

func TestValidateRejectsBadRules(t *testing.T) {
	cases := map[string]string{
		"zero capacity": `
rules:
  - key: "a"
    capacity: 0
    refillMs: 1000
    prefix: "/x"
`,
		"missing matcher": `
rules:
  - key: "a"
    capacity: 1
    refillMs: 1000
`,
		"both matchers": `
rules:
  - key: "a"
    capacity: 1
    refillMs: 1000
    prefix: "/x"
    route: { method: "POST", path: "/x" }
`,
		"duplicate keys": `
rules:
  - key: "a"
    capacity: 1
    refillMs: 1000
    prefix: "/x"
  - key: "a"
    capacity: 1
    refillMs: 1000
    prefix: "/y"
`,
		"redis store without addr": `
store: "redis"
`,
	}
	for name, data := range cases {
		if _, err := Load(writeConfig(t, data)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}
