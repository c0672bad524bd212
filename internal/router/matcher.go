package router

import (
	"github.com/wrenhold/marketgate/internal/config"
	"github.com/wrenhold/marketgate/internal/identity"
	"github.com/wrenhold/marketgate/internal/rcu"
)

// MatchKind says which matcher class produced a rule.
type MatchKind int

const (
	MatchNone MatchKind = iota
	MatchRoute
	MatchPrefix
)

// Matcher resolves the limit rule for a request from a rule snapshot.
type Matcher struct {
	snap *rcu.Snapshot[RuleSnapshot]
}

func NewMatcher(rules []config.Rule) *Matcher {
	return &Matcher{snap: rcu.NewSnapshot(BuildRuleSnapshot(rules))}
}

// Replace swaps in a freshly built snapshot (rule hot reload).
func (m *Matcher) Replace(rules []config.Rule) {
	m.snap.Replace(BuildRuleSnapshot(rules))
}

// Match returns the most specific rule covering the request. A route rule on
// the exact method+path beats any prefix rule; among prefix rules the longest
// prefix wins. No match means the request is not rate-limited.
func (m *Matcher) Match(method, path string) (config.Rule, MatchKind, bool) {
	snap := m.snap.Load()
	if snap == nil {
		return config.Rule{}, MatchNone, false
	}
	if rule, ok := snap.Routes[routeKey(method, path)]; ok {
		return rule, MatchRoute, true
	}
	if rule := snap.Prefix.match(path); rule != nil {
		return *rule, MatchPrefix, true
	}
	return config.Rule{}, MatchNone, false
}

// BucketKey builds the bucket identifier for a matched rule. Route rules get
// a per-path bucket so that distinct endpoints sharing a rule still throttle
// independently; prefix rules share one bucket per caller.
func BucketKey(client identity.ClientKey, rule config.Rule, kind MatchKind, path string) string {
	if kind == MatchRoute {
		return client.Key + "|" + rule.Key + "|" + path
	}
	return client.Key + "|" + rule.Key
}
