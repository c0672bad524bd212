package router

import (
	"strings"
)

import (
	"github.com/wrenhold/marketgate/internal/config"
)

// RuleSnapshot is an immutable index built from the configured limit rules.
// Route rules live in an exact method+path table; prefix rules in a trie.
type RuleSnapshot struct {
	Routes map[string]config.Rule // "METHOD path" -> rule
	Prefix *trieNode
}

type trieNode struct {
	children map[rune]*trieNode
	rule     *config.Rule
}

func newTrie() *trieNode {
	return &trieNode{children: make(map[rune]*trieNode)}
}

func (t *trieNode) insert(prefix string, rule config.Rule) {
	node := t
	for _, ch := range prefix {
		if node.children == nil {
			node.children = make(map[rune]*trieNode)
		}
		next := node.children[ch]
		if next == nil {
			next = &trieNode{children: make(map[rune]*trieNode)}
			node.children[ch] = next
		}
		node = next
	}
	r := rule
	node.rule = &r
}

// match returns the rule of the longest prefix covering path, if any.
func (t *trieNode) match(path string) *config.Rule {
	if t == nil {
		return nil
	}
	node := t
	var deepest *config.Rule
	if node.rule != nil {
		deepest = node.rule
	}
	for _, ch := range path {
		node = node.children[ch]
		if node == nil {
			break
		}
		if node.rule != nil {
			deepest = node.rule
		}
	}
	return deepest
}

func routeKey(method, path string) string {
	return strings.ToUpper(strings.TrimSpace(method)) + " " + path
}

// BuildRuleSnapshot builds the lookup index from a rule list.
func BuildRuleSnapshot(rules []config.Rule) *RuleSnapshot {
	snap := &RuleSnapshot{
		Routes: make(map[string]config.Rule),
		Prefix: newTrie(),
	}
	for _, rule := range rules {
		if rule.HasRoute() {
			snap.Routes[routeKey(rule.Route.Method, rule.Route.Path)] = rule
			continue
		}
		if p := strings.TrimSpace(rule.Prefix); p != "" {
			snap.Prefix.insert(p, rule)
		}
	}
	return snap
}
