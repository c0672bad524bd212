package limiter

import (
	"context"
	"time"
)

import (
	"github.com/wrenhold/marketgate/internal/config"
	"github.com/wrenhold/marketgate/internal/types"
)

// Limiter decides whether one request against the given bucket key may
// proceed under rule, as observed at now.
type Limiter interface {
	Allow(ctx context.Context, rule config.Rule, key string, now time.Time) (types.Decision, error)
}

// retryAfterMs computes how long until at least one token accrues for a
// bucket that is short by deficit tokens. Falls back to a conservative
// 60s when the rule cannot yield a sensible figure.
func retryAfterMs(rule config.Rule, deficit float64) int64 {
	if rule.Capacity <= 0 || rule.RefillMs <= 0 {
		return 60_000
	}
	if deficit < 0 {
		deficit = 0
	}
	perToken := float64(rule.RefillMs) / float64(rule.Capacity)
	ms := int64(deficit * perToken)
	if float64(ms) < deficit*perToken {
		ms++ // round up
	}
	if ms <= 0 {
		ms = 1
	}
	return ms
}
