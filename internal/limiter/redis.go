package limiter

import (
	"context"
	"errors"
	"strconv"
	"time"
)

import (
	"github.com/wrenhold/marketgate/internal/config"
	"github.com/wrenhold/marketgate/internal/repo"
	"github.com/wrenhold/marketgate/internal/types"
)

// RedisBucket applies the token bucket via a Lua script, for deployments
// sharing admission state across instances.
type RedisBucket struct {
	repo      repo.Repo
	ttlFactor int64
}

func NewRedisBucket(r repo.Repo) *RedisBucket {
	if r == nil {
		panic("limiter: nil repo")
	}
	return &RedisBucket{repo: r, ttlFactor: 2}
}

func (t *RedisBucket) Allow(ctx context.Context, rule config.Rule, key string, now time.Time) (types.Decision, error) {
	if rule.Capacity <= 0 || rule.RefillMs <= 0 {
		err := errors.New("invalid rule")
		return types.Decision{Allowed: false, Reason: "invalid_rule", Err: err}, err
	}
	if key == "" {
		err := errors.New("empty key")
		return types.Decision{Allowed: false, Reason: "empty_key", Err: err}, err
	}

	bucketKey := t.repo.KeyBucket(key)
	ttlMs := rule.RefillMs * t.ttlFactor
	if ttlMs <= 0 {
		ttlMs = rule.RefillMs
	}

	res, err := t.repo.Eval(ctx, repo.ScriptTokenBucket,
		[]string{bucketKey, bucketKey + ":ts"},
		rule.Capacity, rule.RefillMs, now.UnixMilli(), ttlMs)
	if err != nil {
		return types.Decision{Allowed: false, Reason: "limiter_eval_failed", Err: err}, err
	}
	if len(res) < 3 {
		err = errors.New("invalid script response")
		return types.Decision{Allowed: false, Reason: "invalid_script_response", Err: err}, err
	}

	allowed, ok := toInt64(res[0])
	if !ok {
		err = errors.New("invalid allowed value")
		return types.Decision{Allowed: false, Reason: "invalid_script_response", Err: err}, err
	}
	remaining, ok := toInt64(res[1])
	if !ok {
		err = errors.New("invalid remaining value")
		return types.Decision{Allowed: false, Reason: "invalid_script_response", Err: err}, err
	}
	retryMs, ok := toInt64(res[2])
	if !ok {
		err = errors.New("invalid retry value")
		return types.Decision{Allowed: false, Reason: "invalid_script_response", Err: err}, err
	}

	decision := types.Decision{
		Allowed:   allowed > 0,
		Remaining: remaining,
		Limit:     rule.Capacity,
		Reason:    "allowed",
	}
	if !decision.Allowed {
		decision.Reason = "rate_limited"
		decision.RetryAfterMs = retryMs
	}
	return decision, nil
}

func toInt64(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	case float64:
		return int64(val), true
	case string:
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed, true
		}
	}
	return 0, false
}
