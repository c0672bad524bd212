package limiter

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"
)

import (
	"github.com/wrenhold/marketgate/internal/config"
	"github.com/wrenhold/marketgate/internal/types"
)

// Buckets older than idleFactor refill periods since their last check are
// reclaimable by Sweep.
const idleFactor = 10

type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	refillMs   int64
}

// MemoryBucket is the in-process token-bucket store. Buckets are created
// lazily per key via LoadOrStore; refill-and-consume holds the per-bucket
// mutex so two concurrent checks against one bucket serialize.
type MemoryBucket struct {
	buckets sync.Map // key -> *bucket
}

func NewMemoryBucket() *MemoryBucket {
	return &MemoryBucket{}
}

// Allow applies continuous refill and consumes one token if available.
func (m *MemoryBucket) Allow(ctx context.Context, rule config.Rule, key string, now time.Time) (types.Decision, error) {
	if rule.Capacity <= 0 || rule.RefillMs <= 0 {
		err := errors.New("invalid rule")
		return types.Decision{Allowed: false, Reason: "invalid_rule", Err: err}, err
	}
	if key == "" {
		err := errors.New("empty key")
		return types.Decision{Allowed: false, Reason: "empty_key", Err: err}, err
	}

	fresh := &bucket{tokens: float64(rule.Capacity), lastRefill: now, refillMs: rule.RefillMs}
	val, _ := m.buckets.LoadOrStore(key, fresh)
	b := val.(*bucket)

	b.mu.Lock()
	defer b.mu.Unlock()

	cap64 := float64(rule.Capacity)
	elapsed := now.Sub(b.lastRefill)
	if elapsed > 0 {
		refill := cap64 * float64(elapsed.Milliseconds()) / float64(rule.RefillMs)
		b.tokens = math.Min(cap64, b.tokens+refill)
	}
	b.lastRefill = now
	b.refillMs = rule.RefillMs

	if b.tokens >= 1 {
		b.tokens--
		return types.Decision{
			Allowed:   true,
			Remaining: int64(math.Floor(b.tokens)),
			Limit:     rule.Capacity,
			Reason:    "allowed",
		}, nil
	}

	return types.Decision{
		Allowed:      false,
		Remaining:    0,
		Limit:        rule.Capacity,
		RetryAfterMs: retryAfterMs(rule, 1-b.tokens),
		Reason:       "rate_limited",
	}, nil
}

// Sweep drops buckets that have not been checked for idleFactor refill
// periods. Each bucket is inspected under its own mutex; the map walk never
// blocks concurrent Allow calls on other buckets.
func (m *MemoryBucket) Sweep(now time.Time) int {
	removed := 0
	m.buckets.Range(func(key, val any) bool {
		b := val.(*bucket)
		b.mu.Lock()
		idle := now.Sub(b.lastRefill)
		stale := b.refillMs > 0 && idle > time.Duration(b.refillMs*idleFactor)*time.Millisecond
		b.mu.Unlock()
		if stale {
			m.buckets.Delete(key)
			removed++
		}
		return true
	})
	return removed
}
