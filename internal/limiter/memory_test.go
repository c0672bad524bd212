package limiter

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

import (
	"github.com/wrenhold/marketgate/internal/config"
)

var testRule = config.Rule{Key: "r1", Capacity: 3, RefillMs: 3000}

func TestTokenAccounting(t *testing.T) {
	m := NewMemoryBucket()
	ctx := context.Background()
	now := time.Unix(1700000000, 0)

	for i := int64(0); i < testRule.Capacity; i++ {
		dec, err := m.Allow(ctx, testRule, "k", now)
		if err != nil {
			t.Fatalf("allow %d failed: %v", i, err)
		}
		if !dec.Allowed {
			t.Fatalf("attempt %d denied, want allowed", i)
		}
		if dec.Remaining != testRule.Capacity-i-1 {
			t.Fatalf("attempt %d remaining = %d", i, dec.Remaining)
		}
	}

	dec, err := m.Allow(ctx, testRule, "k", now)
	if err != nil {
		t.Fatalf("allow failed: %v", err)
	}
	if dec.Allowed {
		t.Fatal("capacity+1-th attempt within the same instant should be denied")
	}
	if dec.Remaining != 0 {
		t.Fatalf("denied remaining = %d", dec.Remaining)
	}
	if dec.RetryAfterMs <= 0 || dec.RetryAfterMs > 1000 {
		t.Fatalf("retryAfterMs = %d, want (0, refill/capacity]", dec.RetryAfterMs)
	}
}

func TestRefillRestoresExactlyCapacity(t *testing.T) {
	m := NewMemoryBucket()
	ctx := context.Background()
	now := time.Unix(1700000000, 0)

	for i := int64(0); i < testRule.Capacity; i++ {
		if dec, _ := m.Allow(ctx, testRule, "k", now); !dec.Allowed {
			t.Fatalf("drain attempt %d denied", i)
		}
	}

	// After a full refill period (and then some) the bucket holds exactly
	// capacity tokens, never more.
	later := now.Add(10 * time.Duration(testRule.RefillMs) * time.Millisecond)
	dec, err := m.Allow(ctx, testRule, "k", later)
	if err != nil {
		t.Fatalf("allow failed: %v", err)
	}
	if !dec.Allowed || dec.Remaining != testRule.Capacity-1 {
		t.Fatalf("after refill: allowed=%v remaining=%d", dec.Allowed, dec.Remaining)
	}
}

func TestPartialRefill(t *testing.T) {
	m := NewMemoryBucket()
	ctx := context.Background()
	now := time.Unix(1700000000, 0)

	for i := int64(0); i < testRule.Capacity; i++ {
		m.Allow(ctx, testRule, "k", now)
	}

	// One token accrues every refillMs/capacity = 1s.
	oneToken := now.Add(1100 * time.Millisecond)
	dec, _ := m.Allow(ctx, testRule, "k", oneToken)
	if !dec.Allowed {
		t.Fatal("expected one accrued token to admit")
	}
	dec, _ = m.Allow(ctx, testRule, "k", oneToken)
	if dec.Allowed {
		t.Fatal("second check at the same instant should be denied")
	}
}

func TestBucketsAreIndependent(t *testing.T) {
	m := NewMemoryBucket()
	ctx := context.Background()
	now := time.Unix(1700000000, 0)

	for i := int64(0); i < testRule.Capacity; i++ {
		m.Allow(ctx, testRule, "a", now)
	}
	dec, _ := m.Allow(ctx, testRule, "b", now)
	if !dec.Allowed {
		t.Fatal("draining bucket a must not affect bucket b")
	}
}

func TestConcurrentSameBucket(t *testing.T) {
	m := NewMemoryBucket()
	ctx := context.Background()
	rule := config.Rule{Key: "r", Capacity: 50, RefillMs: 60000}
	now := time.Unix(1700000000, 0)

	var allowed int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dec, err := m.Allow(ctx, rule, "k", now)
			if err != nil {
				t.Errorf("allow failed: %v", err)
				return
			}
			if dec.Allowed {
				atomic.AddInt64(&allowed, 1)
			}
		}()
	}
	wg.Wait()

	if allowed != rule.Capacity {
		t.Fatalf("concurrent admissions = %d, want exactly %d", allowed, rule.Capacity)
	}
}

func TestInvalidRuleRejected(t *testing.T) {
	m := NewMemoryBucket()
	if _, err := m.Allow(context.Background(), config.Rule{Key: "r"}, "k", time.Now()); err == nil {
		t.Fatal("expected error for invalid rule")
	}
	if _, err := m.Allow(context.Background(), testRule, "", time.Now()); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestSweepDropsIdleBuckets(t *testing.T) {
	m := NewMemoryBucket()
	ctx := context.Background()
	now := time.Unix(1700000000, 0)

	m.Allow(ctx, testRule, "idle", now)
	m.Allow(ctx, testRule, "busy", now)

	later := now.Add(time.Duration(testRule.RefillMs*idleFactor+1000) * time.Millisecond)
	m.Allow(ctx, testRule, "busy", later)

	if removed := m.Sweep(later); removed != 1 {
		t.Fatalf("swept %d buckets, want 1", removed)
	}
	if _, ok := m.buckets.Load("busy"); !ok {
		t.Fatal("active bucket was swept")
	}
}
