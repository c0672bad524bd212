package idempotency

import (
	"context"
	"testing"
	"time"
)

func fixedClock(at *time.Time) func() time.Time {
	return func() time.Time { return *at }
}

func TestGetSetRoundTrip(t *testing.T) {
	s := NewMemoryStore(24 * time.Hour)
	ctx := context.Background()

	rec, err := s.Get(ctx, "k1")
	if err != nil || rec != nil {
		t.Fatalf("expected miss, got %#v (%v)", rec, err)
	}

	if err := s.Set(ctx, &Record{Key: "k1", StatusCode: 201, Body: []byte(`{"id":7}`)}); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	rec, err = s.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if rec == nil || rec.StatusCode != 201 || string(rec.Body) != `{"id":7}` {
		t.Fatalf("unexpected record: %#v", rec)
	}
	if rec.ExpiresAt.Sub(rec.CreatedAt) != 24*time.Hour {
		t.Fatalf("ttl = %v", rec.ExpiresAt.Sub(rec.CreatedAt))
	}
}

func TestFirstRecordWins(t *testing.T) {
	s := NewMemoryStore(24 * time.Hour)
	ctx := context.Background()

	s.Set(ctx, &Record{Key: "k", StatusCode: 200, Body: []byte("first")})
	s.Set(ctx, &Record{Key: "k", StatusCode: 200, Body: []byte("second")})

	rec, _ := s.Get(ctx, "k")
	if rec == nil || string(rec.Body) != "first" {
		t.Fatalf("record was overwritten: %#v", rec)
	}
}

func TestExpiryBoundary(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s := NewMemoryStore(24 * time.Hour)
	s.now = fixedClock(&now)
	ctx := context.Background()

	s.Set(ctx, &Record{Key: "k", StatusCode: 200, Body: []byte("x")})

	now = now.Add(23*time.Hour + 59*time.Minute)
	if rec, _ := s.Get(ctx, "k"); rec == nil {
		t.Fatal("record should be replayable just before expiry")
	}

	now = now.Add(2 * time.Minute)
	if rec, _ := s.Get(ctx, "k"); rec != nil {
		t.Fatal("record should be absent after 24h")
	}
}

func TestLockClaim(t *testing.T) {
	s := NewMemoryStore(24 * time.Hour)
	ctx := context.Background()

	ok, err := s.Lock(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	ok, err = s.Lock(ctx, "k")
	if err != nil || ok {
		t.Fatalf("second claim should lose: ok=%v err=%v", ok, err)
	}
	if err := s.Unlock(ctx, "k"); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	ok, _ = s.Lock(ctx, "k")
	if !ok {
		t.Fatal("claim after unlock should succeed")
	}
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s := NewMemoryStore(time.Hour)
	s.now = fixedClock(&now)
	ctx := context.Background()

	s.Set(ctx, &Record{Key: "old", StatusCode: 200})
	now = now.Add(30 * time.Minute)
	s.Set(ctx, &Record{Key: "new", StatusCode: 200})

	removed := s.Sweep(now.Add(45 * time.Minute))
	if removed != 1 {
		t.Fatalf("swept %d, want 1", removed)
	}
	if rec, _ := s.Get(ctx, "new"); rec == nil {
		t.Fatal("unexpired record was swept")
	}
	if rec, _ := s.Get(ctx, "old"); rec != nil {
		t.Fatal("expired record survived sweep")
	}
}
