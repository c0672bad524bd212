// Package idempotency deduplicates retried state-changing requests by caching
// the first successful response per caller-supplied key.
package idempotency

import (
	"context"
	"sync"
	"time"
)

// Record is a cached response for one completed request. Records are created
// once, never updated, and read until expiry.
type Record struct {
	Key         string    `json:"key"`
	StatusCode  int       `json:"statusCode"`
	ContentType string    `json:"contentType"`
	Body        []byte    `json:"body"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Store is the record storage interface. Lock/Unlock implement the atomic
// in-flight claim: a key must be locked before its handler executes, so a
// concurrent duplicate cannot slip through between lookup miss and store.
type Store interface {
	Get(ctx context.Context, key string) (*Record, error)
	Set(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, key string) error
	Lock(ctx context.Context, key string) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// MemoryStore is the in-process record store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Record
	locks   map[string]bool
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryStore{
		entries: make(map[string]*Record),
		locks:   make(map[string]bool),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the record for key, or nil if absent or expired.
func (s *MemoryStore) Get(ctx context.Context, key string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	if s.now().After(rec.ExpiresAt) {
		return nil, nil
	}
	return rec, nil
}

// Set stores rec unless a record for its key already exists; the first
// completed response wins.
func (s *MemoryStore) Set(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[rec.Key]; ok && !s.now().After(old.ExpiresAt) {
		return nil
	}
	rec.CreatedAt = s.now()
	if rec.ExpiresAt.IsZero() {
		rec.ExpiresAt = rec.CreatedAt.Add(s.ttl)
	}
	s.entries[rec.Key] = rec
	return nil
}

// Delete removes a record.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Lock claims key for an in-flight request.
func (s *MemoryStore) Lock(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locks[key] {
		return false, nil
	}
	s.locks[key] = true
	return true, nil
}

// Unlock releases an in-flight claim.
func (s *MemoryStore) Unlock(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, key)
	return nil
}

// Sweep removes expired records and returns how many were dropped.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, rec := range s.entries {
		if now.After(rec.ExpiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}
