package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

import (
	"github.com/wrenhold/marketgate/internal/repo"
)

// inflightTTL guards against claims abandoned by a crashed instance.
const inflightTTL = 2 * time.Minute

// RedisStore keeps records in Redis so retries land on the cached response
// regardless of which instance served the original request.
type RedisStore struct {
	repo repo.Repo
	ttl  time.Duration
}

func NewRedisStore(r repo.Repo, ttl time.Duration) *RedisStore {
	if r == nil {
		panic("idempotency: nil repo")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{repo: r, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	b, ok, err := s.repo.GetBytes(ctx, s.repo.KeyRecord(key))
	if err != nil {
		return nil, fmt.Errorf("get record %s: %w", key, err)
	}
	if !ok {
		return nil, nil
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", key, err)
	}
	return &rec, nil
}

func (s *RedisStore) Set(ctx context.Context, rec *Record) error {
	now := time.Now()
	rec.CreatedAt = now
	if rec.ExpiresAt.IsZero() {
		rec.ExpiresAt = now.Add(s.ttl)
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.Key, err)
	}
	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	return s.repo.SetBytes(ctx, s.repo.KeyRecord(rec.Key), b, ttl)
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.repo.Del(ctx, s.repo.KeyRecord(key))
}

func (s *RedisStore) Lock(ctx context.Context, key string) (bool, error) {
	return s.repo.SetNX(ctx, s.repo.KeyInflight(key), inflightTTL)
}

func (s *RedisStore) Unlock(ctx context.Context, key string) error {
	return s.repo.Del(ctx, s.repo.KeyInflight(key))
}
