package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

import (
	"github.com/redis/go-redis/v9"
)

import (
	"github.com/wrenhold/marketgate/internal/config"
)

// Key templates for better readability and maintainability
const (
	keyBucketTmpl   = "%s:tb:{%s}"
	keyRecordTmpl   = "%s:idem:{%s}"
	keyInflightTmpl = "%s:idem:lock:{%s}"
)

// Repo interface for abstraction (easy to mock/test)
type Repo interface {
	KeyBucket(bucketKey string) string
	KeyRecord(idemKey string) string
	KeyInflight(idemKey string) string
	Eval(ctx context.Context, script *redis.Script, keys []string, args ...interface{}) ([]interface{}, error)
	GetBytes(ctx context.Context, key string) ([]byte, bool, error)
	SetBytes(ctx context.Context, key string, val []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
	Close() error
}

type RedisRepo struct {
	Prefix         string
	Cli            *redis.Client
	logger         *slog.Logger
	defaultTimeout time.Duration
}

// NewRedis connects and pings the configured Redis instance.
func NewRedis(cfg config.RedisCfg, logger *slog.Logger) (Repo, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Addr == "" {
		return nil, errors.New("no redis address configured")
	}

	r := &RedisRepo{
		Prefix:         prefixOrDefault(cfg.Prefix),
		logger:         logger,
		defaultTimeout: 100 * time.Millisecond,
	}
	r.Cli = redis.NewClient(buildOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Cli.Ping(ctx).Err(); err != nil {
		logger.Error("redis ping failed", "err", err)
		return nil, fmt.Errorf("redis connect failed: %w", err)
	}
	return r, nil
}

func (r *RedisRepo) withTimeout(ctx context.Context, opTimeout time.Duration) (context.Context, context.CancelFunc) {
	if opTimeout == 0 {
		opTimeout = r.defaultTimeout
	}
	return context.WithTimeout(ctx, opTimeout)
}

func (r *RedisRepo) KeyBucket(bucketKey string) string {
	return fmt.Sprintf(keyBucketTmpl, r.Prefix, bucketKey)
}

func (r *RedisRepo) KeyRecord(idemKey string) string {
	return fmt.Sprintf(keyRecordTmpl, r.Prefix, idemKey)
}

func (r *RedisRepo) KeyInflight(idemKey string) string {
	return fmt.Sprintf(keyInflightTmpl, r.Prefix, idemKey)
}

// Eval runs a preloaded script with a longer timeout than plain commands.
func (r *RedisRepo) Eval(parentCtx context.Context, script *redis.Script, keys []string, args ...interface{}) ([]interface{}, error) {
	ctx, cancel := r.withTimeout(parentCtx, 200*time.Millisecond)
	defer cancel()
	res, err := script.Run(ctx, r.Cli, keys, args...).Result()
	if err != nil {
		return nil, fmt.Errorf("eval script failed: %w", err)
	}
	if val, ok := res.([]interface{}); ok {
		return val, nil
	}
	return []interface{}{res}, nil
}

// GetBytes returns the raw value and whether the key existed.
func (r *RedisRepo) GetBytes(parentCtx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := r.withTimeout(parentCtx, 0)
	defer cancel()
	b, err := r.Cli.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (r *RedisRepo) SetBytes(parentCtx context.Context, key string, val []byte, ttl time.Duration) error {
	ctx, cancel := r.withTimeout(parentCtx, 0)
	defer cancel()
	return r.Cli.Set(ctx, key, val, ttl).Err()
}

// SetNX claims key if absent, with ttl as an abandonment guard.
func (r *RedisRepo) SetNX(parentCtx context.Context, key string, ttl time.Duration) (bool, error) {
	ctx, cancel := r.withTimeout(parentCtx, 0)
	defer cancel()
	if ttl <= 0 {
		ttl = time.Minute
	}
	return r.Cli.SetNX(ctx, key, 1, ttl).Result()
}

func (r *RedisRepo) Del(parentCtx context.Context, key string) error {
	ctx, cancel := r.withTimeout(parentCtx, 0)
	defer cancel()
	return r.Cli.Del(ctx, key).Err()
}

func (r *RedisRepo) Close() error {
	return r.Cli.Close()
}

// Helper functions
func prefixOrDefault(prefix string) string {
	if prefix == "" {
		return "marketgate"
	}
	return prefix
}

func buildOptions(cfg config.RedisCfg) *redis.Options {
	return &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     maxInt(cfg.PoolSize, 50),
		MinIdleConns: maxInt(cfg.MinIdleConns, 5),
		DialTimeout:  durationOrDefault(cfg.DialTimeoutMs, 800),
		ReadTimeout:  durationOrDefault(cfg.ReadTimeoutMs, 800),
		WriteTimeout: durationOrDefault(cfg.WriteTimeoutMs, 800),
		MaxRetries:   maxInt(cfg.MaxRetries, 2),
	}
}

func maxInt(val, def int) int {
	if val > def {
		return val
	}
	return def
}

func durationOrDefault(ms int, defMs int) time.Duration {
	if ms <= 0 {
		ms = defMs
	}
	return time.Duration(ms) * time.Millisecond
}
