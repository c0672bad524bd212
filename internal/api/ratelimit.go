package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

import (
	"github.com/wrenhold/marketgate/internal/identity"
	"github.com/wrenhold/marketgate/internal/limiter"
	"github.com/wrenhold/marketgate/internal/router"
	"github.com/wrenhold/marketgate/internal/types"
)

// Rate-limit response headers, part of the client-facing contract.
const (
	HdrLimit      = "X-Rate-Limit-Limit"
	HdrRemaining  = "X-Rate-Limit-Remaining"
	HdrRetryAfter = "X-Rate-Limit-Retry-After-Seconds"
)

// KeyFunc resolves a caller identity from a request.
type KeyFunc func(r *http.Request) (identity.ClientKey, error)

// RateLimitOptions wires the limiter middleware.
type RateLimitOptions struct {
	Matcher *router.Matcher
	Limiter limiter.Limiter
	KeyFn   KeyFunc
	Logger  *slog.Logger
	Now     func() time.Time
}

// RateLimit admits or throttles requests per identity and matched rule.
// Any internal failure fails open: rate limiting is defense in depth, and
// the guarded feature must stay available when the limiter cannot decide.
func RateLimit(opts RateLimitOptions) func(next http.Handler) http.Handler {
	if opts.KeyFn == nil {
		resolver := identity.NewResolver()
		opts.KeyFn = resolver.Resolve
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			dec, matched, err := check(opts, r)
			if err != nil {
				opts.Logger.Warn("admission check failed, failing open",
					"method", r.Method, "path", r.URL.Path, "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if !matched {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set(HdrLimit, strconv.FormatInt(dec.Limit, 10))
			w.Header().Set(HdrRemaining, strconv.FormatInt(dec.Remaining, 10))

			if !dec.Allowed {
				retrySec := (dec.RetryAfterMs + 999) / 1000
				if retrySec < 1 {
					retrySec = 1
				}
				w.Header().Set(HdrRetryAfter, strconv.FormatInt(retrySec, 10))
				w.Header().Set("Retry-After", strconv.FormatInt(retrySec, 10))
				writeJSON(w, http.StatusTooManyRequests, ThrottledResponse{
					Error:      "rate_limit_exceeded",
					Message:    "too many requests, retry later",
					RetryAfter: retrySec,
					Timestamp:  opts.Now(),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// check resolves identity, rule and bucket state. It reports matched=false
// for requests no rule covers, and converts panics from any collaborator
// into errors so the caller can fail open.
func check(opts RateLimitOptions, r *http.Request) (dec types.Decision, matched bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("admission panic: %v", rec)
		}
	}()

	rule, kind, ok := opts.Matcher.Match(r.Method, r.URL.Path)
	if !ok {
		return types.Decision{}, false, nil
	}

	client, err := opts.KeyFn(r)
	if err != nil {
		return types.Decision{}, true, fmt.Errorf("resolve identity: %w", err)
	}

	key := router.BucketKey(client, rule, kind, r.URL.Path)
	dec, err = opts.Limiter.Allow(r.Context(), rule, key, opts.Now())
	if err != nil {
		return types.Decision{}, true, fmt.Errorf("limiter: %w", err)
	}
	return dec, true, nil
}
