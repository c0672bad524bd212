package api

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

import (
	"github.com/wrenhold/marketgate/internal/idempotency"
)

const (
	// HdrIdempotencyKey carries the caller-supplied retry token.
	HdrIdempotencyKey = "Idempotency-Key"
	// HdrReplayed marks a response served from the record store.
	HdrReplayed = "X-Idempotent-Replayed"
)

// IdempotencyOptions wires the deduplication middleware.
type IdempotencyOptions struct {
	Store          idempotency.Store
	TTL            time.Duration
	BypassPrefixes []string
	Logger         *slog.Logger
	Now            func() time.Time
}

// Idempotency replays cached responses for retried mutating requests. The
// key is claimed atomically before the handler runs, so of two concurrent
// duplicates exactly one executes; the other replays or gets a conflict.
func Idempotency(opts IdempotencyOptions) func(next http.Handler) http.Handler {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(HdrIdempotencyKey))
			if key == "" || !mutating(r.Method) || bypassed(opts.BypassPrefixes, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			rec, err := opts.Store.Get(ctx, key)
			if err != nil {
				opts.Logger.Warn("idempotency lookup failed, executing handler", "key", key, "err", err)
			}
			if rec != nil {
				replay(w, rec, opts.Logger)
				return
			}

			claimed := false
			locked, err := opts.Store.Lock(ctx, key)
			switch {
			case err != nil:
				// Degrade to sequential-only dedup rather than block the request.
				opts.Logger.Warn("idempotency claim failed, executing handler unguarded", "key", key, "err", err)
			case !locked:
				// Lost the claim race. The winner may have finished already;
				// replay its record if so, otherwise report the conflict.
				if rec, err := opts.Store.Get(ctx, key); err == nil && rec != nil {
					replay(w, rec, opts.Logger)
					return
				}
				writeJSON(w, http.StatusConflict, ConflictResponse{
					Error:     "duplicate_request",
					Message:   "a request with this idempotency key is already in flight",
					Key:       key,
					Timestamp: opts.Now(),
				})
				return
			default:
				claimed = true
			}
			if claimed {
				defer func() {
					if err := opts.Store.Unlock(ctx, key); err != nil {
						opts.Logger.Warn("idempotency unlock failed", "key", key, "err", err)
					}
				}()
			}

			cw := newCaptureWriter(w)
			next.ServeHTTP(cw, r)

			// Only successful responses are cached; a failed attempt may be
			// retried with the same key.
			if cw.status >= 200 && cw.status < 300 {
				now := opts.Now()
				err := opts.Store.Set(ctx, &idempotency.Record{
					Key:         key,
					StatusCode:  cw.status,
					ContentType: cw.Header().Get("Content-Type"),
					Body:        append([]byte(nil), cw.buf.Bytes()...),
					CreatedAt:   now,
					ExpiresAt:   now.Add(opts.TTL),
				})
				if err != nil {
					opts.Logger.Warn("idempotency store failed, retries will re-execute", "key", key, "err", err)
				}
			}

			if err := cw.flush(); err != nil {
				opts.Logger.Error("flushing buffered response failed", "key", key, "err", err)
			}
		})
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

func bypassed(prefixes []string, path string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// replay writes a stored response verbatim without invoking the handler.
func replay(w http.ResponseWriter, rec *idempotency.Record, log *slog.Logger) {
	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	w.Header().Set(HdrReplayed, "true")
	w.WriteHeader(rec.StatusCode)
	if _, err := w.Write(rec.Body); err != nil {
		log.Error("replaying cached response failed", "key", rec.Key, "err", err)
		_, _ = io.WriteString(w, "failed to replay cached response")
	}
}
