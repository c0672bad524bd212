package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"
)

import (
	"github.com/gorilla/mux"
)

import (
	"github.com/wrenhold/marketgate/internal/api"
	"github.com/wrenhold/marketgate/internal/config"
	"github.com/wrenhold/marketgate/internal/idempotency"
	"github.com/wrenhold/marketgate/internal/limiter"
	"github.com/wrenhold/marketgate/internal/repo"
	"github.com/wrenhold/marketgate/internal/router"
)

func main() {
	confPath := flag.String("c", "configs/marketgate.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*confPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	ttl := time.Duration(cfg.Idempotency.TTLHours) * time.Hour

	var lim limiter.Limiter
	var idemStore idempotency.Store
	var sweepTargets []idempotency.Sweepable

	switch cfg.Store {
	case "redis":
		rdb, err := repo.NewRedis(cfg.Redis, nil)
		if err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		defer rdb.Close()
		lim = limiter.NewRedisBucket(rdb)
		idemStore = idempotency.NewRedisStore(rdb, ttl)
		// Redis evicts by key TTL; no local sweep needed.
	default:
		memBuckets := limiter.NewMemoryBucket()
		memRecords := idempotency.NewMemoryStore(ttl)
		lim = memBuckets
		idemStore = memRecords
		sweepTargets = []idempotency.Sweepable{memRecords, memBuckets}
	}

	if len(sweepTargets) > 0 {
		sweeper := idempotency.NewSweeper(
			time.Duration(cfg.Idempotency.SweepIntervalMs)*time.Millisecond,
			sweepTargets...)
		go sweeper.Start(rootCtx)
	}

	matcher := router.NewMatcher(cfg.Rules)

	upstream, err := url.Parse(cfg.Server.UpstreamURL)
	if err != nil || upstream.Host == "" {
		log.Fatalf("invalid upstream url %q: %v", cfg.Server.UpstreamURL, err)
	}
	proxy := httputil.NewSingleHostReverseProxy(upstream)

	rateLimit := api.RateLimit(api.RateLimitOptions{
		Matcher: matcher,
		Limiter: lim,
	})
	idem := api.Idempotency(api.IdempotencyOptions{
		Store:          idemStore,
		TTL:            ttl,
		BypassPrefixes: cfg.Idempotency.BypassPrefixes,
	})

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.PathPrefix("/").Handler(rateLimit(idem(proxy)))

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("marketgate is running on %s (PID: %d)", cfg.Server.HTTPAddr, os.Getpid())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	// SIGHUP reloads limit rules without a restart.
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	go func() {
		for range reload {
			next, err := config.Load(*confPath)
			if err != nil {
				log.Printf("rule reload failed, keeping current rules: %v", err)
				continue
			}
			matcher.Replace(next.Rules)
			log.Printf("reloaded %d limit rules", len(next.Rules))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")
	cancelRoot()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server shutdown failed: %v", err)
	}
	log.Println("server exited properly")
}
