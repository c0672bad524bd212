package idempotency

import (
	"context"
	"log/slog"
	"time"
)

// Sweepable is any store with time-based eviction: expired idempotency
// records, idle rate-limit buckets.
type Sweepable interface {
	Sweep(now time.Time) int
}

// Sweeper periodically evicts expired entries from its targets, bounding
// memory for abandoned keys. One sweeper runs per process, started at init
// and stopped via ctx at shutdown.
type Sweeper struct {
	targets  []Sweepable
	interval time.Duration
	log      *slog.Logger
}

func NewSweeper(interval time.Duration, targets ...Sweepable) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		targets:  targets,
		interval: interval,
		log:      slog.Default(),
	}
}

// Start runs the sweep loop until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			total := 0
			for _, t := range s.targets {
				total += t.Sweep(now)
			}
			if total > 0 {
				s.log.Info("swept expired admission entries", "removed", total)
			}
		}
	}
}
