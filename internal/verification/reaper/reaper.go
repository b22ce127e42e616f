// Package reaper periodically fails verifications left in PROCESSING by a
// worker that never finished them.
package reaper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// StaleFailer is the lifecycle operation the reaper drives.
type StaleFailer interface {
	FailStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// Reaper runs FailStale on a cron schedule. Overlapping runs are skipped.
type Reaper struct {
	cron      *cron.Cron
	failer    StaleFailer
	olderThan time.Duration
	timeout   time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
}

// New parses schedule ("@every 1m", "*/5 * * * *").
func New(failer StaleFailer, schedule string, olderThan time.Duration, logger *slog.Logger) (*Reaper, error) {
	r := &Reaper{
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		failer:    failer,
		olderThan: olderThan,
		timeout:   time.Minute,
		logger:    logger,
	}
	if _, err := r.cron.AddFunc(schedule, r.sweep); err != nil {
		return nil, fmt.Errorf("invalid reaper schedule %q: %w", schedule, err)
	}
	return r, nil
}

func (r *Reaper) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.cron.Start()
	r.logger.Info("stale verification reaper started", "older_than", r.olderThan)
}

// Stop waits for a running sweep to finish or ctx to expire.
func (r *Reaper) Stop(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.running = false
	select {
	case <-r.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (r *Reaper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if _, err := r.RunOnce(ctx); err != nil {
		r.logger.ErrorContext(ctx, "stale verification sweep failed", "error", err)
	}
}

// RunOnce performs a single sweep.
func (r *Reaper) RunOnce(ctx context.Context) (int, error) {
	n, err := r.failer.FailStale(ctx, r.olderThan)
	if err != nil {
		return n, err
	}
	if n > 0 {
		r.logger.InfoContext(ctx, "stale verifications failed", "count", n)
	}
	return n, nil
}
