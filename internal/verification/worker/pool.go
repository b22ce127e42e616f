// Package worker runs verification jobs on a bounded pool of goroutines fed
// by a job channel.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var ErrStopped = errors.New("worker pool stopped")

// Job is one unit of background work.
type Job struct {
	Name string
	// Key identifies the job in logs, usually a verification id.
	Key string
	Run func(ctx context.Context) error
}

type DepthRecorder interface {
	SetQueueDepth(n int)
}

// Pool executes jobs on N goroutines. Jobs run on a context detached from
// the submitter: once accepted, a job runs to completion.
type Pool struct {
	jobs    chan Job
	workers int
	logger  *slog.Logger
	depth   DepthRecorder

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

type Option func(*Pool)

func WithDepthRecorder(r DepthRecorder) Option {
	return func(p *Pool) { p.depth = r }
}

func New(workers, queueSize int, logger *slog.Logger, opts ...Option) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &Pool{
		jobs:    make(chan Job, queueSize),
		workers: workers,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers. Job contexts inherit values from ctx but not
// its cancellation.
func (p *Pool) Start(ctx context.Context) {
	base := context.WithoutCancel(ctx)
	for range p.workers {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				p.recordDepth()
				p.run(base, job)
			}
		}()
	}
}

// Submit queues job, blocking while the queue is full. It fails when ctx
// ends first or the pool is stopped.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.jobs <- job:
		p.recordDepth()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses new jobs and waits for queued and running jobs to finish or
// ctx to end.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) run(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(ctx, "worker job panicked",
				"job", job.Name,
				"key", job.Key,
				"panic", r,
			)
		}
	}()
	if err := job.Run(ctx); err != nil {
		p.logger.ErrorContext(ctx, "worker job failed",
			"job", job.Name,
			"key", job.Key,
			"error", err,
		)
	}
}

func (p *Pool) recordDepth() {
	if p.depth != nil {
		p.depth.SetQueueDepth(len(p.jobs))
	}
}
