// Package publisher routes audit events by category.
//
// Compliance events are written synchronously and the caller sees the error.
// Operational events go through a bounded buffer drained by a background
// worker; when the buffer is full they are dropped and counted.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	audit "kycverify/pkg/platform/audit"
	"kycverify/pkg/platform/audit/worker"
)

// ErrMissingAction rejects events without an action.
var ErrMissingAction = errors.New("audit event requires an action")

// Publisher emits audit events to a Store.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time

	bufferSize int
	inbox      chan audit.Event
	cancel     context.CancelFunc
	done       chan struct{}
	mu         sync.RWMutex
	closed     bool
}

// Option configures the Publisher.
type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithAsyncBuffer enables the background path for operational events.
// Without it every event is written synchronously.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.bufferSize = size
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufferSize > 0 {
		p.inbox = make(chan audit.Event, p.bufferSize)
		ctx, cancel := context.WithCancel(context.Background())
		p.cancel = cancel
		p.done = make(chan struct{})
		w := worker.NewWorker(store, p.inbox, p.logger)
		go func() {
			defer close(p.done)
			_ = w.Run(ctx)
			w.Drain(context.Background())
		}()
	}
	return p
}

// Emit records event. Only compliance failures are returned.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Action == "" {
		return ErrMissingAction
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	category := event.Action.Category()
	p.metrics.IncrementEmitted(category)

	if category == audit.CategoryCompliance || p.inbox == nil {
		return p.persist(ctx, event, category)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return p.persist(ctx, event, category)
	}
	select {
	case p.inbox <- event:
	default:
		p.metrics.IncrementDropped()
		p.logger.WarnContext(ctx, "audit buffer full, dropping event",
			"action", event.Action,
			"verification_id", event.VerificationID.String(),
		)
	}
	return nil
}

func (p *Publisher) persist(ctx context.Context, event audit.Event, category audit.EventCategory) error {
	if err := p.store.Append(ctx, event); err != nil {
		p.metrics.IncrementPersistFailure()
		p.logger.ErrorContext(ctx, "audit persistence failed",
			"action", event.Action,
			"category", category,
			"verification_id", event.VerificationID.String(),
			"error", err,
		)
		if category == audit.CategoryCompliance {
			return fmt.Errorf("compliance audit persistence failed: %w", err)
		}
	}
	return nil
}

// Close stops the background worker after flushing buffered events.
func (p *Publisher) Close() error {
	if p.inbox == nil {
		return nil
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.inbox)
	p.mu.Unlock()

	<-p.done
	p.cancel()
	return nil
}
