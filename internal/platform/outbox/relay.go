// Package outbox relays audit outbox rows to Kafka.
package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"kycverify/internal/platform/kafka"
	audit "kycverify/pkg/platform/audit"
)

// Source is the outbox table.
type Source interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	Pending(ctx context.Context, limit int) ([]audit.OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []string, at time.Time) error
}

// Sink publishes records to the event stream.
type Sink interface {
	Publish(ctx context.Context, msgs ...kafka.Message) error
}

// Relay moves pending entries to the sink in batches. Entries are marked
// published only after the sink acknowledges the whole batch, so delivery
// is at least once.
type Relay struct {
	source   Source
	sink     Sink
	topic    string
	batch    int
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Relay)

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		r.now = now
	}
}

func NewRelay(source Source, sink Sink, topic string, logger *slog.Logger, opts ...Option) *Relay {
	r := &Relay{
		source:   source,
		sink:     sink,
		topic:    topic,
		batch:    100,
		interval: 2 * time.Second,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run relays on every tick until ctx is cancelled. A full batch triggers an
// immediate follow-up instead of waiting for the next tick.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		for {
			n, err := r.RelayOnce(ctx)
			if err != nil {
				r.logger.WarnContext(ctx, "outbox relay failed", "error", err)
				break
			}
			if n < r.batch {
				break
			}
		}
	}
}

// RelayOnce publishes one batch and returns how many entries it moved.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	var relayed int
	err := r.source.InTx(ctx, func(ctx context.Context) error {
		entries, err := r.source.Pending(ctx, r.batch)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		msgs := make([]kafka.Message, 0, len(entries))
		ids := make([]string, 0, len(entries))
		for _, e := range entries {
			msgs = append(msgs, kafka.Message{
				Topic: r.topic,
				Key:   []byte(e.AggregateID),
				Value: e.Payload,
				Headers: map[string]string{
					"event_type":     e.EventType,
					"aggregate_type": e.AggregateType,
					"outbox_id":      e.ID,
				},
			})
			ids = append(ids, e.ID)
		}
		if err := r.sink.Publish(ctx, msgs...); err != nil {
			return fmt.Errorf("publish outbox batch: %w", err)
		}
		if err := r.source.MarkPublished(ctx, ids, r.now()); err != nil {
			return err
		}
		relayed = len(entries)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return relayed, nil
}
