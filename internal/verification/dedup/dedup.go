// Package dedup collapses near-simultaneous submissions from one project into
// a single verification. It is a best-effort heuristic, not exactly-once.
package dedup

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"kycverify/internal/decision"
	"kycverify/internal/verification/models"
	id "kycverify/pkg/domain"
	"kycverify/pkg/platform/sentinel"
)

// DefaultWindow is how long a PROCESSING verification absorbs new submissions.
const DefaultWindow = 5 * time.Second

// Store is the authoritative, atomic check-and-create.
type Store interface {
	CreateUnlessRecent(ctx context.Context, v *models.Verification, window time.Duration) (*models.Verification, bool, error)
	FindByID(ctx context.Context, vid id.VerificationID) (*models.Verification, error)
}

// Gate is a fast shared claim in front of the store. holder is the id that
// owns the window when claimed is false.
type Gate interface {
	Claim(ctx context.Context, projectID id.ProjectID, vid id.VerificationID, ttl time.Duration) (holder id.VerificationID, claimed bool, err error)
}

type HitRecorder interface {
	IncrementDedupHit()
}

type Deduplicator struct {
	store   Store
	gate    Gate
	window  time.Duration
	logger  *slog.Logger
	metrics HitRecorder
}

type Option func(*Deduplicator)

// WithGate puts a shared gate (Redis) in front of the store check.
func WithGate(g Gate) Option {
	return func(d *Deduplicator) { d.gate = g }
}

func WithWindow(w time.Duration) Option {
	return func(d *Deduplicator) {
		if w > 0 {
			d.window = w
		}
	}
}

func WithMetrics(m HitRecorder) Option {
	return func(d *Deduplicator) { d.metrics = m }
}

func New(store Store, logger *slog.Logger, opts ...Option) *Deduplicator {
	d := &Deduplicator{store: store, window: DefaultWindow, logger: logger}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Create stores v as a new PROCESSING verification, or returns the project's
// verification still processing from the trailing window. created is false
// for a duplicate.
func (d *Deduplicator) Create(ctx context.Context, v *models.Verification) (*models.Verification, bool, error) {
	if existing := d.fromGate(ctx, v); existing != nil {
		d.hit()
		return existing, false, nil
	}
	stored, created, err := d.store.CreateUnlessRecent(ctx, v, d.window)
	if err != nil {
		return nil, false, err
	}
	if !created {
		d.hit()
	}
	return stored, created, nil
}

// fromGate returns the holder of the project's window when it is still
// processing. Any gate problem falls through to the store check.
func (d *Deduplicator) fromGate(ctx context.Context, v *models.Verification) *models.Verification {
	if d.gate == nil {
		return nil
	}
	holder, claimed, err := d.gate.Claim(ctx, v.ProjectID, v.ID, d.window)
	if err != nil {
		d.logger.WarnContext(ctx, "dedup gate unavailable, using store check",
			"project_id", v.ProjectID.String(),
			"error", err,
		)
		return nil
	}
	if claimed || holder.IsNil() {
		return nil
	}
	existing, err := d.store.FindByID(ctx, holder)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			d.logger.WarnContext(ctx, "dedup holder lookup failed",
				"project_id", v.ProjectID.String(),
				"holder_id", holder.String(),
				"error", err,
			)
		}
		return nil
	}
	if existing.ProjectID != v.ProjectID || existing.Status != decision.StatusProcessing {
		return nil
	}
	return existing
}

func (d *Deduplicator) hit() {
	if d.metrics != nil {
		d.metrics.IncrementDedupHit()
	}
}
