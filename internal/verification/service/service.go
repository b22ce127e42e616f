// Package service runs the verification lifecycle: submission, the detached
// evidence pipeline, the single terminal transition and its side effects.
package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	decisionmetrics "kycverify/internal/decision/metrics"
	"kycverify/internal/evidence"
	"kycverify/internal/evidence/normalizer"
	"kycverify/internal/fraud"
	vmetrics "kycverify/internal/verification/metrics"
	"kycverify/internal/verification/models"
	"kycverify/internal/verification/worker"
	"kycverify/internal/webhook"
	id "kycverify/pkg/domain"
	audit "kycverify/pkg/platform/audit"
)

const (
	defaultStageTimeout       = 30 * time.Second
	defaultFaceMatchThreshold = 85.0
	staleBatchSize            = 100
)

type Store interface {
	FindByID(ctx context.Context, vid id.VerificationID) (*models.Verification, error)
	SetDocuments(ctx context.Context, vid id.VerificationID, docs models.Documents) error
	AppendEvent(ctx context.Context, vid id.VerificationID, ev models.SessionEvent) error
	Complete(ctx context.Context, vid id.VerificationID, result models.Result) (bool, error)
	PatchEnrichment(ctx context.Context, vid id.VerificationID, e models.Enrichment) error
	ListByProject(ctx context.Context, projectID id.ProjectID, filter models.ListFilter) (models.Page, error)
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]id.VerificationID, error)
}

type Deduplicator interface {
	Create(ctx context.Context, v *models.Verification) (*models.Verification, bool, error)
}

// Queue hands jobs to the worker pool.
type Queue interface {
	Submit(ctx context.Context, job worker.Job) error
}

type ProjectDirectory interface {
	WebhookTarget(ctx context.Context, projectID id.ProjectID) (webhook.Target, error)
}

type Notifier interface {
	Notify(ctx context.Context, target webhook.Target, payload webhook.Payload) bool
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type FraudAssessor interface {
	Assess(ctx context.Context, sig fraud.Signals) fraud.Assessment
}

type IdentityNormalizer interface {
	Normalize(ctx context.Context, items []evidence.Evidence) normalizer.Identity
}

// GeoLocator resolves an IP address. A nil result means nothing was found.
type GeoLocator interface {
	Lookup(ctx context.Context, ip string) (*models.Geolocation, error)
}

// Sources are the external evidence services used by the pipeline.
type Sources struct {
	Documents evidence.DocumentExtractor
	Faces     evidence.FaceDetector
	Comparer  evidence.FaceComparer
	Storage   evidence.ObjectStorage
}

// Service owns every write to a verification.
type Service struct {
	store      Store
	dedup      Deduplicator
	queue      Queue
	sources    Sources
	assessor   FraudAssessor
	normalizer IdentityNormalizer
	projects   ProjectDirectory
	notifier   Notifier
	auditor    AuditPublisher
	geo        GeoLocator

	logger          *slog.Logger
	metrics         *vmetrics.Metrics
	decisionMetrics *decisionmetrics.Metrics
	tracer          trace.Tracer
	now             func() time.Time

	stageTimeout       time.Duration
	faceMatchThreshold float64
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithNormalizer(n IdentityNormalizer) Option {
	return func(s *Service) { s.normalizer = n }
}

// WithWebhooks enables completion callbacks.
func WithWebhooks(projects ProjectDirectory, notifier Notifier) Option {
	return func(s *Service) {
		s.projects = projects
		s.notifier = notifier
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) { s.auditor = p }
}

// WithGeoLocator enables IP geolocation enrichment after submission.
func WithGeoLocator(g GeoLocator) Option {
	return func(s *Service) { s.geo = g }
}

func WithMetrics(m *vmetrics.Metrics, dm *decisionmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
		s.decisionMetrics = dm
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithStageTimeout bounds each evidence call. The whole gathering step gets twice as long.
func WithStageTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.stageTimeout = d
		}
	}
}

func WithFaceMatchThreshold(t float64) Option {
	return func(s *Service) {
		if t > 0 {
			s.faceMatchThreshold = t
		}
	}
}

func New(store Store, dedup Deduplicator, queue Queue, sources Sources, assessor FraudAssessor, opts ...Option) *Service {
	s := &Service{
		store:              store,
		dedup:              dedup,
		queue:              queue,
		sources:            sources,
		assessor:           assessor,
		logger:             slog.Default(),
		now:                time.Now,
		stageTimeout:       defaultStageTimeout,
		faceMatchThreshold: defaultFaceMatchThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.normalizer == nil {
		s.normalizer = normalizer.New(s.logger)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("kycverify/verification")
	}
	return s
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "audit emit failed",
			"action", event.Action,
			"verification_id", event.VerificationID.String(),
			"error", err,
		)
	}
}

func (s *Service) appendEvent(ctx context.Context, vid id.VerificationID, t models.SessionEventType, detail string) {
	if err := s.store.AppendEvent(ctx, vid, models.NewSessionEvent(t, detail, s.now())); err != nil {
		s.logger.WarnContext(ctx, "session event not recorded",
			"verification_id", vid.String(),
			"event", t,
			"error", err,
		)
	}
}
