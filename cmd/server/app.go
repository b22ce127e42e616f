package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"golang.org/x/sync/errgroup"

	decisionmetrics "kycverify/internal/decision/metrics"
	"kycverify/internal/enrichment"
	"kycverify/internal/evidence"
	"kycverify/internal/evidence/awsadapter"
	"kycverify/internal/fraud"
	fraudmetrics "kycverify/internal/fraud/metrics"
	fraudmodel "kycverify/internal/fraud/model"
	"kycverify/internal/platform/awscfg"
	"kycverify/internal/platform/config"
	"kycverify/internal/platform/httpserver"
	"kycverify/internal/platform/kafka"
	"kycverify/internal/platform/metrics"
	"kycverify/internal/platform/outbox"
	"kycverify/internal/platform/postgres"
	platformredis "kycverify/internal/platform/redis"
	"kycverify/internal/platform/tracing"
	projectservice "kycverify/internal/project/service"
	projectstore "kycverify/internal/project/store"
	"kycverify/internal/ratelimit"
	"kycverify/internal/storage"
	"kycverify/internal/verification/dedup"
	"kycverify/internal/verification/handler"
	vmetrics "kycverify/internal/verification/metrics"
	"kycverify/internal/verification/reaper"
	vservice "kycverify/internal/verification/service"
	vstore "kycverify/internal/verification/store"
	"kycverify/internal/verification/worker"
	"kycverify/internal/webhook"
	webhookmetrics "kycverify/internal/webhook/metrics"
	"kycverify/pkg/platform/audit"
	auditpublisher "kycverify/pkg/platform/audit/publisher"
	auditmemory "kycverify/pkg/platform/audit/store/memory"
	auditpostgres "kycverify/pkg/platform/audit/store/postgres"
	"kycverify/pkg/platform/circuit"
)

const (
	auditBufferSize = 1024
	localBucket     = "local"
)

// app owns every long-lived resource so shutdown can release them in order.
type app struct {
	cfg    config.Config
	log    *slog.Logger
	server *http.Server

	db       *sql.DB
	redis    *platformredis.Client
	producer *kafka.Producer
	pool     *worker.Pool
	reaper   *reaper.Reaper
	relay    *outbox.Relay
	auditor  *auditpublisher.Publisher
	tracing  tracing.Shutdown
}

func build(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return nil, err
	}
	a.tracing = shutdownTracing

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.db = db
	if db != nil {
		if err := postgres.Migrate(ctx, db); err != nil {
			return nil, err
		}
	}

	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	a.redis = redisClient

	auditStore, err := a.buildAudit(ctx)
	if err != nil {
		return nil, err
	}
	a.auditor = auditpublisher.New(auditStore,
		auditpublisher.WithLogger(log),
		auditpublisher.WithMetrics(auditpublisher.NewMetrics()),
		auditpublisher.WithAsyncBuffer(auditBufferSize),
	)

	sources, err := buildSources(ctx, cfg.AWS, log)
	if err != nil {
		return nil, err
	}

	var (
		verifications interface {
			vservice.Store
			dedup.Store
		}
		projects projectservice.Store
	)
	if db != nil {
		verifications = vstore.NewPostgres(db)
		projects = projectstore.NewPostgres(db)
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		verifications = vstore.NewInMemory()
		projects = projectstore.NewInMemory()
	}

	verificationMetrics := vmetrics.New()
	dedupOpts := []dedup.Option{
		dedup.WithWindow(cfg.Pipeline.DedupWindow),
		dedup.WithMetrics(verificationMetrics),
	}
	if redisClient != nil {
		dedupOpts = append(dedupOpts, dedup.WithGate(dedup.NewRedisGate(redisClient.Client)))
	}
	deduplicator := dedup.New(verifications, log, dedupOpts...)

	a.pool = worker.New(cfg.Pipeline.Workers, cfg.Pipeline.QueueSize, log,
		worker.WithDepthRecorder(verificationMetrics))

	projectSvc := projectservice.New(projects, log)
	if pid, err := projectSvc.Bootstrap(ctx, projectservice.CreateCommand{
		Name:          cfg.Bootstrap.Name,
		APIKey:        cfg.Bootstrap.APIKey,
		WebhookURL:    cfg.Bootstrap.WebhookURL,
		WebhookSecret: cfg.Bootstrap.WebhookSecret,
	}); err != nil {
		return nil, fmt.Errorf("bootstrap project: %w", err)
	} else if !pid.IsNil() {
		log.Info("bootstrap project ready", "project_id", pid.String())
	}

	notifier := webhook.NewNotifier(cfg.Pipeline.WebhookTimeout, log,
		webhook.WithMetrics(webhookmetrics.New()))

	opts := []vservice.Option{
		vservice.WithLogger(log),
		vservice.WithWebhooks(projectSvc, notifier),
		vservice.WithAuditPublisher(a.auditor),
		vservice.WithMetrics(verificationMetrics, decisionmetrics.New()),
		vservice.WithStageTimeout(cfg.Pipeline.EvidenceTimeout),
		vservice.WithFaceMatchThreshold(cfg.Pipeline.FaceMatchThreshold),
	}
	if cfg.Geo.Enabled {
		opts = append(opts, vservice.WithGeoLocator(enrichment.NewGeoClient(cfg.Geo.URL, cfg.Geo.Timeout)))
	}
	verificationSvc := vservice.New(verifications, deduplicator, a.pool, sources, buildAssessor(cfg.FraudModel, log), opts...)

	a.reaper, err = reaper.New(verificationSvc, cfg.Pipeline.ReaperSchedule, cfg.Pipeline.StaleProcessingAfter, log)
	if err != nil {
		return nil, err
	}

	h := handler.New(verificationSvc, log, cfg.Server.MaxUploadBytes)
	a.server = httpserver.New(cfg.Server, newRouter(h, projectSvc, a.buildLimiter(), a.healthChecks(), metrics.NewHTTP(), log), log)
	return a, nil
}

// buildAudit selects the audit store. With a database, events go to the
// outbox and a relay forwards them to Kafka when brokers are configured.
func (a *app) buildAudit(ctx context.Context) (audit.Store, error) {
	if a.db == nil {
		return auditmemory.NewInMemoryStore(), nil
	}
	outboxStore := auditpostgres.New(a.db)
	if len(a.cfg.Kafka.Brokers) == 0 {
		a.log.Warn("KAFKA_BROKERS not set, audit events stay in the outbox")
		return outboxStore, nil
	}
	producer, err := kafka.NewProducer(a.cfg.Kafka.Brokers, "kycverify")
	if err != nil {
		return nil, err
	}
	a.producer = producer
	if err := producer.EnsureTopic(ctx, a.cfg.Kafka.AuditTopic, a.cfg.Kafka.TopicPartitions, a.cfg.Kafka.TopicReplication); err != nil {
		return nil, err
	}
	a.relay = outbox.NewRelay(outboxStore, producer, a.cfg.Kafka.AuditTopic, a.log,
		outbox.WithBatchSize(a.cfg.Kafka.RelayBatch),
		outbox.WithInterval(a.cfg.Kafka.RelayEvery),
	)
	return outboxStore, nil
}

func buildSources(ctx context.Context, cfg config.AWSConfig, log *slog.Logger) (vservice.Sources, error) {
	if !cfg.Enabled {
		log.Warn("AWS disabled, evidence providers unavailable; every verification will be rejected")
		disabled := disabledSource{}
		return vservice.Sources{
			Documents: disabled,
			Faces:     disabled,
			Comparer:  disabled,
			Storage:   storage.NewInMemory(localBucket),
		}, nil
	}
	awsCfg, err := awscfg.Load(ctx, cfg)
	if err != nil {
		return vservice.Sources{}, err
	}
	faces := awsadapter.NewFaces(rekognition.NewFromConfig(awsCfg))
	return vservice.Sources{
		Documents: awsadapter.NewDocumentExtractor(textract.NewFromConfig(awsCfg), log),
		Faces:     faces,
		Comparer:  faces,
		Storage:   storage.NewS3(s3.NewFromConfig(awsCfg), cfg.S3Bucket, cfg.KMSKeyID),
	}, nil
}

// buildLimiter shares windows through Redis when configured and counts in
// process otherwise.
func (a *app) buildLimiter() *ratelimit.Limiter {
	cfg := a.cfg.RateLimit
	if !cfg.Enabled {
		return nil
	}
	var primary ratelimit.Store
	if a.redis != nil {
		primary = ratelimit.NewRedis(a.redis.Client)
	}
	return ratelimit.NewLimiter(primary, map[ratelimit.Class]ratelimit.Limit{
		ratelimit.ClassSubmit: {Requests: cfg.SubmitPerMinute, Window: time.Minute},
		ratelimit.ClassRead:   {Requests: cfg.ReadPerMinute, Window: time.Minute},
	}, a.log)
}

func buildAssessor(cfg config.FraudModelConfig, log *slog.Logger) *fraud.Assessor {
	opts := []fraud.AssessorOption{fraud.WithMetrics(fraudmetrics.New())}
	if cfg.Enabled && cfg.URL != "" {
		client := fraudmodel.New(cfg.URL, cfg.APIKey, cfg.Timeout)
		opts = append(opts, fraud.WithModel(client, circuit.New("fraud-model")))
	}
	return fraud.NewAssessor(fraud.NewScorer(fraud.DefaultPolicy()), log, opts...)
}

// disabledSource stands in for the AWS providers when they are not configured.
type disabledSource struct{}

var errProviderDisabled = errors.New("evidence provider not configured")

func (disabledSource) Extract(context.Context, evidence.ObjectRef) (evidence.Extraction, error) {
	return evidence.Extraction{}, evidence.NewSourceError(evidence.ErrorInternal, "textract", "disabled", errProviderDisabled)
}

func (disabledSource) Detect(context.Context, evidence.ObjectRef) ([]evidence.FaceQuality, error) {
	return nil, evidence.NewSourceError(evidence.ErrorInternal, "rekognition", "disabled", errProviderDisabled)
}

func (disabledSource) Compare(context.Context, evidence.ObjectRef, evidence.ObjectRef, float64) (evidence.FaceComparison, error) {
	return evidence.FaceComparison{}, evidence.NewSourceError(evidence.ErrorInternal, "rekognition", "disabled", errProviderDisabled)
}

func (a *app) healthChecks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{}
	if a.db != nil {
		checks["postgres"] = a.db.PingContext
	}
	if a.redis != nil {
		checks["redis"] = a.redis.Health
	}
	if a.producer != nil {
		checks["kafka"] = a.producer.Health
	}
	return checks
}

// run serves until ctx ends, then shuts components down in dependency order.
func (a *app) run(ctx context.Context) error {
	a.pool.Start(ctx)
	a.reaper.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("starting kycverify", "addr", a.cfg.Server.Addr, "env", a.cfg.Environment)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if a.relay != nil {
		g.Go(func() error {
			if err := a.relay.Run(gctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})
	return g.Wait()
}

func (a *app) shutdown() error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	a.log.Info("shutting down")

	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	a.reaper.Stop(ctx)
	if err := a.pool.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("worker pool: %w", err))
	}
	if err := a.auditor.Close(); err != nil {
		errs = append(errs, err)
	}
	if a.producer != nil {
		a.producer.Close()
	}
	if err := a.tracing(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush spans: %w", err))
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.log.Info("shutdown complete", "duration_ms", time.Since(start).Milliseconds())
	return errors.Join(errs...)
}
