package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the verification pipeline.
type Metrics struct {
	// Evidence latencies by source
	EvidenceLatency *prometheus.HistogramVec

	// Terminal outcomes by status
	Outcomes *prometheus.CounterVec

	// Full pipeline run, evidence through decision
	PipelineDuration prometheus.Histogram
}

// New creates a Metrics instance registered on the default registry.
func New() *Metrics {
	return &Metrics{
		EvidenceLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kyc_evidence_latency_seconds",
			Help:    "Duration of evidence calls by source",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}), // source: "document", "selfie_faces", "face_compare"

		Outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_verification_outcomes_total",
			Help: "Terminal verification outcomes by status",
		}, []string{"status"}),

		PipelineDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "kyc_pipeline_duration_seconds",
			Help:    "Duration of the verification pipeline including evidence gathering",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}

func (m *Metrics) ObserveEvidenceLatency(source string, d time.Duration) {
	if m != nil {
		m.EvidenceLatency.WithLabelValues(source).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementOutcome(status string) {
	if m != nil {
		m.Outcomes.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) ObservePipeline(d time.Duration) {
	if m != nil {
		m.PipelineDuration.Observe(d.Seconds())
	}
}
