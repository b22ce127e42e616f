package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts submissions at the lifecycle entry point.
type Metrics struct {
	Submissions prometheus.Counter
	DedupHits   prometheus.Counter
	StaleFailed prometheus.Counter
	QueueDepth  prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		Submissions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kyc_verification_submissions_total",
			Help: "Accepted verification submissions, duplicates included",
		}),
		DedupHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kyc_verification_dedup_hits_total",
			Help: "Submissions collapsed into a verification already processing",
		}),
		StaleFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kyc_verification_stale_failed_total",
			Help: "Verifications failed by the reaper after being stuck in PROCESSING",
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "kyc_verification_queue_depth",
			Help: "Jobs waiting for a pipeline worker",
		}),
	}
}

func (m *Metrics) IncrementSubmission() {
	if m != nil {
		m.Submissions.Inc()
	}
}

func (m *Metrics) IncrementDedupHit() {
	if m != nil {
		m.DedupHits.Inc()
	}
}

func (m *Metrics) AddStaleFailed(n int) {
	if m != nil {
		m.StaleFailed.Add(float64(n))
	}
}

func (m *Metrics) SetQueueDepth(n int) {
	if m != nil {
		m.QueueDepth.Set(float64(n))
	}
}
