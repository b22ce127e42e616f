package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for fraud scoring.
type Metrics struct {
	Assessments    *prometheus.CounterVec
	ModelFallbacks *prometheus.CounterVec
	ModelLatency   prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		Assessments: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_fraud_assessments_total",
			Help: "Fraud assessments by source and risk level",
		}, []string{"source", "risk_level"}),
		ModelFallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_fraud_model_fallback_total",
			Help: "Assessments that fell back to local rules, by reason",
		}, []string{"reason"}),
		ModelLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "kyc_fraud_model_latency_seconds",
			Help:    "Latency of external fraud model calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
	}
}

func (m *Metrics) IncrementAssessment(source, riskLevel string) {
	if m == nil {
		return
	}
	m.Assessments.WithLabelValues(source, riskLevel).Inc()
}

func (m *Metrics) IncrementFallback(reason string) {
	if m == nil {
		return
	}
	m.ModelFallbacks.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveModelLatency(seconds float64) {
	if m == nil {
		return
	}
	m.ModelLatency.Observe(seconds)
}
