package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Deliveries *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Deliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_webhook_deliveries_total",
			Help: "Webhook delivery attempts by result",
		}, []string{"result"}), // result: "delivered", "failed", "skipped"
	}
}

func (m *Metrics) IncrementDelivery(result string) {
	if m != nil {
		m.Deliveries.WithLabelValues(result).Inc()
	}
}
