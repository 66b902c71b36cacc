package chain

import (
	"time"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors of a Chain.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	moved      prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_operations_total",
				Help: "Finalized ledger operations by label and outcome",
			},
			[]string{"label", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_operation_duration_seconds",
				Help:    "Execution time of ledger operations, excluding finality delay",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
			[]string{"label"},
		),
		moved: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_value_committed_base_units_total",
				Help: "Base units credited by committed operations",
			},
		),
	}
	reg.MustRegister(m.operations, m.duration, m.moved)
	return m
}

func (m *Metrics) observe(label string, outcome domain.Outcome, d time.Duration, postings []domain.Posting) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(label, string(outcome)).Inc()
	m.duration.WithLabelValues(label).Observe(d.Seconds())
	for _, p := range postings {
		m.moved.Add(float64(p.Credit))
	}
}
