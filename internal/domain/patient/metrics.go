package patient

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation outcomes recorded on patient_operations_total.
const (
	outcomeOK            = "ok"
	outcomeConflict      = "conflict"
	outcomeNotFound      = "not_found"
	outcomeInvalid       = "invalid"
	outcomeBillingFailed = "billing_failed"
	outcomeStoreError    = "error"
)

// Metrics is safe to use as a nil pointer, which records nothing.
type Metrics struct {
	operations      *prometheus.CounterVec
	billingDuration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "patient_operations_total",
			Help: "Patient lifecycle operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		billingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "patient_billing_provision_seconds",
			Help:    "Latency of billing account provisioning calls.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) observe(operation, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) observeBilling(start time.Time) {
	if m == nil {
		return
	}
	m.billingDuration.Observe(time.Since(start).Seconds())
}
