package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Published *prometheus.CounterVec
	Dropped   prometheus.Counter
	QueueLen  prometheus.Gauge
}

// NewMetrics registers the dispatcher collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Published: f.NewCounterVec(prometheus.CounterOpts{
			Name: "patient_events_published_total",
			Help: "Events handed to a transport, by transport and result.",
		}, []string{"transport", "result"}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "patient_events_dropped_total",
			Help: "Events rejected because the dispatch queue was full or closed.",
		}),
		QueueLen: f.NewGauge(prometheus.GaugeOpts{
			Name: "patient_events_queue_length",
			Help: "Events waiting for a dispatch worker.",
		}),
	}
}
