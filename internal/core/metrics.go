package core

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates the persistence and scheduler counters exported by the
// service. A nil *Metrics is valid and records nothing.
type Metrics struct {
	ops           *prometheus.CounterVec
	fallbackCalls prometheus.Counter
	scanDuration  prometheus.Histogram
	autoCompleted prometheus.Counter
}

// NewMetrics registers the ordercore collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ops: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ordercore",
			Subsystem: "persistence",
			Name:      "operations_total",
			Help:      "Facade operations by entity, operation, serving backend, and result.",
		}, []string{"entity", "op", "backend", "result"}),
		fallbackCalls: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ordercore",
			Subsystem: "persistence",
			Name:      "fallback_calls_total",
			Help:      "Individual durable-backend failures served from the fallback store.",
		}),
		scanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ordercore",
			Subsystem: "lifecycle",
			Name:      "autocomplete_scan_seconds",
			Help:      "Duration of auto-complete scans over all orders.",
			Buckets:   prometheus.DefBuckets,
		}),
		autoCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ordercore",
			Subsystem: "lifecycle",
			Name:      "autocompleted_orders_total",
			Help:      "Orders transitioned to delivered by the timeout scan.",
		}),
	}
}

func (m *Metrics) observeOp(entity, op, backend string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ops.WithLabelValues(entity, op, backend, result).Inc()
}

func (m *Metrics) observeFallbackCall() {
	if m == nil {
		return
	}
	m.fallbackCalls.Inc()
}

func (m *Metrics) observeScan(d time.Duration, completed int) {
	if m == nil {
		return
	}
	m.scanDuration.Observe(d.Seconds())
	m.autoCompleted.Add(float64(completed))
}
