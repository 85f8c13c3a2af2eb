package metrics

import "github.com/prometheus/client_golang/prometheus"

// StoreMetrics covers the three backing stores. The store label is one of
// "mongo", "postgres" or "redis".
type StoreMetrics struct {
	OpDuration       *prometheus.HistogramVec
	OpErrors         *prometheus.CounterVec
	ConnectionErrors *prometheus.CounterVec
	BreakerState     *prometheus.GaugeVec
}

func NewStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	m := &StoreMetrics{
		OpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Duration of backing store operations in seconds.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"store", "operation"}),
		OpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_errors_total",
			Help:      "Total number of failed backing store operations.",
		}, []string{"store", "operation"}),
		ConnectionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "connection_errors_total",
			Help:      "Total number of failed connection attempts.",
		}, []string{"store"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per store (0=closed, 1=half-open, 2=open).",
		}, []string{"store"}),
	}

	reg.MustRegister(m.OpDuration, m.OpErrors, m.ConnectionErrors, m.BreakerState)
	return m
}

// Observe records one operation. A nil receiver is a no-op.
func (m *StoreMetrics) Observe(store, operation string, seconds float64, failed bool) {
	if m == nil {
		return
	}
	m.OpDuration.WithLabelValues(store, operation).Observe(seconds)
	if failed {
		m.OpErrors.WithLabelValues(store, operation).Inc()
	}
}
