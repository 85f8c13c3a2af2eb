package metrics

import "github.com/prometheus/client_golang/prometheus"

// StatusMetrics holds Prometheus metrics for outbound status API checks.
type StatusMetrics struct {
	Checks        *prometheus.CounterVec
	CheckDuration prometheus.Histogram
	Collapsed     prometheus.Counter
	BreakerState  prometheus.Gauge
}

// NewStatusMetrics creates and registers status check metrics on the given registry.
func NewStatusMetrics(reg prometheus.Registerer) *StatusMetrics {
	m := &StatusMetrics{
		Checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "status_check",
			Name:      "total",
			Help:      "Total number of status checks, by result (online, offline, error, breaker_open, canceled).",
		}, []string{"result"}),
		CheckDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "status_check",
			Name:      "duration_seconds",
			Help:      "Duration of outbound status API requests in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		Collapsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "status_check",
			Name:      "collapsed_total",
			Help:      "Total number of checks that shared one in-flight request with an identical check.",
		}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "status_check",
			Name:      "breaker_state",
			Help:      "Circuit breaker state of the status API (0=closed, 1=half-open, 2=open).",
		}),
	}

	reg.MustRegister(m.Checks, m.CheckDuration, m.Collapsed, m.BreakerState)
	return m
}
