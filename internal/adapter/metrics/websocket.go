package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebSocketMetrics holds Prometheus metrics for WebSocket streams.
type WebSocketMetrics struct {
	ActiveConnections  *prometheus.GaugeVec
	MessagesSent       *prometheus.CounterVec
	SlowClientsEvicted *prometheus.CounterVec
	PingFailures       prometheus.Counter
	IdleDisconnects    prometheus.Counter
}

// NewWebSocketMetrics creates and registers WebSocket metrics on the given registry.
func NewWebSocketMetrics(reg prometheus.Registerer) *WebSocketMetrics {
	m := &WebSocketMetrics{
		ActiveConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of active WebSocket connections, by stream.",
		}, []string{"stream"}),
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "messages_sent_total",
			Help:      "Total number of WebSocket messages sent, by stream.",
		}, []string{"stream"}),
		SlowClientsEvicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "slow_clients_evicted_total",
			Help:      "Total number of messages dropped because a client could not keep up, by stream.",
		}, []string{"stream"}),
		PingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "ping_failures_total",
			Help:      "Total number of failed WebSocket pings.",
		}),
		IdleDisconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "idle_disconnects_total",
			Help:      "Total number of connections closed for inactivity.",
		}),
	}

	reg.MustRegister(m.ActiveConnections, m.MessagesSent, m.SlowClientsEvicted, m.PingFailures, m.IdleDisconnects)
	return m
}
