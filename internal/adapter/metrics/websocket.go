package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebSocketMetrics holds Prometheus metrics for the WebSocket accept path.
type WebSocketMetrics struct {
	ActiveConnections  prometheus.Gauge
	Upgrades           *prometheus.CounterVec
	ConnectionDuration prometheus.Histogram
}

// NewWebSocketMetrics creates and registers WebSocket metrics on the given registry.
func NewWebSocketMetrics(reg prometheus.Registerer) *WebSocketMetrics {
	m := &WebSocketMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of active WebSocket connections.",
		}),
		Upgrades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "upgrades_total",
			Help:      "WebSocket upgrade attempts by result (accepted, failed, rejected).",
		}, []string{"result"}),
		ConnectionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "connection_duration_seconds",
			Help:      "Lifetime of WebSocket connections in seconds.",
			Buckets:   []float64{1, 10, 60, 300, 900, 3600, 14400, 86400},
		}),
	}

	reg.MustRegister(m.ActiveConnections, m.Upgrades, m.ConnectionDuration)
	return m
}
