package metrics

import "github.com/prometheus/client_golang/prometheus"

// HTTPMetrics holds Prometheus metrics for the HTTP error path.
type HTTPMetrics struct {
	Errors *prometheus.CounterVec
}

// NewHTTPMetrics creates and registers HTTP metrics on the given registry.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "HTTP error responses by error type.",
		}, []string{"type"}),
	}

	reg.MustRegister(m.Errors)
	return m
}
