package metrics

import "github.com/prometheus/client_golang/prometheus"

// Removal reasons used as the "reason" label of SubscribersRemoved.
const (
	RemovalClosed     = "closed"
	RemovalSendFailed = "send_failed"
	RemovalSlow       = "slow"
	RemovalShutdown   = "shutdown"
)

// BroadcasterMetrics holds Prometheus metrics for the position broadcaster.
type BroadcasterMetrics struct {
	TicksTotal           prometheus.Counter
	TickFailures         prometheus.Counter
	TickDuration         prometheus.Histogram
	ActiveSubscribers    prometheus.Gauge
	SubscribersAdded     prometheus.Counter
	SubscribersRejected  prometheus.Counter
	SubscribersRemoved   *prometheus.CounterVec
	MessagesSent         prometheus.Counter
	MessageSendDuration  prometheus.Histogram
	CommandChannelDepth  prometheus.Gauge
	BroadcasterPanics    prometheus.Counter
	StopTimeoutsExceeded prometheus.Counter
}

// NewBroadcasterMetrics creates and registers broadcaster metrics on the given registry.
func NewBroadcasterMetrics(reg prometheus.Registerer) *BroadcasterMetrics {
	m := &BroadcasterMetrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcaster",
			Name:      "ticks_total",
			Help:      "Total number of broadcast ticks.",
		}),
		TickFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcaster",
			Name:      "tick_failures_total",
			Help:      "Ticks where no position could be computed.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "broadcaster",
			Name:      "tick_duration_seconds",
			Help:      "Time spent computing and fanning out one tick.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1},
		}),
		ActiveSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcaster",
			Name:      "active_subscribers",
			Help:      "Number of registered subscribers.",
		}),
		SubscribersAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcaster",
			Name:      "subscribers_registered_total",
			Help:      "Total number of subscribers registered.",
		}),
		SubscribersRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcaster",
			Name:      "subscribers_rejected_total",
			Help:      "Subscribers rejected because the registry was full.",
		}),
		SubscribersRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcaster",
			Name:      "subscribers_removed_total",
			Help:      "Total number of subscribers removed, by reason.",
		}, []string{"reason"}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcaster",
			Name:      "messages_sent_total",
			Help:      "Total number of frames written to subscribers.",
		}),
		MessageSendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "broadcaster",
			Name:      "send_duration_seconds",
			Help:      "Time spent writing a single frame to a subscriber.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}),
		CommandChannelDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcaster",
			Name:      "command_channel_depth",
			Help:      "Current depth of the broadcaster command channel.",
		}),
		BroadcasterPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcaster",
			Name:      "panics_total",
			Help:      "Total broadcaster panic recoveries.",
		}),
		StopTimeoutsExceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcaster",
			Name:      "stop_timeouts_total",
			Help:      "Broadcaster stops that exceeded their timeout.",
		}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.TickFailures,
		m.TickDuration,
		m.ActiveSubscribers,
		m.SubscribersAdded,
		m.SubscribersRejected,
		m.SubscribersRemoved,
		m.MessagesSent,
		m.MessageSendDuration,
		m.CommandChannelDepth,
		m.BroadcasterPanics,
		m.StopTimeoutsExceeded,
	)
	return m
}
