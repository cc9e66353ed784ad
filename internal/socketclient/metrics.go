package socketclient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "chatline"
	metricsSubsystem = "client"
)

type metrics struct {
	reconnects    prometheus.Counter
	heartbeats    prometheus.Counter
	framesDropped prometheus.Counter
	pending       prometheus.Gauge
	state         prometheus.Gauge
}

// newMetrics creates the client collectors. With a nil registerer they are
// still usable, just never exported.
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "reconnects_total",
			Help:      "Connections forced by missing heartbeats or lost sockets.",
		}),
		heartbeats: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "heartbeats_total",
			Help:      "Heartbeat frames received.",
		}),
		framesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "frames_dropped_total",
			Help:      "Frames discarded as malformed or oversized.",
		}),
		pending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "pending_requests",
			Help:      "Requests waiting for a response.",
		}),
		state: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "state",
			Help:      "Connection state: 0 disconnected, 1 connecting, 2 authenticating, 3 ready.",
		}),
	}
}
