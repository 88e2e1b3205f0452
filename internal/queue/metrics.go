package queue

import "github.com/prometheus/client_golang/prometheus"

// ConnMetrics tracks connection-lifecycle events for the queue gateway,
// separate from internal/metrics' per-operation counters so a queue.Client
// can be constructed and tested without the whole application's Metrics
// bundle.
type ConnMetrics struct {
	ConnectionStatus   prometheus.Gauge
	ReconnectionTotal  prometheus.Counter
	DisconnectionTotal prometheus.Counter
	ConnectionErrors   prometheus.Counter
}

// NewConnMetrics constructs and registers connection-lifecycle collectors.
func NewConnMetrics(namespace string, reg prometheus.Registerer) *ConnMetrics {
	m := &ConnMetrics{
		ConnectionStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "nats",
			Name:      "connection_status",
			Help:      "1 when connected to NATS, else 0.",
		}),
		ReconnectionTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "nats",
			Name:      "reconnection_total",
			Help:      "Total successful reconnections.",
		}),
		DisconnectionTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "nats",
			Name:      "disconnection_total",
			Help:      "Total disconnection events.",
		}),
		ConnectionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "nats",
			Name:      "connection_errors_total",
			Help:      "Total async connection errors.",
		}),
	}
	reg.MustRegister(m.ConnectionStatus, m.ReconnectionTotal, m.DisconnectionTotal, m.ConnectionErrors)
	return m
}
