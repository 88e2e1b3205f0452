// Package metrics bundles the Prometheus collectors every component reports
// through, all registered under one operator-chosen namespace.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles collectors shared across the scheduler, sender, DLQ
// processor, health monitor, and queue gateway.
type Metrics struct {
	SchedulerSweepsTotal     prometheus.Counter
	SchedulerEnqueuedTotal   prometheus.Counter
	SchedulerEnqueueFailures prometheus.Counter
	SchedulerPagesConsumed   prometheus.Counter

	SenderDeliveriesTotal *prometheus.CounterVec // labels: outcome
	SenderPhaseDuration   *prometheus.HistogramVec // labels: phase
	SenderStuckRecovered  prometheus.Counter

	DLQRedrivenTotal    prometheus.Counter
	DLQRedriveFailures  prometheus.Counter
	DLQHealthProbeUp    prometheus.Gauge

	HealthMissedEvents prometheus.Gauge
	HealthStuckEvents  prometheus.Gauge
	HealthStatus       prometheus.Gauge // 0=healthy 1=warning 2=critical

	QueuePublishTotal  *prometheus.CounterVec // labels: subject, outcome
	QueueConsumeTotal  *prometheus.CounterVec // labels: subject, outcome

	WebhookRequestsTotal *prometheus.CounterVec // labels: outcome
	WebhookDuration      prometheus.Histogram
}

// New constructs and registers every collector under namespace.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SchedulerSweepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "sweeps_total",
			Help:      "Total scheduler sweep invocations.",
		}),
		SchedulerEnqueuedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "enqueued_total",
			Help:      "Total due events enqueued by the scheduler.",
		}),
		SchedulerEnqueueFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "enqueue_failures_total",
			Help:      "Total per-item failures (user lookup or enqueue) during a sweep.",
		}),
		SchedulerPagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "pages_consumed_total",
			Help:      "Total QueryDue pages consumed across all sweeps.",
		}),
		SenderDeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sender",
			Name:      "deliveries_total",
			Help:      "Total sender outcomes by type.",
		}, []string{"outcome"}),
		SenderPhaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sender",
			Name:      "phase_duration_seconds",
			Help:      "Duration of each sender phase in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),
		SenderStuckRecovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sender",
			Name:      "stuck_recovered_total",
			Help:      "Total events the sender itself recovered from a stuck sending state.",
		}),
		DLQRedrivenTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dlq",
			Name:      "redriven_total",
			Help:      "Total messages successfully redriven from the DLQ.",
		}),
		DLQRedriveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dlq",
			Name:      "redrive_failures_total",
			Help:      "Total DLQ redrive attempts that failed to republish or terminate.",
		}),
		DLQHealthProbeUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dlq",
			Name:      "health_probe_up",
			Help:      "1 when the last webhook health probe succeeded, else 0.",
		}),
		HealthMissedEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "missed_events",
			Help:      "Events overdue by more than zero but less than 24h, not yet completed.",
		}),
		HealthStuckEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "stuck_events",
			Help:      "Events currently stuck in sending_status=sending.",
		}),
		HealthStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "status",
			Help:      "Last health monitor classification: 0=healthy 1=warning 2=critical.",
		}),
		QueuePublishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "publish_total",
			Help:      "Total publish attempts by subject and outcome.",
		}, []string{"subject", "outcome"}),
		QueueConsumeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "consume_total",
			Help:      "Total consume decisions by subject and outcome.",
		}, []string{"subject", "outcome"}),
		WebhookRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "requests_total",
			Help:      "Total webhook delivery attempts by outcome.",
		}, []string{"outcome"}),
		WebhookDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "duration_seconds",
			Help:      "Webhook delivery request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.SchedulerSweepsTotal,
		m.SchedulerEnqueuedTotal,
		m.SchedulerEnqueueFailures,
		m.SchedulerPagesConsumed,
		m.SenderDeliveriesTotal,
		m.SenderPhaseDuration,
		m.SenderStuckRecovered,
		m.DLQRedrivenTotal,
		m.DLQRedriveFailures,
		m.DLQHealthProbeUp,
		m.HealthMissedEvents,
		m.HealthStuckEvents,
		m.HealthStatus,
		m.QueuePublishTotal,
		m.QueueConsumeTotal,
		m.WebhookRequestsTotal,
		m.WebhookDuration,
	)

	return m
}
