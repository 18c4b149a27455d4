// Package metrics exposes the kernel's Prometheus instrumentation:
// per-level and per-operation counters plus gas/outbox gauges, grounded
// on the teacher's pkg/metrics registry-and-collectors pattern.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the kernel's Prometheus collectors.
var Registry = prometheus.NewRegistry()

var (
	levelsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jstz",
			Subsystem: "kernel",
			Name:      "levels_processed_total",
			Help:      "Total number of rollup levels the kernel has processed.",
		},
	)

	inboxMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jstz",
			Subsystem: "inbox",
			Name:      "messages_total",
			Help:      "Total inbox messages seen, by outcome (level_info, dispatched, dropped).",
		},
		[]string{"kind"},
	)

	operationsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jstz",
			Subsystem: "operation",
			Name:      "dispatched_total",
			Help:      "Total operations dispatched, by content kind and receipt status.",
		},
		[]string{"kind", "status"},
	)

	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jstz",
			Subsystem: "operation",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of one operation's dispatch, by content kind.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		},
		[]string{"kind"},
	)

	gasConsumed = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jstz",
			Subsystem: "runtime",
			Name:      "gas_consumed",
			Help:      "Approximate gas consumed per RunFunction invocation.",
			Buckets:   prometheus.ExponentialBuckets(10, 4, 10),
		},
		[]string{"result"},
	)

	outboxQueueLen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "jstz",
			Subsystem: "outbox",
			Name:      "persistent_queue_length",
			Help:      "Current number of messages held in the persistent outbox tier.",
		},
	)

	outboxFlushed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jstz",
			Subsystem: "outbox",
			Name:      "messages_flushed_total",
			Help:      "Total outbox messages successfully written to the rollup outbox tape.",
		},
	)
)

func init() {
	Registry.MustRegister(
		levelsProcessed,
		inboxMessages,
		operationsDispatched,
		operationDuration,
		gasConsumed,
		outboxQueueLen,
		outboxFlushed,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// LevelProcessed records the completion of one kernel level.
func LevelProcessed() { levelsProcessed.Inc() }

// InboxMessage records one decoded (or dropped) inbox message kind.
func InboxMessage(kind string) { inboxMessages.WithLabelValues(kind).Inc() }

// OperationDispatched records one operation's terminal receipt status
// ("success" or "failed") against its content kind.
func OperationDispatched(kind, status string) {
	operationsDispatched.WithLabelValues(kind, status).Inc()
}

// ObserveOperationDuration records how long one operation's dispatch took.
func ObserveOperationDuration(kind string, seconds float64) {
	operationDuration.WithLabelValues(kind).Observe(seconds)
}

// ObserveGas records the outcome of a gas-limited RunFunction call.
func ObserveGas(result string, units float64) {
	gasConsumed.WithLabelValues(result).Observe(units)
}

// SetOutboxQueueLen reports the persistent outbox tier's current depth.
func SetOutboxQueueLen(n float64) { outboxQueueLen.Set(n) }

// AddOutboxFlushed records n messages successfully flushed to L1.
func AddOutboxFlushed(n float64) { outboxFlushed.Add(n) }

// Handler returns an HTTP handler exposing the registered collectors.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
