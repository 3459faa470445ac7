// Package metrics exposes the engine's operational gauges and histograms on
// a Prometheus /metrics endpoint, grounded on the pack's tradSys/tradeengin
// repos' use of prometheus/client_golang for exactly this kind of service
// instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry bundles every metric the matching engine process reports. It
// registers against its own prometheus.Registry rather than the global
// default, so tests can construct one without colliding with another test's
// metric names.
type Registry struct {
	reg *prometheus.Registry

	QueueDepth          prometheus.Gauge
	EventBufferDepth    prometheus.Gauge
	JournalActiveOrders prometheus.Gauge
	MatchingLatency     prometheus.Histogram
	SnapshotDuration     prometheus.Histogram
	SnapshotSizeBytes    prometheus.Gauge
	EventsCommittedTotal prometheus.Counter
	OrdersAdmittedTotal  prometheus.Counter
	OrdersRejectedTotal  prometheus.Counter
}

// NewRegistry creates and registers every metric.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,

		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "matching_ingress_queue_depth",
			Help: "Number of commands currently buffered in the Ingress Queue.",
		}),
		EventBufferDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "matching_event_buffer_depth",
			Help: "Number of events currently buffered awaiting the Event Writer.",
		}),
		JournalActiveOrders: factory.NewGauge(prometheus.GaugeOpts{
			Name: "matching_journal_active_orders",
			Help: "Number of order_ids the Order Journal currently considers Active.",
		}),
		MatchingLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "matching_engine_process_order_seconds",
			Help:    "Time spent in Engine.ProcessOrder per order.",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 12), // 1us .. ~4s
		}),
		SnapshotDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "matching_snapshot_duration_seconds",
			Help:    "Time spent taking and persisting a snapshot.",
			Buckets: prometheus.DefBuckets,
		}),
		SnapshotSizeBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "matching_snapshot_size_bytes",
			Help: "Size in bytes of the most recently taken snapshot.",
		}),
		EventsCommittedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "matching_events_committed_total",
			Help: "Total number of events durably committed by the Event Writer.",
		}),
		OrdersAdmittedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "matching_orders_admitted_total",
			Help: "Total number of orders accepted by the Gateway's admission pipeline.",
		}),
		OrdersRejectedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "matching_orders_rejected_total",
			Help: "Total number of orders rejected by the Gateway's admission pipeline.",
		}),
	}
}

// Registerer exposes the underlying registry for http handler construction.
func (r *Registry) Registerer() *prometheus.Registry {
	return r.reg
}

// ObserveSnapshot satisfies internal/snapshot.MetricsSink.
func (r *Registry) ObserveSnapshot(duration time.Duration, sizeBytes int) {
	r.SnapshotDuration.Observe(duration.Seconds())
	r.SnapshotSizeBytes.Set(float64(sizeBytes))
}

// IncEventsCommitted satisfies internal/events.CommitCounter.
func (r *Registry) IncEventsCommitted() {
	r.EventsCommittedTotal.Inc()
}
