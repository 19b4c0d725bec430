// Package metrics exposes Prometheus counters and gauges for the order
// feed pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the pipeline's metrics. Subscriber updates
// OrdersIngested, OrdersRejected, SequenceHighWater and
// BusSubscriberErrors from the bus streams; BatchSize and
// ProcessingLatency are registered but nothing in this module observes
// them.
type Registry struct {
	reg *prometheus.Registry

	OrdersIngested   *prometheus.CounterVec
	OrdersRejected   *prometheus.CounterVec
	BatchSize        prometheus.Histogram
	ProcessingLatency *prometheus.HistogramVec
	SequenceHighWater *prometheus.GaugeVec
	BusSubscriberErrors prometheus.Counter
}

// NewRegistry constructs and registers the metric set.
func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	ordersIngested := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orderfeed_orders_ingested_total",
		Help: "Orders accepted and normalized, by partner.",
	}, []string{"partner"})

	ordersRejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orderfeed_orders_rejected_total",
		Help: "Orders rejected, by partner and error code.",
	}, []string{"partner", "error_code"})

	batchSize := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orderfeed_batch_size",
		Help:    "Size of batches submitted to the batch ingest endpoint.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
	})

	processingLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orderfeed_processing_latency_seconds",
		Help:    "End-to-end validate+normalize+emit latency per order.",
		Buckets: prometheus.DefBuckets,
	}, []string{"partner"})

	sequenceHighWater := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "orderfeed_sequence_high_water",
		Help: "Highest sequence number assigned per partner.",
	}, []string{"partner"})

	busSubscriberErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orderfeed_bus_subscriber_errors_total",
		Help: "Subscriber failures reported back onto the error stream.",
	})

	r.MustRegister(ordersIngested, ordersRejected, batchSize, processingLatency, sequenceHighWater, busSubscriberErrors)

	return &Registry{
		reg:                 r,
		OrdersIngested:      ordersIngested,
		OrdersRejected:      ordersRejected,
		BatchSize:           batchSize,
		ProcessingLatency:   processingLatency,
		SequenceHighWater:   sequenceHighWater,
		BusSubscriberErrors: busSubscriberErrors,
	}
}

// Handler serves this registry's metrics in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
