// Package metrics defines the Prometheus instrumentation for the delivery
// engine. Collectors are registered on an explicit registry by each service
// binary, not on the global default.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outhook_events_dispatched_total",
			Help: "Total number of events dispatched, by organization and type.",
		},
		[]string{"organization_id", "event_type"},
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outhook_delivery_attempts_total",
			Help: "Total number of delivery attempts by outcome.",
		},
		[]string{"outcome", "organization_id", "endpoint_id"},
	)

	DeliveryLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "outhook_delivery_latency_seconds",
			Help:    "Latency of delivery HTTP requests by response code.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"code"},
	)

	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outhook_retries_total",
			Help: "Total number of delivery retries by reason.",
		},
		[]string{"reason"}, // e.g. http_5xx, timeout, network, other
	)

	ExhaustedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outhook_deliveries_exhausted_total",
			Help: "Total number of deliveries that failed terminally, by reason.",
		},
		[]string{"reason"},
	)

	QueueBacklog = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "outhook_worker_backlog",
			Help: "Depth of the delivery task channel consumed by workers.",
		},
	)

	QueueTopicDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "outhook_queue_topic_depth",
			Help: "Depth of queue topics by topic and channel.",
		},
		[]string{"topic", "channel"},
	)
)

func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		EventsDispatchedTotal,
		DeliveriesTotal,
		DeliveryLatency,
		RetriesTotal,
		ExhaustedTotal,
		QueueBacklog,
		QueueTopicDepth,
	)
}

// RecordEventDispatched counts one fanned-out event.
func RecordEventDispatched(organizationID, eventType string) {
	EventsDispatchedTotal.WithLabelValues(organizationID, eventType).Inc()
}

// RecordDelivery counts one attempt outcome ("success" or "failure").
func RecordDelivery(outcome, organizationID, endpointID string) {
	DeliveriesTotal.WithLabelValues(outcome, organizationID, endpointID).Inc()
}

// RecordHTTPDelivery observes the latency of an attempt that got a response.
func RecordHTTPDelivery(code string, latency time.Duration) {
	DeliveryLatency.WithLabelValues(code).Observe(latency.Seconds())
}

// RecordRetry counts one scheduled retry by failure reason.
func RecordRetry(reason string) {
	RetriesTotal.WithLabelValues(reason).Inc()
}

// RecordExhausted counts one terminal failure by reason.
func RecordExhausted(reason string) {
	ExhaustedTotal.WithLabelValues(reason).Inc()
}

// UpdateQueueBacklog sets the worker backlog gauge.
func UpdateQueueBacklog(depth float64) {
	QueueBacklog.Set(depth)
}

// UpdateQueueTopicDepth sets the per-topic depth gauge.
func UpdateQueueTopicDepth(topic, channel string, depth float64) {
	QueueTopicDepth.WithLabelValues(topic, channel).Set(depth)
}
