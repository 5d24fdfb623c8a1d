// Package metrics holds the Prometheus instruments for the ingestion pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registry served on the metrics endpoint.
var Registry = prometheus.NewRegistry()

var (
	EventsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsgate_events_received_total",
			Help: "Inbound SMS events accepted from a transport",
		},
		[]string{"channel"},
	)

	EventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsgate_events_dropped_total",
			Help: "Inbound events dropped by policy, by reason",
		},
		[]string{"reason"},
	)

	QueueOverflows = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smsgate_queue_overflows_total",
			Help: "Events lost because the inbound queue stayed full",
		},
	)

	GatewayForwards = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsgate_gateway_forwards_total",
			Help: "Gateway forward attempts, by result",
		},
		[]string{"result"},
	)

	GatewayLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "smsgate_gateway_latency_seconds",
			Help:    "Gateway round-trip latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	MessagesStored = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smsgate_messages_stored_total",
			Help: "Messages persisted to the store",
		},
	)

	StoreFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsgate_store_failures_total",
			Help: "Persistence failures, by step",
		},
		[]string{"step"},
	)

	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsgate_notifications_total",
			Help: "Notification attempts, by result",
		},
		[]string{"result"},
	)

	UnreadConversations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "smsgate_unread_conversations",
			Help: "Conversations with unread messages",
		},
	)

	InFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "smsgate_events_in_flight",
			Help: "Events currently being processed",
		},
	)

	StreamClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "smsgate_stream_clients",
			Help: "Connected event stream clients",
		},
	)

	PipelineDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "smsgate_pipeline_duration_seconds",
			Help:    "Time from dequeue to terminal state",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		EventsReceived,
		EventsDropped,
		QueueOverflows,
		GatewayForwards,
		GatewayLatency,
		MessagesStored,
		StoreFailures,
		Notifications,
		UnreadConversations,
		InFlight,
		StreamClients,
		PipelineDuration,
	)
}

// Handler renders Registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
