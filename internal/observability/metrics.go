package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	httpRequestsTotal      *prometheus.CounterVec
	httpLatencySeconds     *prometheus.HistogramVec
	httpErrorsTotal        *prometheus.CounterVec
	homeworkTransitions    *prometheus.CounterVec
	attributionEventsTotal *prometheus.CounterVec
	flowTriggersTotal      *prometheus.CounterVec
	catalogLookupsTotal    *prometheus.CounterVec
	ingestedEventsTotal    *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		homeworkTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "homework_transitions_total",
			Help: "Homework submission lifecycle transitions.",
		}, []string{"transition"})

		attributionEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attribution_events_total",
			Help: "Click and conversion events received, by outcome.",
		}, []string{"kind", "result"})

		flowTriggersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flow_triggers_total",
			Help: "Inbound automation flow triggers, by outcome.",
		}, []string{"result"})

		catalogLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "homework_catalog_lookups_total",
			Help: "Homework catalog lookups by cache result.",
		}, []string{"cache"})

		ingestedEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingested_events_total",
			Help: "Events consumed from the ingestion subject, by type and outcome.",
		}, []string{"type", "result"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			homeworkTransitions,
			attributionEventsTotal,
			flowTriggersTotal,
			catalogLookupsTotal,
			ingestedEventsTotal,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// HomeworkTransitions counts started, restarted, completed and cancelled submissions.
func HomeworkTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return homeworkTransitions
}

// AttributionEvents counts attribution events by kind and outcome.
func AttributionEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return attributionEventsTotal
}

// FlowTriggers counts inbound flow triggers by outcome.
func FlowTriggers() *prometheus.CounterVec {
	RegisterMetrics()
	return flowTriggersTotal
}

// CatalogLookups counts catalog cache hits and misses.
func CatalogLookups() *prometheus.CounterVec {
	RegisterMetrics()
	return catalogLookupsTotal
}

// IngestedEvents counts events consumed from the broker.
func IngestedEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return ingestedEventsTotal
}
