package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "taxi", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "taxi",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	TopZonesCache = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "taxi", Name: "top_zones_cache_total", Help: "Top zones cache lookups by result"},
		[]string{"result"},
	)

	// Client side (dashboard -> trip API).
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "taxi_dashboard", Name: "api_requests_total", Help: "Requests issued to the trip API"},
		[]string{"endpoint", "outcome"},
	)
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "taxi_dashboard",
			Name:      "api_request_duration_seconds",
			Help:      "Trip API request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
	StaleResponses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taxi_dashboard",
		Name:      "stale_responses_total",
		Help:      "Trip list responses discarded because a newer request was issued",
	})
	WSClients = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "taxi_dashboard", Name: "ws_clients", Help: "Connected live-update clients"})

	// Ingestion.
	IngestConsumed = promauto.NewCounter(prometheus.CounterOpts{Namespace: "taxi_ingest", Name: "messages_consumed_total", Help: "Total trip messages consumed"})
	IngestInvalid  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "taxi_ingest", Name: "messages_invalid_total", Help: "Total invalid trip messages received"})
	IngestSaved    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "taxi_ingest", Name: "trips_saved_total", Help: "Total trips persisted"})
	IngestErrors   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "taxi_ingest", Name: "store_errors_total", Help: "Total trips that could not be persisted"})
	TripsPublished = promauto.NewCounter(prometheus.CounterOpts{Namespace: "taxi_ingest", Name: "trips_published_total", Help: "Total trips published to kafka"})
)
