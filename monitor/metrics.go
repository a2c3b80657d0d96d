// Package monitor exposes the service's Prometheus instrumentation.
package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediadex_search_duration_seconds",
			Help:    "Duration of search requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"}, // "cache", "store"
	)

	SearchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediadex_searches_total",
			Help: "Total number of search requests",
		},
		[]string{"outcome"}, // "ok", "denied", "rate_limited", "error"
	)

	SendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediadex_sends_total",
			Help: "Total number of file delivery attempts",
		},
		[]string{"kind", "outcome"}, // kind: "single", "bulk", "range"
	)

	QuotaDenied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediadex_quota_denials_total",
			Help: "Total number of retrievals denied by the daily quota",
		},
	)

	IngestProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediadex_ingest_messages_total",
			Help: "Total ingested messages by classification",
		},
		[]string{"result"}, // "indexed", "duplicate", "error", "deleted", "no_media", "unsupported"
	)

	IngestQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediadex_ingest_queue_depth",
			Help: "Current depth of the primary ingestion queue",
		},
	)

	IngestOverflowDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediadex_ingest_overflow_depth",
			Help: "Current depth of the ingestion overflow buffer",
		},
	)

	IngestDropped = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediadex_ingest_dropped_total",
			Help: "Messages dropped because both ingestion buffers were full",
		},
	)

	BroadcastTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediadex_broadcast_deliveries_total",
			Help: "Total broadcast deliveries by classification",
		},
		[]string{"result"}, // "sent", "blocked", "deleted", "failed"
	)

	DeletionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediadex_deletions_total",
			Help: "Total index deletions by outcome",
		},
		[]string{"result"}, // "deleted", "missing", "error"
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mediadex_breaker_open",
			Help: "Whether the platform circuit for an endpoint is open (1) or closed (0)",
		},
		[]string{"endpoint"},
	)

	FloodWaits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediadex_flood_waits_total",
			Help: "Total flood-wait responses honored by the platform caller",
		},
	)
)

// ObserveSearch records one search request's latency and outcome.
func ObserveSearch(start time.Time, source, outcome string) {
	SearchDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	SearchTotal.WithLabelValues(outcome).Inc()
}

// SetQueueGauges refreshes the ingestion queue gauges.
func SetQueueGauges(primary, overflow, dropped int) {
	IngestQueueDepth.Set(float64(primary))
	IngestOverflowDepth.Set(float64(overflow))
	IngestDropped.Set(float64(dropped))
}
