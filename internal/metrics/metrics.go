// Package metrics defines the Prometheus instrumentation for the hazard
// engine. Collectors register themselves on the default registry; the api
// layer exposes them on GET /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReportsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hazard_reports_ingested_total",
		Help: "Reports accepted at the ingestion endpoints, by source.",
	}, []string{"source"})

	ReportsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hazard_reports_processed_total",
		Help: "Reports that completed the full pipeline pass.",
	})

	ProcessingFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hazard_processing_failures_total",
		Help: "Pipeline passes that rolled back and were left for the sweeper.",
	})

	EmergencyReports = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hazard_emergency_reports_total",
		Help: "SOS beacons handled by the emergency fast path.",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hazard_pipeline_queue_depth",
		Help: "Jobs currently waiting in the pipeline channel.",
	})

	SweepBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hazard_sweep_backlog",
		Help: "Unprocessed reports found by the most recent sweep.",
	})

	FuseDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hazard_fuse_duration_seconds",
		Help:    "Wall time of one pipeline pass over a report.",
		Buckets: prometheus.DefBuckets,
	})

	StreamSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hazard_stream_subscribers",
		Help: "Currently connected stream subscribers (SSE and WebSocket).",
	})

	FramesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hazard_frames_published_total",
		Help: "Frames queued for fan-out, by topic.",
	}, []string{"topic"})

	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hazard_frames_dropped_total",
		Help: "Frames lost to hub overflow or slow subscribers, by reason.",
	}, []string{"reason"})

	AlertsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hazard_alerts_emitted_total",
		Help: "Alerts raised by the alert manager, by hazard kind.",
	}, []string{"kind"})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hazard_ingest_rate_limited_total",
		Help: "Ingestion requests rejected by the per-IP rate limiter.",
	})
)
