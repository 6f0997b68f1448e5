package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PapersProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paperbot_papers_processed_total",
		Help: "The total number of documents run through the pipeline",
	}, []string{"status"})

	PipelineStageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paperbot_pipeline_stage_failures_total",
		Help: "Degraded or fatal pipeline stages by stage name",
	}, []string{"stage"})

	LLMRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paperbot_llm_retries_total",
		Help: "Transient completion failures that triggered a retry",
	}, []string{"model"})

	LLMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paperbot_llm_request_duration_seconds",
		Help:    "Duration of completion requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	MetadataLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paperbot_metadata_lookups_total",
		Help: "Registry lookups by source and result",
	}, []string{"source", "result"})

	ScanItemsSeen = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paperbot_scan_items_seen_total",
		Help: "Channel items inspected during scans",
	}, []string{"channel", "kind"})

	ScanErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paperbot_scan_errors_total",
		Help: "Channel-scoped scan failures by classification",
	}, []string{"channel", "kind"})

	ScanFloodWaitSeconds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paperbot_scan_flood_wait_seconds_total",
		Help: "Total time in seconds spent waiting for Telegram flood control",
	}, []string{"channel"})

	ScanCursor = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "paperbot_scan_cursor",
		Help: "Last committed message id per channel",
	}, []string{"channel"})

	IndexUpserts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paperbot_index_upserts_total",
		Help: "Semantic index writes by result",
	}, []string{"status"})

	CatalogPapers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "paperbot_catalog_papers",
		Help: "Papers currently in the catalog",
	})

	CatalogProcessed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "paperbot_catalog_processed",
		Help: "Fully analyzed papers currently in the catalog",
	})
)
