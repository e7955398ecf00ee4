package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Webhook ingestion metrics
	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otprelay_webhooks_total",
			Help: "Total number of webhook pushes received",
		},
		[]string{"status"},
	)

	// Extraction pipeline metrics
	ExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otprelay_extractions_total",
			Help: "Total number of extraction attempts by stage and outcome",
		},
		[]string{"stage", "outcome"},
	)

	ExtractionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "otprelay_extraction_duration_seconds",
			Help:    "Duration of the full extraction pipeline in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Registry metrics
	CodesStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otprelay_codes_stored_total",
			Help: "Total number of verification codes stored",
		},
		[]string{"platform"},
	)

	CodesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otprelay_codes_consumed_total",
			Help: "Total number of verification codes consumed by pollers",
		},
		[]string{"platform"},
	)

	CodesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "otprelay_codes_active",
			Help: "Number of unused, unexpired codes currently held",
		},
	)

	CodesSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "otprelay_codes_swept_total",
			Help: "Total number of expired codes removed by the sweep",
		},
	)

	LookupMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "otprelay_lookup_misses_total",
			Help: "Total number of code lookups that matched no record",
		},
	)

	// Rate limiting metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otprelay_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"key"},
	)
)
