// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GenerationsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bid_generations_completed_total",
			Help: "Total number of bid generations completed",
		},
		[]string{"backend"},
	)

	GenerationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bid_generations_failed_total",
			Help: "Total number of bid generations failed",
		},
		[]string{"backend", "error_code"},
	)

	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bid_generation_duration_seconds",
			Help:    "Duration of bid generation in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"backend"},
	)

	TokensConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_consumed_total",
			Help: "Total LLM tokens consumed per backend and direction",
		},
		[]string{"backend", "direction"},
	)

	GenerationCost = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_generation_cost_usd_total",
			Help: "Accumulated generation cost in USD per backend",
		},
		[]string{"backend"},
	)

	CacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "context_cache_operations_total",
			Help: "Cache operations by result (hit, miss, error)",
		},
		[]string{"operation", "result"},
	)

	RetrievalSourceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retrieval_source_failures_total",
			Help: "Retrieval source failures substituted with empty results",
		},
		[]string{"source"},
	)

	RetrievalFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "retrieval_document_fallbacks_total",
			Help: "Times hybrid search returned nothing and raw documents were used",
		},
	)
)
