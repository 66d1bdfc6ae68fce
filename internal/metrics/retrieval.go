package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval, indexing and edit Prometheus metrics.
var (
	QueryOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_outcomes_total",
			Help:      "Queries by terminal outcome: direct, rag_only, no_context, error",
		},
		[]string{"outcome"},
	)

	QueryFallbackSearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_fallback_searches_total",
			Help:      "Second-pass searches with the lower score threshold, by whether they were kept",
		},
		[]string{"kept"},
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "End-to-end query duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"outcome"},
	)

	IndexedFilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indexed_files_total",
			Help:      "Files processed by the indexer by status: ok, error, skipped",
		},
		[]string{"status"},
	)

	IndexedChunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indexed_chunks_total",
			Help:      "Chunks embedded and stored",
		},
	)

	IndexRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_run_duration_seconds",
			Help:      "Workspace index run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
	)

	VectorStoreDocuments = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vector_store_documents",
			Help:      "Documents held by the vector store",
		},
	)

	DiffHunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diff_hunks_applied_total",
			Help:      "Applied hunks by method: line_range, reconciled, fallback",
		},
		[]string{"method"},
	)
)

var retrievalMetricsRegistered bool

// RegisterRetrievalMetrics registers query, index and edit metrics. Must be called once from main.
func RegisterRetrievalMetrics() {
	if retrievalMetricsRegistered {
		return
	}
	prometheus.MustRegister(QueryOutcomesTotal)
	prometheus.MustRegister(QueryFallbackSearchesTotal)
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(IndexedFilesTotal)
	prometheus.MustRegister(IndexedChunksTotal)
	prometheus.MustRegister(IndexRunDuration)
	prometheus.MustRegister(VectorStoreDocuments)
	prometheus.MustRegister(DiffHunksTotal)
	retrievalMetricsRegistered = true
}
