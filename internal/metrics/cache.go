package metrics

import "github.com/prometheus/client_golang/prometheus"

// Cache Prometheus metrics, labelled by cache name (embedding, response).
var (
	CacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Cache lookups by result: memory_hit, persistent_hit, miss",
		},
		[]string{"cache", "result"},
	)

	CacheEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Entries removed by reason: capacity, expired, corrupt",
		},
		[]string{"cache", "reason"},
	)

	CacheStorageErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_storage_errors_total",
			Help:      "Persistent tier failures, logged and ignored",
		},
		[]string{"cache", "op"},
	)

	CacheEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_memory_entries",
			Help:      "Entries held in the memory tier",
		},
		[]string{"cache"},
	)
)

var cacheMetricsRegistered bool

// RegisterCacheMetrics registers Prometheus cache metrics. Must be called once from main.
func RegisterCacheMetrics() {
	if cacheMetricsRegistered {
		return
	}
	prometheus.MustRegister(CacheRequestsTotal)
	prometheus.MustRegister(CacheEvictionsTotal)
	prometheus.MustRegister(CacheStorageErrorsTotal)
	prometheus.MustRegister(CacheEntries)
	cacheMetricsRegistered = true
}
