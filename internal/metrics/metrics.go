package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var durationBuckets = []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 5000}

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roaddb_requests_total",
		Help: "Total API requests by route",
	}, []string{"route"})
	RequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roaddb_request_duration_ms",
		Help:    "API request duration in milliseconds",
		Buckets: durationBuckets,
	}, []string{"route"})
	QueriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roaddb_store_queries_total",
		Help: "Store round trips by executor path (spatial, tabular, distinct)",
	}, []string{"path"})
	QueryErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roaddb_store_query_errors_total",
		Help: "Failed store round trips by executor path",
	}, []string{"path"})
	QueryDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roaddb_store_query_duration_ms",
		Help:    "Store query duration in milliseconds",
		Buckets: durationBuckets,
	}, []string{"path"})
	PoolExhaustedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roaddb_store_pool_exhausted_total",
		Help: "Queries rejected after waiting for a pool slot",
	})
	CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roaddb_cache_hits_total",
		Help: "Result cache hits by tier (memory, redis)",
	}, []string{"tier"})
	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roaddb_cache_misses_total",
		Help: "Result cache misses that reached the store",
	})
	CacheSharedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roaddb_cache_shared_total",
		Help: "Callers that awaited an in-flight computation instead of querying",
	})
	CompileErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roaddb_compile_errors_total",
		Help: "Predicate compile failures by kind (invalid_input, no_filter, data_unavailable)",
	}, []string{"kind"})
	WarmRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roaddb_warm_runs_total",
		Help: "Cache warm-up runs by status",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(QueriesTotal)
	prometheus.MustRegister(QueryErrorsTotal)
	prometheus.MustRegister(QueryDurationMs)
	prometheus.MustRegister(PoolExhaustedTotal)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(CacheSharedTotal)
	prometheus.MustRegister(CompileErrorsTotal)
	prometheus.MustRegister(WarmRunsTotal)
}

// 文档注释：返回 Prometheus 指标监听器
// 背景：统一暴露注册指标到 /metrics 路径，供 Prometheus 抓取；在主入口挂载。
func Handler() http.Handler { return promhttp.Handler() }
