// Package metrics exposes Prometheus instruments for uploads, model calls and
// HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sheetsmith"

var (
	uploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Uploads processed, by outcome.",
		},
		[]string{"outcome"},
	)
	uploadDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_duration_seconds",
			Help:      "End-to-end upload latency, model calls included.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
	)
	rowsAppendedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_appended_total",
			Help:      "Rows inserted into warehouse tables.",
		},
	)
	tablesCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tables_created_total",
			Help:      "Warehouse tables provisioned from model-generated DDL.",
		},
	)
	llmCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "Model calls by persona and result (ok or error type).",
		},
		[]string{"persona", "result"},
	)
	llmCallDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_call_duration_seconds",
			Help:      "Model call latency by persona.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		},
		[]string{"persona"},
	)
	historyEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_evictions_total",
			Help:      "Conversation messages evicted to fit the context window.",
		},
	)
	staleDescriptors = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stale_descriptors",
			Help:      "Table descriptors whose table is missing from the live schema at the last reconcile.",
		},
	)
	sessionsSweptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_swept_total",
			Help:      "Idle chat sessions dropped from memory.",
		},
	)
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func init() {
	prometheus.MustRegister(
		uploadsTotal,
		uploadDurationSeconds,
		rowsAppendedTotal,
		tablesCreatedTotal,
		llmCallsTotal,
		llmCallDurationSeconds,
		historyEvictionsTotal,
		staleDescriptors,
		sessionsSweptTotal,
		httpRequestsTotal,
		httpRequestDurationSeconds,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveUpload records one finished upload. outcome is "appended" on success
// or the failure kind.
func ObserveUpload(outcome string, created bool, rows int64, elapsed time.Duration) {
	uploadsTotal.WithLabelValues(outcome).Inc()
	uploadDurationSeconds.Observe(elapsed.Seconds())
	if created {
		tablesCreatedTotal.Inc()
	}
	if rows > 0 {
		rowsAppendedTotal.Add(float64(rows))
	}
}

// ObserveLLMCall records a model call. result is "ok" or an llm error type.
func ObserveLLMCall(persona, result string, elapsed time.Duration) {
	llmCallsTotal.WithLabelValues(persona, result).Inc()
	llmCallDurationSeconds.WithLabelValues(persona).Observe(elapsed.Seconds())
}

func AddEvictions(n int) {
	if n > 0 {
		historyEvictionsTotal.Add(float64(n))
	}
}

func SetStaleDescriptors(n int) {
	staleDescriptors.Set(float64(n))
}

func AddSessionsSwept(n int) {
	if n > 0 {
		sessionsSweptTotal.Add(float64(n))
	}
}

// ObserveHTTPRequest records a served request. route should be the mux
// pattern, never the raw path, to keep label cardinality bounded.
func ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
