// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DocumentsLoaded counts documents by outcome: "loaded" or "skipped"
	DocumentsLoaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fastctx_documents_total",
		Help: "Documents read during ingestion by outcome",
	}, []string{"outcome"})

	// GraphDocuments counts extraction results: "extracted" or "failed"
	GraphDocuments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fastctx_graph_documents_total",
		Help: "Documents passed through graph extraction by outcome",
	}, []string{"outcome"})

	NodesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fastctx_nodes_written_total",
		Help: "Extracted nodes merged into the graph",
	})

	RelationshipsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fastctx_relationships_written_total",
		Help: "Extracted relationships merged into the graph",
	})

	ChunksIndexed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fastctx_chunks_indexed_total",
		Help: "Chunks embedded and stored",
	})

	// Runs counts finished runs by kind and final status
	Runs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fastctx_runs_total",
		Help: "Finished ingestion runs by kind and status",
	}, []string{"kind", "status"})

	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fastctx_run_duration_seconds",
		Help:    "Ingestion run duration",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
	}, []string{"kind"})

	// LLMCalls counts generator calls by purpose and result
	LLMCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fastctx_llm_calls_total",
		Help: "LLM calls by purpose and result",
	}, []string{"purpose", "result"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fastctx_cache_lookups_total",
		Help: "Cache lookups by kind and result",
	}, []string{"kind", "result"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fastctx_http_requests_total",
		Help: "HTTP requests by method and status code",
	}, []string{"method", "code"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fastctx_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
)

// Result maps an error to a "success"/"error" label
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// CacheResult maps a lookup outcome to a "hit"/"miss" label
func CacheResult(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

// Middleware records request counts and latency
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequests.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()
		HTTPDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
