package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/l3aro/codeflow/pkg/flowchart"
)

// metrics holds the collectors of one Server. Each Server has its own
// registry so several can coexist in one process.
type metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	conversions     *prometheus.CounterVec
	graphNodes      prometheus.Histogram
}

func newMetrics(conv *flowchart.Converter) *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codeflow_http_requests_total",
				Help: "Total number of HTTP requests received.",
			},
			[]string{"handler", "method", "code"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "codeflow_http_request_duration_seconds",
				Help:    "Duration of HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"handler", "method"},
		),
		conversions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codeflow_conversions_total",
				Help: "Conversions by output format and outcome.",
			},
			[]string{"format", "outcome"},
		),
		graphNodes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "codeflow_graph_nodes",
			Help:    "Number of nodes per converted graph.",
			Buckets: prometheus.ExponentialBuckets(2, 2, 10),
		}),
	}

	cacheEntries := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "codeflow_cache_entries",
			Help: "Entries in the result cache.",
		},
		func() float64 { return float64(conv.CacheStats().Length) },
	)
	cacheHits := prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "codeflow_cache_hits_total",
			Help: "Result cache hits.",
		},
		func() float64 { return float64(conv.CacheStats().HitCount) },
	)

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.conversions,
		m.graphNodes,
		cacheEntries,
		cacheHits,
		collectors.NewGoCollector(),
	)
	return m
}

// wrap applies tracing and request metrics to next.
func (m *metrics) wrap(name string, next http.Handler) http.Handler {
	h := otelhttp.NewHandler(next, name)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(rw, r)
		m.requestsTotal.WithLabelValues(name, r.Method, fmt.Sprintf("%d", rw.status)).Inc()
		m.requestDuration.WithLabelValues(name, r.Method).Observe(time.Since(start).Seconds())
	})
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
