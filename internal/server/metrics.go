package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "swapgate",
		Name:      "http_requests_total",
		Help:      "Count of handled HTTP requests.",
	}, []string{"path", "method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "swapgate",
		Name:      "http_request_duration_seconds",
		Help:      "Latency of handled HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"path", "method"})

	quotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "swapgate",
		Name:      "quotes_total",
		Help:      "Count of quote requests by outcome.",
	}, []string{"outcome"})

	executionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "swapgate",
		Name:      "executions_total",
		Help:      "Count of swap executions by outcome.",
	}, []string{"outcome"})
)

// metricsMiddleware records request counts and latency per route pattern.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		requestsTotal.WithLabelValues(path, r.Method, strconv.Itoa(ww.Status())).Inc()
		requestDuration.WithLabelValues(path, r.Method).Observe(time.Since(start).Seconds())
	})
}
