package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the optimization
// service. All recording methods are safe on a nil receiver so the
// server can run without instrumentation.
type Metrics struct {
	jobsTotal    *prometheus.CounterVec
	jobsRunning  prometheus.Gauge
	evaluations  prometheus.Counter
	runDuration  prometheus.Histogram
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewMetrics registers the service instruments with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in
// tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		jobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seqopt",
			Name:      "optimizations_total",
			Help:      "Optimization jobs by terminal status.",
		}, []string{"status"}),
		jobsRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "seqopt",
			Name:      "optimizations_running",
			Help:      "Optimization jobs currently running.",
		}),
		evaluations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "seqopt",
			Name:      "evaluations_total",
			Help:      "Objective evaluations appended by completed iterations.",
		}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "seqopt",
			Name:      "run_duration_seconds",
			Help:      "Wall time of optimization runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seqopt",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route, and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "seqopt",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) jobStarted() {
	if m == nil {
		return
	}
	m.jobsRunning.Inc()
}

func (m *Metrics) jobFinished(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.jobsRunning.Dec()
	m.jobsTotal.WithLabelValues(status).Inc()
	m.runDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) addEvaluations(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evaluations.Add(float64(n))
}

// Middleware instruments every request with count and latency, labeled
// by the chi route pattern rather than the raw path.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
