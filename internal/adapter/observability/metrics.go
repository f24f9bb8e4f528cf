package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	WorkerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_requests_total",
			Help: "Total number of worker generate calls by worker and outcome",
		},
		[]string{"worker", "outcome"},
	)
	WorkerRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worker_request_duration_seconds",
			Help:    "Worker generate call duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"worker"},
	)

	RoutedQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routed_queries_total",
			Help: "Total routed queries by result kind",
		},
		[]string{"kind"},
	)
	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total response-cache hits",
		},
	)
	WorkersLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "workers_live",
			Help: "Number of workers currently passing health probes",
		},
	)

	TrainingJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "training_jobs_total",
			Help: "Training jobs by terminal stage",
		},
		[]string{"stage"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(WorkerRequestsTotal)
	prometheus.MustRegister(WorkerRequestDuration)
	prometheus.MustRegister(RoutedQueriesTotal)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(WorkersLive)
	prometheus.MustRegister(TrainingJobsTotal)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside the chi router.
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

// ObserveWorkerCall records one generate call against a worker.
func ObserveWorkerCall(worker, outcome string, duration time.Duration) {
	WorkerRequestsTotal.WithLabelValues(worker, outcome).Inc()
	WorkerRequestDuration.WithLabelValues(worker).Observe(duration.Seconds())
}

// ObserveRoute records the shape of one routed query.
func ObserveRoute(kind string, cached bool) {
	RoutedQueriesTotal.WithLabelValues(kind).Inc()
	if cached {
		CacheHitsTotal.Inc()
	}
}
