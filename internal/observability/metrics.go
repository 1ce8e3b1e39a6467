package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every counter, histogram, and gauge named in §4.9. A
// single instance is constructed once in cmd/worker and threaded through
// every component that reports to it.
type Metrics struct {
	TasksProcessed       *prometheus.CounterVec
	APIRequests          *prometheus.CounterVec
	ModelRequests        *prometheus.CounterVec
	ModelTokens          *prometheus.CounterVec
	RateLimitExceeded    *prometheus.CounterVec
	TaskProcessingTime   *prometheus.HistogramVec
	APIRequestDuration    *prometheus.HistogramVec
	RateLimitCheckTime   prometheus.Histogram
	TasksInFlight        prometheus.Gauge
	CircuitBreakerState  *prometheus.GaugeVec
	RateLimitCurrent     *prometheus.GaugeVec
	RateLimitMax         *prometheus.GaugeVec
	RateLimitRemaining   *prometheus.GaugeVec
}

// NewMetrics constructs and registers every metric against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TasksProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ai_task_worker_tasks_processed_total",
			Help: "Tasks processed, by kind and outcome status.",
		}, []string{"kind", "status"}),
		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ai_task_worker_api_requests_total",
			Help: "Control-plane HTTP requests and served /health, /ready, /metrics requests, by endpoint, method, and status code.",
		}, []string{"endpoint", "method", "status_code"}),
		ModelRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ai_task_worker_model_requests_total",
			Help: "Language-model requests, by provider, model, and outcome.",
		}, []string{"provider", "model", "status"}),
		ModelTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ai_task_worker_model_tokens_total",
			Help: "Tokens consumed, by provider, model, and token kind (prompt/completion).",
		}, []string{"provider", "model", "kind"}),
		RateLimitExceeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ai_task_worker_rate_limit_exceeded_total",
			Help: "Rate limit denials, by tier.",
		}, []string{"period"}),
		TaskProcessingTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ai_task_worker_task_processing_duration_seconds",
			Help:    "Per-task processing duration, by kind.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		APIRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ai_task_worker_api_request_duration_seconds",
			Help:    "Control-plane and served-endpoint request duration, by endpoint and method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint", "method"}),
		RateLimitCheckTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ai_task_worker_rate_limit_check_duration_seconds",
			Help:    "Duration of a single rate-limiter admission check.",
			Buckets: prometheus.DefBuckets,
		}),
		TasksInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ai_task_worker_tasks_in_flight",
			Help: "Per-task workers currently running under the scheduler's semaphore.",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ai_task_worker_circuit_breaker_state",
			Help: "Circuit breaker state by upstream host (0=closed, 1=open, 2=half-open).",
		}, []string{"service"}),
		RateLimitCurrent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ai_task_worker_rate_limit_current",
			Help: "Current usage count, by tier.",
		}, []string{"period"}),
		RateLimitMax: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ai_task_worker_rate_limit_max",
			Help: "Configured limit, by tier.",
		}, []string{"period"}),
		RateLimitRemaining: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ai_task_worker_rate_limit_remaining",
			Help: "Remaining budget, by tier.",
		}, []string{"period"}),
	}

	reg.MustRegister(
		m.TasksProcessed, m.APIRequests, m.ModelRequests, m.ModelTokens, m.RateLimitExceeded,
		m.TaskProcessingTime, m.APIRequestDuration, m.RateLimitCheckTime,
		m.TasksInFlight, m.CircuitBreakerState,
		m.RateLimitCurrent, m.RateLimitMax, m.RateLimitRemaining,
	)
	return m
}

// HTTPMetricsMiddleware records APIRequests/APIRequestDuration for the
// served /health, /ready, /metrics endpoints using the chi route pattern
// as the endpoint label.
func (m *Metrics) HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		status := statusBucket(ww.Status())
		m.APIRequests.WithLabelValues(route, r.Method, status).Inc()
		m.APIRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

func statusBucket(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
