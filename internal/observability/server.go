package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aletheiafact/ai-task-worker/internal/domain"
)

// HealthProvider supplies the health payload's rate_limiting section.
type HealthProvider interface {
	Usage(ctx domain.Context) (map[domain.RateLimitPeriod]domain.TierUsage, error)
}

// Server exposes /health, /ready, and /metrics (spec §6).
type Server struct {
	httpServer *http.Server
	serviceName string
}

// NewServer builds the exposed HTTP server. ready reports whether the
// worker has completed startup and is accepting scheduler ticks.
func NewServer(addr, serviceName string, reg *prometheus.Registry, m *Metrics, ready func() bool, limiter HealthProvider) *Server {
	r := chi.NewRouter()
	r.Use(m.HTTPMetricsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		body := map[string]any{
			"status":  "healthy",
			"service": serviceName,
		}
		if limiter != nil {
			if usage, err := limiter.Usage(req.Context()); err == nil {
				body["rate_limiting"] = usage
			}
		}
		writeJSON(w, http.StatusOK, body)
	})

	r.Get("/ready", func(w http.ResponseWriter, _ *http.Request) {
		if ready != nil && !ready() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not-ready"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &Server{
		serviceName: serviceName,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start runs the server in the background; errors are sent on the
// returned channel (nil on clean shutdown).
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("observability server: %w", err)
			return
		}
		errCh <- nil
	}()
	return errCh
}

// Stop gracefully shuts the server down; registered as a shutdown
// coordinator cleanup callback.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
