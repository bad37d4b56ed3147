package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds the store ping behind /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	if s.metrics != nil {
		r.Use(s.metrics.Instrument)
	}
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Prometheus exposition
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Group(func(r chi.Router) {
			r.Use(s.rateLimitMiddleware)
			r.Post("/gateway", s.handleGateway)
		})
	})

	return r
}

// handleHealth reports whether the store answers. Optional integrations
// are listed but do not affect the status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := http.StatusOK
	components := map[string]string{"store": "ok"}
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("health check: store unreachable", "error", err)
		components["store"] = "unavailable"
		status = http.StatusServiceUnavailable
	}
	if s.mqtt != nil {
		components["mqtt"] = connectionState(s.mqtt)
	}
	if s.influx != nil {
		components["influxdb"] = connectionState(s.influx)
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":     overall,
		"version":    s.version,
		"components": components,
	})
}

func connectionState(c ConnectionStatus) string {
	if c.IsConnected() {
		return "connected"
	}
	return "disconnected"
}
