package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iuriaranda/signalk-mqtt-bridge/internal/bridge"
)

// healthCheckTimeout bounds all component probes of one health request.
const healthCheckTimeout = 3 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/leases", s.handleLeases)
		r.Get("/commands", s.handleListCommands)
	})

	return r
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status     bridge.Status     `json:"status"`
	Reason     string            `json:"reason,omitempty"`
	SystemID   string            `json:"system_id"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components,omitempty"`
}

// handleHealth reports the bridge status. Anything other than connected
// answers 503 so supervisors can restart or alert on it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.bridge.Status()

	resp := HealthResponse{
		Status:   report.Status,
		Reason:   report.Reason,
		SystemID: report.SystemID,
		Version:  s.version,
	}

	if len(s.checks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		resp.Components = make(map[string]string, len(s.checks))
		for name, check := range s.checks {
			if err := check.HealthCheck(ctx); err != nil {
				resp.Components[name] = err.Error()
				continue
			}
			resp.Components[name] = "ok"
		}
	}

	status := http.StatusOK
	if report.Status != bridge.StatusConnected {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
