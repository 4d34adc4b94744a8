package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/correlator-io/alertmon/internal/api/middleware"
)

const (
	healthCheckTimeout     = 2 * time.Second
	contentTypeProblemJSON = "application/problem+json"
	headerVersion          = "X-Alertmon-Version"
)

// probePaths bypass rate limiting.
var probePaths = []string{"/ping", "/ready", "/health"}

// HealthStatus represents the health check response structure.
type HealthStatus struct {
	Status      string `json:"status"`
	ServiceName string `json:"serviceName"`
	Version     string `json:"version"`
	Uptime      string `json:"uptime,omitempty"`
}

func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ping", s.handlePing)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /api/v1/alerts", s.handleGetAlerts)
	mux.HandleFunc("POST /api/v1/alerts/dispatch", s.handleDispatchAlerts)
	mux.HandleFunc("GET /api/v1/report", s.handleGetReport)

	mux.HandleFunc("/", s.handleNotFound)
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set(headerVersion, s.config.Version)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("pong"))
}

// handleReady answers 503 while the warehouse does not respond to a ping.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := s.monitor.Ready(ctx); err != nil {
		s.logger.Error("Warehouse health check failed",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("error", err.Error()),
		)

		WriteErrorResponse(w, r, s.logger, ServiceUnavailable("warehouse unavailable"))

		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(headerVersion, s.config.Version)

	s.writeJSON(w, r, http.StatusOK, HealthStatus{
		Status:      "healthy",
		ServiceName: "alertmon",
		Version:     s.config.Version,
		Uptime:      time.Since(s.startTime).Round(time.Second).String(),
	})
}

// handleNotFound returns RFC 7807 compliant 404 responses for unknown endpoints.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, r, s.logger, NotFound("The requested resource was not found"))
}

// writeJSON marshals before writing headers so encoding failures still produce a problem response.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		s.logger.Error("Failed to encode response",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to encode response"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if _, err := w.Write(data); err != nil {
		s.logger.Error("Failed to write response",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("error", err.Error()),
		)
	}
}
