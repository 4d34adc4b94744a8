package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/correlator-io/alertmon/internal/api/middleware"
	"github.com/correlator-io/alertmon/internal/monitor"
)

type (
	// AlertsResponse is returned by GET /api/v1/alerts and POST /api/v1/alerts/dispatch.
	AlertsResponse struct {
		*monitor.AlertsResult

		CorrelationID string `json:"correlation_id"` //nolint:tagliatelle
		Timestamp     string `json:"timestamp"`
	}

	paramError struct {
		param string
		msg   string
	}
)

func (e *paramError) Error() string {
	return "Invalid parameter '" + e.param + "': " + e.msg
}

// handleGetAlerts handles GET /api/v1/alerts. It previews the alerts a monitor
// pass would send without publishing or changing their status.
//
// Query parameters:
//   - filter: repeatable CLI clause, e.g. "tags:finance" or "statuses:fail,warn"
//   - exclude: repeatable CLI clause applied as IS_NOT
//   - select: free-text selector, exclusive with filter and exclude
//   - days_back: 1-365, defaults to the monitor setting
func (s *Server) handleGetAlerts(w http.ResponseWriter, r *http.Request) {
	s.serveAlerts(w, r, true)
}

// handleDispatchAlerts handles POST /api/v1/alerts/dispatch: a full monitor pass
// that publishes the alerts and records their delivery status. It accepts the
// same query parameters as GET /api/v1/alerts.
func (s *Server) handleDispatchAlerts(w http.ResponseWriter, r *http.Request) {
	s.serveAlerts(w, r, false)
}

func (s *Server) serveAlerts(w http.ResponseWriter, r *http.Request, dryRun bool) {
	req, err := parseMonitorRequest(r)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	req.DryRun = dryRun

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	result, err := s.monitor.Alerts(ctx, req)
	if err != nil {
		s.logMonitorError(r, "Alerts request failed", err)
		WriteErrorResponse(w, r, s.logger, problemForError(err))

		return
	}

	s.writeJSON(w, r, http.StatusOK, AlertsResponse{
		AlertsResult:  result,
		CorrelationID: middleware.GetCorrelationID(r.Context()),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) logMonitorError(r *http.Request, msg string, err error) {
	s.logger.ErrorContext(r.Context(), msg,
		slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
		slog.String("query", r.URL.RawQuery),
		slog.String("error", err.Error()),
	)
}

func parseMonitorRequest(r *http.Request) (monitor.Request, error) {
	q := r.URL.Query()

	req := monitor.Request{
		Filters:  q["filter"],
		Excludes: q["exclude"],
		Selector: q.Get("select"),
	}

	if raw := q.Get("days_back"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days <= 0 {
			return monitor.Request{}, &paramError{param: "days_back", msg: "must be a positive integer"}
		}

		req.DaysBack = days
	}

	return req, nil
}
