package api

import (
	"context"
	"net/http"

	"github.com/correlator-io/alertmon/internal/api/middleware"
	"github.com/correlator-io/alertmon/internal/monitor"
)

// ReportResponse is returned by GET /api/v1/report.
type ReportResponse struct {
	*monitor.Report

	CorrelationID string `json:"correlation_id"` //nolint:tagliatelle
}

// handleGetReport handles GET /api/v1/report.
//
// Query parameters:
//   - select: free-text selector, including last_invocation, invocation_id:<id>
//     and invocation_time:<iso8601>
//   - filter, exclude: CLI clauses narrowing the reported tests
//   - days_back: 1-365, defaults to the report setting
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	req, err := parseMonitorRequest(r)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	report, err := s.monitor.Report(ctx, req)
	if err != nil {
		s.logMonitorError(r, "Report request failed", err)
		WriteErrorResponse(w, r, s.logger, problemForError(err))

		return
	}

	s.writeJSON(w, r, http.StatusOK, ReportResponse{
		Report:        report,
		CorrelationID: middleware.GetCorrelationID(r.Context()),
	})
}
