package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/correlator-io/alertmon/internal/api/middleware"
	"github.com/correlator-io/alertmon/internal/filters"
	"github.com/correlator-io/alertmon/internal/monitor"
	"github.com/correlator-io/alertmon/internal/results"
	"github.com/correlator-io/alertmon/internal/selection"
)

// ProblemDetail represents an RFC 7807 Problem Details structure.
// See https://tools.ietf.org/html/rfc7807 for specification.
type ProblemDetail struct {
	Type          string `json:"type"`
	Title         string `json:"title"`
	Status        int    `json:"status"`
	Detail        string `json:"detail,omitempty"`
	Instance      string `json:"instance,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// NewProblemDetail creates a new RFC 7807 Problem Detail.
func NewProblemDetail(status int, title, detail string) *ProblemDetail {
	return &ProblemDetail{
		Type:   fmt.Sprintf("https://correlator.io/problems/%d", status),
		Title:  title,
		Status: status,
		Detail: detail,
	}
}

// WriteErrorResponse writes an RFC 7807 compliant error response.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, problem *ProblemDetail) {
	correlationID := middleware.GetCorrelationID(r.Context())

	if problem.CorrelationID == "" {
		problem.CorrelationID = correlationID
	}

	if problem.Instance == "" {
		problem.Instance = r.URL.Path
	}

	w.Header().Set("Content-Type", contentTypeProblemJSON)
	w.WriteHeader(problem.Status)

	if err := json.NewEncoder(w).Encode(problem); err != nil {
		logger.Error("Failed to encode error response",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.Any("encode_error", err),
			slog.Int("status", problem.Status),
		)
	}
}

// problemForError maps monitor errors to problems. Caller mistakes are 4xx, a
// missing invocation is 404, an unreachable warehouse is 504 and everything else is 500.
func problemForError(err error) *ProblemDetail {
	switch {
	case errors.Is(err, filters.ErrInvalidSelector),
		errors.Is(err, filters.ErrInvalidStatus),
		errors.Is(err, filters.ErrInvalidResourceType),
		errors.Is(err, filters.ErrInvalidInvocationTime),
		errors.Is(err, selection.ErrInvalidSelector),
		errors.Is(err, monitor.ErrConflictingFilters),
		errors.Is(err, monitor.ErrInvalidDaysBack):
		return BadRequest(err.Error())
	case errors.Is(err, results.ErrInvocationNotFound):
		return NotFound(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return NewProblemDetail(http.StatusGatewayTimeout, "Gateway Timeout", "The warehouse did not answer in time")
	default:
		return InternalServerError("The request could not be completed")
	}
}

// InternalServerError creates a 500 Internal Server Error problem.
func InternalServerError(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusInternalServerError, "Internal Server Error", detail)
}

// BadRequest creates a 400 Bad Request problem.
func BadRequest(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusBadRequest, "Bad Request", detail)
}

// NotFound creates a 404 Not Found problem.
func NotFound(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusNotFound, "Not Found", detail)
}

// ServiceUnavailable creates a 503 Service Unavailable problem.
func ServiceUnavailable(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusServiceUnavailable, "Service Unavailable", detail)
}
