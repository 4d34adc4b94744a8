package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/correlator-io/alertmon/internal/alerts"
	"github.com/correlator-io/alertmon/internal/api/middleware"
	"github.com/correlator-io/alertmon/internal/filters"
	"github.com/correlator-io/alertmon/internal/monitor"
	"github.com/correlator-io/alertmon/internal/results"
)

type fakeMonitor struct {
	lastRequest monitor.Request
	alertsErr   error
	reportErr   error
	readyErr    error
}

func (f *fakeMonitor) Alerts(_ context.Context, req monitor.Request) (*monitor.AlertsResult, error) {
	f.lastRequest = req
	if f.alertsErr != nil {
		return nil, f.alertsErr
	}

	return &monitor.AlertsResult{
		DaysBack: 7,
		Fetched:  2,
		Matched:  1,
		Alerts:   []alerts.Alert{{ID: "a1", AlertClassID: "class-orders", Type: alerts.TypeModel}},
		Skipped:  []string{},
		DryRun:   req.DryRun,
	}, nil
}

func (f *fakeMonitor) Report(_ context.Context, req monitor.Request) (*monitor.Report, error) {
	f.lastRequest = req
	if f.reportErr != nil {
		return nil, f.reportErr
	}

	return &monitor.Report{
		Selector:     req.Selector,
		InvocationID: "inv-2",
		DaysBack:     7,
		GeneratedAt:  time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC),
	}, nil
}

func (f *fakeMonitor) Ready(_ context.Context) error {
	return f.readyErr
}

func testServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            8080,
		Host:            "127.0.0.1",
		ReadTimeout:     time.Second,
		WriteTimeout:    5 * time.Second,
		ShutdownTimeout: time.Second,
		RequestTimeout:  time.Second,
		LogLevel:        slog.LevelInfo,
		Version:         "v0.1.0",
	}
}

func newTestServer(mon Monitor, limiter middleware.RateLimiter) *Server {
	return NewServer(testServerConfig(), mon, limiter, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func serve(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, nil))

	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) ProblemDetail {
	t.Helper()

	assert.Equal(t, contentTypeProblemJSON, rec.Header().Get("Content-Type"))

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))

	return problem
}

func TestProbes(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	mon := &fakeMonitor{}
	s := newTestServer(mon, nil)

	rec := serve(t, s, http.MethodGet, "/ping")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
	assert.Equal(t, "v0.1.0", rec.Header().Get(headerVersion))

	rec = serve(t, s, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", rec.Body.String())

	rec = serve(t, s, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "alertmon", health.ServiceName)

	mon.readyErr = errors.New("connection refused")
	rec = serve(t, s, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "warehouse unavailable", decodeProblem(t, rec).Detail)
}

func TestGetAlerts(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	mon := &fakeMonitor{}
	s := newTestServer(mon, nil)

	rec := serve(t, s, http.MethodGet, "/api/v1/alerts?filter=tags:finance&filter=statuses:fail&exclude=owners:dana&days_back=3")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []string{"tags:finance", "statuses:fail"}, mon.lastRequest.Filters)
	assert.Equal(t, []string{"owners:dana"}, mon.lastRequest.Excludes)
	assert.Equal(t, 3, mon.lastRequest.DaysBack)
	assert.True(t, mon.lastRequest.DryRun, "GET never publishes")

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.InDelta(t, 2, body["fetched"], 0)
	assert.Equal(t, true, body["dry_run"])
	assert.Equal(t, rec.Header().Get(middleware.HeaderCorrelationID), body["correlation_id"])
	assert.Len(t, body["alerts"], 1)
}

func TestDispatchAlerts(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	mon := &fakeMonitor{}
	s := newTestServer(mon, nil)

	rec := serve(t, s, http.MethodPost, "/api/v1/alerts/dispatch?select=tag:finance")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, mon.lastRequest.DryRun)
	assert.Equal(t, "tag:finance", mon.lastRequest.Selector)

	rec = serve(t, s, http.MethodGet, "/api/v1/alerts/dispatch")
	assert.Equal(t, http.StatusNotFound, rec.Code, "dispatch only answers POST")
}

func TestGetReport(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	mon := &fakeMonitor{}
	s := newTestServer(mon, nil)

	rec := serve(t, s, http.MethodGet, "/api/v1/report?select=last_invocation")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "last_invocation", body["selector"])
	assert.Equal(t, "inv-2", body["invocation_id"])
	assert.Equal(t, "2026-10-16T12:00:00Z", body["generated_at"])
}

func TestMonitorErrors(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name   string
		err    error
		target string
		status int
	}{
		{
			name:   "alert selector on report",
			err:    fmt.Errorf("%w: last_invocation", filters.ErrInvalidSelector),
			target: "/api/v1/alerts?select=last_invocation",
			status: http.StatusBadRequest,
		},
		{
			name:   "conflicting filters",
			err:    monitor.ErrConflictingFilters,
			target: "/api/v1/alerts",
			status: http.StatusBadRequest,
		},
		{
			name:   "days back out of range",
			err:    monitor.ErrInvalidDaysBack,
			target: "/api/v1/alerts",
			status: http.StatusBadRequest,
		},
		{
			name:   "warehouse timeout",
			err:    context.DeadlineExceeded,
			target: "/api/v1/alerts",
			status: http.StatusGatewayTimeout,
		},
		{
			name:   "unexpected failure",
			err:    errors.New("driver: bad connection"),
			target: "/api/v1/alerts",
			status: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&fakeMonitor{alertsErr: tt.err}, nil)

			rec := serve(t, s, http.MethodGet, tt.target)
			require.Equal(t, tt.status, rec.Code)

			problem := decodeProblem(t, rec)
			assert.Equal(t, tt.status, problem.Status)
			assert.Equal(t, "/api/v1/alerts", problem.Instance)
			assert.NotContains(t, problem.Detail, "driver:")
		})
	}

	s := newTestServer(&fakeMonitor{reportErr: fmt.Errorf("%w: id 'x'", results.ErrInvocationNotFound)}, nil)
	rec := serve(t, s, http.MethodGet, "/api/v1/report?select=invocation_id:x")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvalidDaysBack(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	s := newTestServer(&fakeMonitor{}, nil)

	for _, target := range []string{"/api/v1/alerts?days_back=abc", "/api/v1/report?days_back=-2"} {
		rec := serve(t, s, http.MethodGet, target)
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Contains(t, decodeProblem(t, rec).Detail, "days_back")
	}
}

func TestNotFound(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	rec := serve(t, newTestServer(&fakeMonitor{}, nil), http.MethodGet, "/api/v1/incidents")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "https://correlator.io/problems/404", decodeProblem(t, rec).Type)
}

func TestRateLimitSkipsProbes(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	limiter := middleware.NewInMemoryRateLimiter(&middleware.Config{GlobalRPS: 100, ClientRPS: 1, ClientBurst: 1})
	t.Cleanup(func() { _ = limiter.Close() })

	s := newTestServer(&fakeMonitor{}, limiter)

	assert.Equal(t, http.StatusOK, serve(t, s, http.MethodGet, "/api/v1/alerts").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(t, s, http.MethodGet, "/api/v1/alerts").Code)

	for range 3 {
		assert.Equal(t, http.StatusOK, serve(t, s, http.MethodGet, "/ping").Code)
	}
}
