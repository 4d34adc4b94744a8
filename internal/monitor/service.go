// Package monitor wires fetching, filter parsing, alert filtering, invocation
// aggregation and publishing into the alerts and report operations.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/correlator-io/alertmon/internal/alerts"
	"github.com/correlator-io/alertmon/internal/filters"
	"github.com/correlator-io/alertmon/internal/publish"
	"github.com/correlator-io/alertmon/internal/results"
	"github.com/correlator-io/alertmon/internal/storage"
)

var (
	// ErrConflictingFilters is returned when a request carries both a selector and filter clauses.
	ErrConflictingFilters = errors.New("selector cannot be combined with filter or exclude clauses")

	// ErrNoStore is returned when the service is created without a store.
	ErrNoStore = errors.New("monitor requires a results store")
)

type (
	// Store is the fetch layer the monitor reads from and writes delivery state to.
	Store interface {
		FetchTestResults(ctx context.Context, daysBack int) ([]map[string]any, error)
		FetchPendingAlerts(ctx context.Context, daysBack int) ([]map[string]any, error)
		LastSentTimes(ctx context.Context, daysBack int) (map[string]time.Time, error)
		MarkAlerts(ctx context.Context, ids []string, status string) (int64, error)
		HealthCheck(ctx context.Context) error
	}

	// Request carries the filter input of one alerts or report call.
	Request struct {
		Filters  []string
		Excludes []string
		Selector string
		// DaysBack falls back to the configured default when zero.
		DaysBack int
		// DryRun filters without publishing or updating alert statuses.
		DryRun bool
	}

	// AlertsResult describes one alerts pass.
	AlertsResult struct {
		Selector string          `json:"selector,omitempty"`
		DaysBack int             `json:"days_back"`
		Fetched  int             `json:"fetched"`
		Matched  int             `json:"matched"`
		Alerts   []alerts.Alert  `json:"alerts"`
		Skipped  []string        `json:"skipped"`
		Receipt  publish.Receipt `json:"receipt"`
		DryRun   bool            `json:"dry_run"`
	}

	// Report summarizes test results for a time window or a single invocation.
	Report struct {
		Selector       string                          `json:"selector,omitempty"`
		InvocationID   string                          `json:"invocation_id,omitempty"`
		DaysBack       int                             `json:"days_back"`
		GeneratedAt    time.Time                       `json:"generated_at"`
		TestResults    []results.TestResultRow         `json:"test_results"`
		Invocations    map[string]*results.Invocations `json:"invocations"`
		ModelTotals    map[string]*results.Totals      `json:"model_totals"`
		ModelRunTotals map[string]*results.Totals      `json:"model_runs_totals"`
		Runs           []results.RunSummary            `json:"runs"`
	}

	// Option configures a Service.
	Option func(*Service)

	// Service runs the alerts and report operations.
	Service struct {
		store     Store
		publisher publish.Publisher
		resolver  filters.NodeResolver
		cfg       *Config
		logger    *slog.Logger
		now       func() time.Time
	}
)

// WithResolver sets the selector resolver used for dbt selectors and graph operators.
func WithResolver(r filters.NodeResolver) Option {
	return func(s *Service) {
		s.resolver = r
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used for suppression and report timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a monitor. A nil publisher logs alerts; a nil config uses defaults.
func NewService(store Store, publisher publish.Publisher, cfg *Config, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, ErrNoStore
	}

	if cfg == nil {
		cfg = &Config{DaysBack: defaultDaysBack, ReportDaysBack: defaultReportDaysBack}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		store:  store,
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if publisher == nil {
		publisher = publish.NewLogPublisher(s.logger)
	}

	s.publisher = publisher

	return s, nil
}

// Ready checks the warehouse connection.
func (s *Service) Ready(ctx context.Context) error {
	return s.store.HealthCheck(ctx)
}

// FilterSet builds the filter set of a request from its selector or its CLI clauses.
func (s *Service) FilterSet(ctx context.Context, req Request) (*filters.FilterSet, error) {
	opts := []filters.ParseOption{filters.WithLogger(s.logger)}
	if s.resolver != nil {
		opts = append(opts, filters.WithNodeResolver(s.resolver))
	}

	if req.Selector != "" {
		if len(req.Filters) > 0 || len(req.Excludes) > 0 {
			return nil, ErrConflictingFilters
		}

		return filters.ParseSelector(ctx, req.Selector, opts...)
	}

	return filters.FromCLIParams(ctx, req.Filters, req.Excludes, opts...)
}

func (s *Service) daysBack(requested, fallback int) (int, error) {
	if requested == 0 {
		return fallback, nil
	}

	if err := validateDaysBack(requested); err != nil {
		return 0, err
	}

	return requested, nil
}

// Alerts fetches pending alerts, filters them, drops superseded and suppressed
// ones, publishes the rest and records their delivery status.
func (s *Service) Alerts(ctx context.Context, req Request) (*AlertsResult, error) {
	startTime := s.now()

	days, err := s.daysBack(req.DaysBack, s.cfg.DaysBack)
	if err != nil {
		return nil, err
	}

	fs, err := s.FilterSet(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := fs.ValidateAlertSelector(); err != nil {
		return nil, err
	}

	raw, err := s.store.FetchPendingAlerts(ctx, days)
	if err != nil {
		return nil, err
	}

	decoded := alerts.DecodeAlerts(raw, s.logger)
	matched := alerts.FilterAlerts(decoded, fs, s.logger)

	lastSent, err := s.store.LastSentTimes(ctx, days)
	if err != nil {
		return nil, err
	}

	policy := alerts.SuppressionPolicy{Default: s.cfg.SuppressionInterval, Override: s.cfg.OverrideSuppression}
	send, skip := alerts.SortAlerts(matched, lastSent, policy, s.now().UTC(), s.logger)

	result := &AlertsResult{
		Selector: fs.Selector,
		DaysBack: days,
		Fetched:  len(raw),
		Matched:  len(matched),
		Alerts:   send,
		Skipped:  alertIDs(skip),
		DryRun:   req.DryRun,
	}

	if req.DryRun {
		s.logger.Info("Dry run, alerts not published",
			slog.Int("fetched", result.Fetched),
			slog.Int("to_send", len(send)),
			slog.Int("to_skip", len(skip)))

		return result, nil
	}

	receipt, err := s.publisher.Publish(ctx, send)
	if err != nil {
		return nil, err
	}

	result.Receipt = receipt

	if len(skip) > 0 {
		if _, err := s.store.MarkAlerts(ctx, result.Skipped, storage.AlertStatusSkipped); err != nil {
			return nil, err
		}
	}

	if len(receipt.AlertIDs) > 0 {
		if _, err := s.store.MarkAlerts(ctx, receipt.AlertIDs, storage.AlertStatusSent); err != nil {
			return nil, fmt.Errorf("batch %s published but not recorded: %w", receipt.BatchID, err)
		}
	}

	s.logger.Info("Alerts pass completed",
		slog.String("batch_id", receipt.BatchID),
		slog.Int("fetched", result.Fetched),
		slog.Int("matched", result.Matched),
		slog.Int("sent", receipt.Published),
		slog.Int("skipped", len(skip)),
		slog.Duration("duration", s.now().Sub(startTime)))

	return result, nil
}

// Report fetches test results and aggregates them. Report-scoped selectors
// restrict the results to one invocation.
func (s *Service) Report(ctx context.Context, req Request) (*Report, error) {
	days, err := s.daysBack(req.DaysBack, s.cfg.ReportDaysBack)
	if err != nil {
		return nil, err
	}

	fs, err := s.FilterSet(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := fs.ValidateReportSelector(); err != nil {
		return nil, err
	}

	raw, err := s.store.FetchTestResults(ctx, days)
	if err != nil {
		return nil, err
	}

	rows := results.ParseRows(raw, s.logger)

	invocationID, _, err := results.ResolveInvocation(rows, fs)
	if err != nil {
		return nil, err
	}

	rows, err = results.ReportRows(rows, fs, s.logger)
	if err != nil {
		return nil, err
	}

	rows = results.FilterRows(rows, fs)
	invocations := results.AggregateInvocations(rows, s.logger)

	report := &Report{
		Selector:       fs.Selector,
		InvocationID:   invocationID,
		DaysBack:       days,
		GeneratedAt:    s.now().UTC(),
		TestResults:    results.LatestResults(rows),
		Invocations:    invocations,
		ModelTotals:    results.TotalsByModel(rows),
		ModelRunTotals: results.RunTotalsByModel(rows, invocations),
		Runs:           results.Runs(rows),
	}

	s.logger.Info("Report generated",
		slog.String("selector", fs.Selector),
		slog.String("invocation_id", invocationID),
		slog.Int("rows", len(rows)),
		slog.Int("tests", len(invocations)))

	return report, nil
}

func alertIDs(list []alerts.Alert) []string {
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.ID
	}

	return out
}
