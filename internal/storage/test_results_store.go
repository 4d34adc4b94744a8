package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/correlator-io/alertmon/internal/canonicalization"
)

const (
	// DefaultDaysBack bounds fetches when the caller passes zero.
	DefaultDaysBack = 7

	// DefaultInvocationsPerTest caps the history kept per test.
	DefaultInvocationsPerTest = 720

	testTypeDbt = "dbt_test"
)

// ErrFetchFailed is returned when a fetch query fails.
var ErrFetchFailed = errors.New("warehouse fetch failed")

// ResultsStore reads the elementary tables.
type ResultsStore struct {
	conn               *Connection
	logger             *slog.Logger
	invocationsPerTest int
	now                func() time.Time
}

// StoreOption configures a ResultsStore.
type StoreOption func(*ResultsStore)

// WithLogger sets the logger used by the store.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *ResultsStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithInvocationsPerTest caps the number of runs kept per test. Values below 1 are ignored.
func WithInvocationsPerTest(n int) StoreOption {
	return func(s *ResultsStore) {
		if n > 0 {
			s.invocationsPerTest = n
		}
	}
}

// WithClock overrides the time source used for cutoffs and days_diff.
func WithClock(now func() time.Time) StoreOption {
	return func(s *ResultsStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewResultsStore creates a store over an open connection.
func NewResultsStore(conn *Connection, opts ...StoreOption) (*ResultsStore, error) {
	if conn == nil || conn.DB == nil {
		return nil, ErrNoDatabaseConnection
	}

	s := &ResultsStore{
		conn:               conn,
		logger:             slog.Default(),
		invocationsPerTest: DefaultInvocationsPerTest,
		now:                time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// HealthCheck verifies the warehouse is reachable.
func (s *ResultsStore) HealthCheck(ctx context.Context) error {
	return s.conn.HealthCheck(ctx)
}

// Warehouse reports the dialect the store queries.
func (s *ResultsStore) Warehouse() WarehouseType {
	return s.conn.Warehouse
}

func (s *ResultsStore) cutoff(daysBack int) time.Time {
	if daysBack <= 0 {
		daysBack = DefaultDaysBack
	}

	return s.now().UTC().AddDate(0, 0, -daysBack)
}

// timeArg binds a timestamp in the form the driver compares correctly.
// sqlite stores timestamps as text, so the cutoff is bound as text too.
func (s *ResultsStore) timeArg(t time.Time) any {
	if s.conn.Warehouse == WarehouseSQLite {
		return t.UTC().Format("2006-01-02 15:04:05")
	}

	return t.UTC()
}

func (s *ResultsStore) testResultsQuery() string {
	w := s.conn.Warehouse

	return fmt.Sprintf(`
		SELECT
			r.id,
			r.invocation_id,
			r.test_execution_id,
			r.model_unique_id,
			r.test_unique_id,
			r.detected_at,
			r.database_name,
			r.schema_name,
			r.table_name,
			r.column_name,
			r.test_type,
			r.test_sub_type,
			r.test_results_description,
			r.owners,
			r.tags,
			r.test_results_query,
			r.other,
			r.test_name,
			r.test_params,
			r.severity,
			r.status,
			r.failures,
			r.execution_time,
			t.meta,
			t.description AS test_description,
			t.original_path,
			t.package_name,
			t.tags AS test_tags,
			t.model_tags,
			t.model_owners AS model_owner,
			m.meta AS model_meta
		FROM %s r
		LEFT JOIN %s t ON t.unique_id = r.test_unique_id
		LEFT JOIN %s m ON m.unique_id = r.model_unique_id
		WHERE r.detected_at >= %s
		ORDER BY r.detected_at DESC`,
		s.conn.table("elementary_test_results"),
		s.conn.table("dbt_tests"),
		s.conn.table("dbt_models"),
		w.Placeholder(1),
	)
}

// FetchTestResults returns raw test result rows detected within the last daysBack days.
//
// Rows come back newest first. Each row gains elementary_unique_id,
// invocations_rank_index (1 = latest run of that test) and days_diff. Runs beyond
// the per-test cap are dropped.
func (s *ResultsStore) FetchTestResults(ctx context.Context, daysBack int) ([]map[string]any, error) {
	startTime := time.Now()
	now := s.now().UTC()
	cutoff := s.cutoff(daysBack)

	ctx, cancel := s.conn.queryContext(ctx)
	defer cancel()

	rows, err := s.conn.queryMaps(ctx, s.testResultsQuery(), s.timeArg(cutoff))
	if err != nil {
		s.logger.Error("Failed to fetch test results",
			slog.String("warehouse", s.conn.Warehouse.String()),
			slog.String("error", err.Error()))

		return nil, fmt.Errorf("%w: test results: %w", ErrFetchFailed, err)
	}

	ranked := rankTestResults(rows, now, s.invocationsPerTest)

	s.logger.Debug("Fetched test results",
		slog.Int("rows", len(rows)),
		slog.Int("kept", len(ranked)),
		slog.Time("cutoff", cutoff),
		slog.Int64("duration_ms", time.Since(startTime).Milliseconds()))

	return ranked, nil
}

// ElementaryUniqueID identifies a test independently of its runs. dbt tests
// use their unique id; elementary anomaly tests add the column and sub type.
func ElementaryUniqueID(row map[string]any) string {
	testUniqueID := canonicalization.String(row["test_unique_id"])
	if canonicalization.String(row["test_type"]) == testTypeDbt {
		return testUniqueID
	}

	column := canonicalization.String(row["column_name"])
	if column == "" {
		column = "None"
	}

	return testUniqueID + "." + column + "." + canonicalization.String(row["test_sub_type"])
}

// rankTestResults numbers the runs of each test from newest to oldest.
// Rows sharing a run id share a rank.
func rankTestResults(rows []map[string]any, now time.Time, perTest int) []map[string]any {
	detected := make([]time.Time, len(rows))
	for i, row := range rows {
		detected[i], _ = canonicalization.ParseTimestamp(row["detected_at"])
	}

	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}

	sort.SliceStable(order, func(a, b int) bool {
		return detected[order[a]].After(detected[order[b]])
	})

	// elementary unique id -> run id -> rank
	byTest := make(map[string]map[string]int)
	kept := make([]map[string]any, 0, len(rows))

	for _, i := range order {
		row := rows[i]
		id := ElementaryUniqueID(row)

		ranks, ok := byTest[id]
		if !ok {
			ranks = make(map[string]int)
			byTest[id] = ranks
		}

		runID := canonicalization.String(row["invocation_id"])
		if runID == "" {
			runID = canonicalization.String(row["test_execution_id"])
		}

		rank, seen := ranks[runID]
		if !seen {
			rank = len(ranks) + 1
			ranks[runID] = rank
		}

		if perTest > 0 && rank > perTest {
			continue
		}

		row["elementary_unique_id"] = id
		row["invocations_rank_index"] = int64(rank)

		if !detected[i].IsZero() {
			row["days_diff"] = now.Sub(detected[i]).Hours() / 24 //nolint:mnd
		}

		kept = append(kept, row)
	}

	return kept
}
