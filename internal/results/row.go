// Package results parses warehouse test result rows and aggregates them into
// per-test invocation histories and per-model totals.
package results

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/correlator-io/alertmon/internal/canonicalization"
)

// TestTypeDbt is the test_type of generic and singular dbt tests.
const TestTypeDbt = "dbt_test"

var (
	// ErrMalformedRow is returned when a raw test result row cannot be parsed.
	ErrMalformedRow = errors.New("malformed test result row")

	// ErrMissingField is returned when a required column is absent or empty.
	ErrMissingField = errors.New("missing required field")
)

// TestResultRow is one row of the test results view.
type TestResultRow struct {
	ID                     string         `json:"id"`
	InvocationID           string         `json:"invocation_id"`
	TestExecutionID        string         `json:"test_execution_id"`
	ModelUniqueID          string         `json:"model_unique_id"`
	TestUniqueID           string         `json:"test_unique_id"`
	ElementaryUniqueID     string         `json:"elementary_unique_id"`
	DetectedAt             time.Time      `json:"detected_at"`
	DatabaseName           string         `json:"database_name"`
	SchemaName             string         `json:"schema_name"`
	TableName              string         `json:"table_name,omitempty"`
	ColumnName             string         `json:"column_name,omitempty"`
	TestType               string         `json:"test_type"`
	TestSubType            string         `json:"test_sub_type"`
	TestResultsDescription string         `json:"test_results_description,omitempty"`
	TestDescription        string         `json:"test_description,omitempty"`
	OriginalPath           string         `json:"original_path"`
	PackageName            string         `json:"package_name,omitempty"`
	Owners                 []string       `json:"owners,omitempty"`
	ModelOwner             []string       `json:"model_owner,omitempty"`
	Tags                   []string       `json:"tags,omitempty"`
	TestTags               []string       `json:"test_tags,omitempty"`
	ModelTags              []string       `json:"model_tags,omitempty"`
	Meta                   map[string]any `json:"meta"`
	ModelMeta              map[string]any `json:"model_meta"`
	TestParams             map[string]any `json:"test_params"`
	TestResultsQuery       string         `json:"test_results_query,omitempty"`
	Other                  string         `json:"other,omitempty"`
	TestName               string         `json:"test_name"`
	Severity               *string        `json:"severity,omitempty"`
	Status                 string         `json:"status"`
	DaysDiff               float64        `json:"days_diff"`
	InvocationsRankIndex   int            `json:"invocations_rank_index"`
	Failures               *int64         `json:"failures,omitempty"`
	ExecutionTime          *float64       `json:"execution_time,omitempty"`
}

// RunID identifies the run that produced the row: the invocation id, or the
// test execution id on warehouses that do not record invocations.
func (r TestResultRow) RunID() string {
	if r.InvocationID != "" {
		return r.InvocationID
	}

	return r.TestExecutionID
}

// ParseRow converts a raw warehouse row into a TestResultRow.
//
// Absent or null columns read as zero values. Only elementary_unique_id is
// required. JSON columns may arrive as text or already decoded.
func ParseRow(raw map[string]any) (TestResultRow, error) {
	f := rowFields(raw)

	row := TestResultRow{
		ID:                     f.str("id"),
		InvocationID:           f.str("invocation_id"),
		TestExecutionID:        f.str("test_execution_id"),
		ModelUniqueID:          f.str("model_unique_id"),
		TestUniqueID:           f.str("test_unique_id"),
		ElementaryUniqueID:     f.str("elementary_unique_id"),
		DatabaseName:           f.str("database_name"),
		SchemaName:             f.str("schema_name"),
		TableName:              f.str("table_name"),
		ColumnName:             f.str("column_name"),
		TestType:               f.str("test_type"),
		TestSubType:            f.str("test_sub_type"),
		TestResultsDescription: strings.TrimSpace(f.str("test_results_description")),
		TestDescription:        f.str("test_description"),
		OriginalPath:           f.str("original_path"),
		PackageName:            f.str("package_name"),
		Owners:                 canonicalization.NormalizeStringList(raw["owners"]),
		ModelOwner:             canonicalization.NormalizeStringList(raw["model_owner"]),
		Tags:                   canonicalization.NormalizeStringList(raw["tags"]),
		TestTags:               canonicalization.NormalizeStringList(raw["test_tags"]),
		ModelTags:              canonicalization.NormalizeStringList(raw["model_tags"]),
		TestResultsQuery:       strings.TrimSpace(f.str("test_results_query")),
		Other:                  f.str("other"),
		TestName:               f.str("test_name"),
		Severity:               normalizeSeverity(raw["severity"]),
		Status:                 strings.ToLower(strings.TrimSpace(f.str("status"))),
	}

	if row.ElementaryUniqueID == "" {
		return TestResultRow{}, fmt.Errorf("%w: %w: 'elementary_unique_id'", ErrMalformedRow, ErrMissingField)
	}

	if err := row.parseTyped(f); err != nil {
		return TestResultRow{}, fmt.Errorf("%w: %s: %w", ErrMalformedRow, row.ElementaryUniqueID, err)
	}

	return row, nil
}

// ParseRows parses every raw row, logging and skipping those that fail.
func ParseRows(raw []map[string]any, logger *slog.Logger) []TestResultRow {
	if logger == nil {
		logger = slog.Default()
	}

	parsed := make([]TestResultRow, 0, len(raw))

	for i, r := range raw {
		row, err := ParseRow(r)
		if err != nil {
			logger.Warn("Skipping malformed test result row",
				slog.Int("row", i),
				slog.String("id", canonicalization.String(r["id"])),
				slog.String("error", err.Error()))

			continue
		}

		parsed = append(parsed, row)
	}

	return parsed
}

func (r *TestResultRow) parseTyped(f rowFields) error {
	var err error

	if f.present("detected_at") {
		if r.DetectedAt, err = canonicalization.ParseTimestamp(f["detected_at"]); err != nil {
			return fmt.Errorf("field 'detected_at': %w", err)
		}
	}

	if r.Meta, err = f.dict("meta"); err != nil {
		return err
	}

	if r.ModelMeta, err = f.dict("model_meta"); err != nil {
		return err
	}

	if r.TestParams, err = f.dict("test_params"); err != nil {
		return err
	}

	if r.DaysDiff, _, err = canonicalization.Float(f["days_diff"]); err != nil {
		return fmt.Errorf("field 'days_diff': %w", err)
	}

	rank, _, err := canonicalization.Int(f["invocations_rank_index"])
	if err != nil {
		return fmt.Errorf("field 'invocations_rank_index': %w", err)
	}

	r.InvocationsRankIndex = int(rank)

	if seconds, ok, err := canonicalization.Float(f["execution_time"]); err != nil {
		return fmt.Errorf("field 'execution_time': %w", err)
	} else if ok {
		r.ExecutionTime = &seconds
	}

	if r.TestType == TestTypeDbt {
		failures, ok, err := canonicalization.Int(f["failures"])
		if err != nil {
			return fmt.Errorf("field 'failures': %w", err)
		}

		if ok {
			r.Failures = &failures
		}
	}

	return nil
}

// normalizeSeverity drops the literal "none" in any casing. An empty string is kept.
func normalizeSeverity(value any) *string {
	if value == nil {
		return nil
	}

	severity := canonicalization.String(value)
	if strings.EqualFold(strings.TrimSpace(severity), "none") {
		return nil
	}

	return &severity
}

type rowFields map[string]any

func (f rowFields) str(key string) string {
	return canonicalization.String(f[key])
}

func (f rowFields) present(key string) bool {
	return f[key] != nil && strings.TrimSpace(f.str(key)) != ""
}

func (f rowFields) dict(key string) (map[string]any, error) {
	d, err := canonicalization.DecodeDict(f[key])
	if err != nil {
		return nil, fmt.Errorf("field '%s': %w", key, err)
	}

	return d, nil
}
