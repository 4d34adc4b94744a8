package results

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/correlator-io/alertmon/internal/canonicalization"
	"github.com/correlator-io/alertmon/internal/filters"
)

// ErrInvocationNotFound is returned when a report filter names no known invocation.
var ErrInvocationNotFound = errors.New("invocation not found")

// LatestResults keeps only rank-1 rows, the most recent run of each test.
func LatestResults(rows []TestResultRow) []TestResultRow {
	latest := make([]TestResultRow, 0, len(rows))

	for _, row := range rows {
		if row.InvocationsRankIndex == 1 {
			latest = append(latest, row)
		}
	}

	return latest
}

// TotalsByModel folds the latest status of each test into totals per model.
func TotalsByModel(rows []TestResultRow) map[string]*Totals {
	totals := make(map[string]*Totals)

	for _, row := range LatestResults(rows) {
		modelTotals(totals, row.ModelUniqueID).AddTotal(row.Status)
	}

	return totals
}

// RunTotalsByModel folds every recorded run of each latest test into totals per model.
func RunTotalsByModel(rows []TestResultRow, invocations map[string]*Invocations) map[string]*Totals {
	totals := make(map[string]*Totals)

	for _, row := range LatestResults(rows) {
		t := modelTotals(totals, row.ModelUniqueID)

		history, ok := invocations[row.ElementaryUniqueID]
		if !ok {
			continue
		}

		for _, invocation := range history.Invocations {
			t.AddTotal(invocation.Status)
		}
	}

	return totals
}

func modelTotals(totals map[string]*Totals, modelUniqueID string) *Totals {
	t, ok := totals[modelUniqueID]
	if !ok {
		t = &Totals{}
		totals[modelUniqueID] = t
	}

	return t
}

// RunSummary is one run id with the latest time any of its rows was detected.
type RunSummary struct {
	ID   string    `json:"invocation_id"`
	Time time.Time `json:"detected_at"`
}

// Runs lists the distinct run ids found in rows, ordered by first appearance.
func Runs(rows []TestResultRow) []RunSummary {
	index := make(map[string]int)

	var runs []RunSummary

	for _, row := range rows {
		id := row.RunID()
		if id == "" {
			continue
		}

		i, ok := index[id]
		if !ok {
			index[id] = len(runs)
			runs = append(runs, RunSummary{ID: id, Time: row.DetectedAt})

			continue
		}

		if row.DetectedAt.After(runs[i].Time) {
			runs[i].Time = row.DetectedAt
		}
	}

	return runs
}

// ResolveInvocation picks the run a report-scoped filter set points at.
//
// Resolution order:
//   - InvocationID → that id, which must be present in rows
//   - InvocationTime → the latest run detected at or before that time
//   - LastInvocation → the latest run
//
// The second result is false when fs is not report scoped.
func ResolveInvocation(rows []TestResultRow, fs *filters.FilterSet) (string, bool, error) {
	if fs == nil || !fs.IsReportScoped() {
		return "", false, nil
	}

	runs := Runs(rows)

	switch {
	case fs.InvocationID != "":
		for _, run := range runs {
			if run.ID == fs.InvocationID {
				return run.ID, true, nil
			}
		}

		return "", true, fmt.Errorf("%w: id '%s'", ErrInvocationNotFound, fs.InvocationID)
	case fs.InvocationTime != nil:
		if run, ok := latestRun(runs, *fs.InvocationTime); ok {
			return run.ID, true, nil
		}

		return "", true, fmt.Errorf("%w: none at or before %s",
			ErrInvocationNotFound, fs.InvocationTime.Format(time.RFC3339))
	default:
		if run, ok := latestRun(runs, time.Time{}); ok {
			return run.ID, true, nil
		}

		return "", true, fmt.Errorf("%w: no runs recorded", ErrInvocationNotFound)
	}
}

// latestRun returns the most recent run not after limit. A zero limit means no limit.
func latestRun(runs []RunSummary, limit time.Time) (RunSummary, bool) {
	var (
		best  RunSummary
		found bool
	)

	for _, run := range runs {
		if !limit.IsZero() && run.Time.After(limit) {
			continue
		}

		if !found || run.Time.After(best.Time) {
			best, found = run, true
		}
	}

	return best, found
}

// FilterByRun keeps the rows produced by the given run id.
func FilterByRun(rows []TestResultRow, runID string) []TestResultRow {
	kept := make([]TestResultRow, 0, len(rows))

	for _, row := range rows {
		if row.RunID() == runID {
			kept = append(kept, row)
		}
	}

	return kept
}

// ReportRows narrows rows to the run a report-scoped filter set selects and treats
// them as that run's latest results. Filter sets that are not report scoped return
// rows unchanged.
func ReportRows(rows []TestResultRow, fs *filters.FilterSet, logger *slog.Logger) ([]TestResultRow, error) {
	if logger == nil {
		logger = slog.Default()
	}

	runID, scoped, err := ResolveInvocation(rows, fs)
	if err != nil {
		return nil, err
	}

	if !scoped {
		return rows, nil
	}

	logger.Info("Report scoped to a single invocation", slog.String("invocation_id", runID))

	selected := FilterByRun(rows, runID)
	for i := range selected {
		selected[i].InvocationsRankIndex = 1
	}

	return selected, nil
}

// FilterRows applies the tag, owner and model dimensions of fs to result rows.
// Statuses are not applied: reports show every outcome.
func FilterRows(rows []TestResultRow, fs *filters.FilterSet) []TestResultRow {
	if fs == nil {
		return rows
	}

	kept := make([]TestResultRow, 0, len(rows))

	for _, row := range rows {
		if rowMatches(row, fs) {
			kept = append(kept, row)
		}
	}

	return kept
}

func rowMatches(row TestResultRow, fs *filters.FilterSet) bool {
	tags := canonicalization.MergeStringLists(row.Tags, row.TestTags, row.ModelTags)
	for _, c := range fs.Tags {
		if !c.MatchValues(tags) {
			return false
		}
	}

	owners := canonicalization.MergeStringLists(row.Owners, row.ModelOwner)
	for _, c := range fs.Owners {
		if !c.MatchValues(owners) {
			return false
		}
	}

	for _, c := range fs.Models {
		if !matchModel(c, row.ModelUniqueID) {
			return false
		}
	}

	return true
}

func matchModel(c filters.Criterion[string], modelID string) bool {
	suffixed := func() bool {
		for _, model := range c.Values {
			if strings.HasSuffix(modelID, model) {
				return true
			}
		}

		return false
	}

	switch c.Operator {
	case filters.OperatorIs:
		return modelID != "" && suffixed()
	case filters.OperatorIsNot:
		return modelID == "" || !suffixed()
	default:
		return modelID != "" && c.MatchValue(modelID)
	}
}
