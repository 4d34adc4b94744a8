package results

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Invocation is one historical run of a test.
type Invocation struct {
	ID     string    `json:"id"`
	Time   time.Time `json:"time_utc"`
	Status string    `json:"status"`
	// AffectedRows is nil when the description carries no "Got <N> result" prefix.
	AffectedRows *int `json:"affected_rows,omitempty"`
}

// Totals counts results by outcome.
type Totals struct {
	Passed   int `json:"passed"`
	Failures int `json:"failures"`
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
	// Skipped is never incremented by AddTotal.
	Skipped int `json:"skipped"`
}

// AddTotal increments the bucket matching status and reports whether the status
// was one of pass, fail, error or warn. Any other status, "runtime error" and
// "skipped" included, is counted as passed.
func (t *Totals) AddTotal(status string) bool {
	switch status {
	case "fail":
		t.Failures++
	case "error":
		t.Errors++
	case "warn":
		t.Warnings++
	case "pass":
		t.Passed++
	default:
		t.Passed++

		return false
	}

	return true
}

// Count returns the number of results folded into t.
func (t Totals) Count() int {
	return t.Passed + t.Failures + t.Errors + t.Warnings + t.Skipped
}

// FailRate returns the share of failures and errors, rounded to two decimals.
func (t Totals) FailRate() float64 {
	count := t.Count()
	if count == 0 {
		return 0
	}

	return math.Round(float64(t.Errors+t.Failures)/float64(count)*100) / 100
}

// Description renders the totals as a sentence, writing "no" for zero counts.
func (t Totals) Description() string {
	return fmt.Sprintf("There were %s failures, %s errors and %s warnings on the last %d test runs.",
		countOrNo(t.Failures), countOrNo(t.Errors), countOrNo(t.Warnings), t.Count())
}

func countOrNo(n int) string {
	if n == 0 {
		return "no"
	}

	return strconv.Itoa(n)
}

// Invocations is the run history of one test.
type Invocations struct {
	FailRate    float64      `json:"fail_rate"`
	Totals      Totals       `json:"totals"`
	Invocations []Invocation `json:"invocations"`
	Description string       `json:"description"`
}

// AggregateInvocations groups rows by elementary unique id and builds each test's
// run history. Within a test, a run id already seen is skipped. Histories keep the
// order in which rows arrive. Rows without a run id are logged and skipped.
func AggregateInvocations(rows []TestResultRow, logger *slog.Logger) map[string]*Invocations {
	if logger == nil {
		logger = slog.Default()
	}

	grouped := make(map[string]*Invocations)
	seen := make(map[string]map[string]struct{})

	for _, row := range rows {
		runID := row.RunID()
		if runID == "" {
			logger.Error("Could not parse test invocation, continuing to the next test",
				slog.String("test_unique_id", row.TestUniqueID),
				slog.String("elementary_unique_id", row.ElementaryUniqueID),
				slog.String("error", ErrMissingField.Error()+": 'invocation_id'"))

			continue
		}

		ids, ok := seen[row.ElementaryUniqueID]
		if !ok {
			ids = make(map[string]struct{})
			seen[row.ElementaryUniqueID] = ids
			grouped[row.ElementaryUniqueID] = &Invocations{Invocations: []Invocation{}}
		}

		if _, dup := ids[runID]; dup {
			continue
		}

		ids[runID] = struct{}{}

		invocation := Invocation{ID: runID, Time: row.DetectedAt, Status: row.Status}
		if n, ok := ParseAffectedRows(row.TestResultsDescription); ok {
			invocation.AffectedRows = &n
		}

		group := grouped[row.ElementaryUniqueID]
		group.Invocations = append(group.Invocations, invocation)

		if !group.Totals.AddTotal(row.Status) {
			logger.Warn("Unrecognized test status counted as passed",
				slog.String("elementary_unique_id", row.ElementaryUniqueID),
				slog.String("invocation_id", runID),
				slog.String("status", row.Status))
		}
	}

	for _, group := range grouped {
		group.FailRate = group.Totals.FailRate()
		group.Description = group.Totals.Description()
	}

	return grouped
}

// ParseAffectedRows reads N from a description that starts with "Got <N> result".
// The words are separated by exactly one whitespace character, as dbt writes them.
//
// Examples:
//
//	"Got 5 results, configured to fail if != 0" → 5, true
//	"Got 0 result"                              → 0, true
//	"Found 5 results"                           → 0, false
func ParseAffectedRows(description string) (int, bool) {
	const prefix, suffix = "Got", "result"

	rest, ok := strings.CutPrefix(description, prefix)
	if !ok {
		return 0, false
	}

	if rest, ok = cutSpace(rest); !ok {
		return 0, false
	}

	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}

	if end == 0 {
		return 0, false
	}

	digits := rest[:end]

	if rest, ok = cutSpace(rest[end:]); !ok {
		return 0, false
	}

	if _, ok = strings.CutPrefix(rest, suffix); !ok {
		return 0, false
	}

	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}

	return n, true
}

// cutSpace removes exactly one leading whitespace rune.
func cutSpace(s string) (string, bool) {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 || !unicode.IsSpace(r) {
		return s, false
	}

	return s[size:], true
}
