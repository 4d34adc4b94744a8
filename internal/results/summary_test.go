package results

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/correlator-io/alertmon/internal/filters"
)

func summaryRows(t *testing.T) []TestResultRow {
	t.Helper()

	other := resultRow("customers.unique.id", "i2", "pass", 1, "2024-03-04T09:00:00Z")
	other["model_unique_id"] = "model.jaffle.customers"
	other["tags"] = `["marketing"]`
	other["model_tags"] = nil
	other["owners"] = `["alice"]`
	other["model_owner"] = nil

	olderOther := resultRow("customers.unique.id", "i1", "fail", 2, "2024-03-01T09:00:00Z")
	olderOther["model_unique_id"] = "model.jaffle.customers"

	return mustParse(t,
		resultRow("orders.not_null.id", "i2", "fail", 1, "2024-03-04T10:00:00Z"),
		resultRow("orders.not_null.id", "i1", "pass", 2, "2024-03-01T10:00:00Z"),
		resultRow("orders.accepted.status", "i2", "warn", 1, "2024-03-04T10:05:00Z"),
		other,
		olderOther,
	)
}

func TestLatestResults(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	latest := LatestResults(summaryRows(t))
	require.Len(t, latest, 3)

	for _, row := range latest {
		assert.Equal(t, 1, row.InvocationsRankIndex)
	}
}

func TestTotalsByModel(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	totals := TotalsByModel(summaryRows(t))

	assert.Equal(t, &Totals{Failures: 1, Warnings: 1}, totals["model.jaffle.orders"])
	assert.Equal(t, &Totals{Passed: 1}, totals["model.jaffle.customers"])
}

func TestRunTotalsByModel(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	rows := summaryRows(t)
	totals := RunTotalsByModel(rows, AggregateInvocations(rows, nil))

	assert.Equal(t, &Totals{Passed: 1, Failures: 1, Warnings: 1}, totals["model.jaffle.orders"])
	assert.Equal(t, &Totals{Passed: 1, Failures: 1}, totals["model.jaffle.customers"])
}

func TestResolveInvocation(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	rows := summaryRows(t)
	between := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	before := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		fs      *filters.FilterSet
		want    string
		scoped  bool
		wantErr error
	}{
		{name: "nil", fs: nil},
		{name: "alert scoped", fs: filters.NewFilterSet()},
		{name: "by id", fs: &filters.FilterSet{InvocationID: "i1"}, want: "i1", scoped: true},
		{name: "unknown id", fs: &filters.FilterSet{InvocationID: "i9"}, scoped: true, wantErr: ErrInvocationNotFound},
		{name: "by time", fs: &filters.FilterSet{InvocationTime: &between}, want: "i1", scoped: true},
		{name: "time before any run", fs: &filters.FilterSet{InvocationTime: &before}, scoped: true, wantErr: ErrInvocationNotFound},
		{name: "last", fs: &filters.FilterSet{LastInvocation: true}, want: "i2", scoped: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, scoped, err := ResolveInvocation(rows, tt.fs)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}

			assert.Equal(t, tt.scoped, scoped)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReportRows(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	rows := summaryRows(t)

	selected, err := ReportRows(rows, &filters.FilterSet{InvocationID: "i1"}, nil)
	require.NoError(t, err)
	require.Len(t, selected, 2)

	for _, row := range selected {
		assert.Equal(t, "i1", row.InvocationID)
		assert.Equal(t, 1, row.InvocationsRankIndex)
	}

	assert.Equal(t, 2, rows[1].InvocationsRankIndex, "input rows must not be modified")

	unchanged, err := ReportRows(rows, filters.NewFilterSet(), nil)
	require.NoError(t, err)
	assert.Len(t, unchanged, len(rows))
}

func TestFilterRows(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	latest := LatestResults(summaryRows(t))

	byTag := FilterRows(latest, &filters.FilterSet{Tags: []filters.Criterion[string]{filters.Is("pii")}})
	assert.Len(t, byTag, 2)

	byOwner := FilterRows(latest, &filters.FilterSet{Owners: []filters.Criterion[string]{filters.Is("alice")}})
	require.Len(t, byOwner, 1)
	assert.Equal(t, "model.jaffle.customers", byOwner[0].ModelUniqueID)

	byModel := FilterRows(latest, &filters.FilterSet{Models: []filters.Criterion[string]{filters.Is("orders")}})
	assert.Len(t, byModel, 2)

	notModel := FilterRows(latest, &filters.FilterSet{Models: []filters.Criterion[string]{filters.IsNot("orders")}})
	require.Len(t, notModel, 1)
	assert.Equal(t, "model.jaffle.customers", notModel[0].ModelUniqueID)

	assert.Len(t, FilterRows(latest, nil), 3)
}
