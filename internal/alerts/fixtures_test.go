package alerts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const fixtureTime = "2022-10-10T10:00:00"

func testAlertRow(id, modelID, testName string, tags any, owners, status string) map[string]any {
	return map[string]any{
		"id":             id,
		"alert_class_id": "class_" + id,
		"type":           "TEST",
		"detected_at":    fixtureTime,
		"created_at":     fixtureTime,
		"updated_at":     fixtureTime,
		"status":         "pending",
		"data": map[string]any{
			"id":                       id,
			"alert_class_id":           "class_" + id,
			"model_unique_id":          modelID,
			"test_unique_id":           "test_unique_" + id,
			"test_name":                testName,
			"test_short_name":          testName,
			"tags":                     tags,
			"model_meta":               map[string]any{"owner": owners},
			"status":                   status,
			"elementary_unique_id":     modelID + "." + testName + ".generic",
			"detected_at":              fixtureTime,
			"database_name":            "test_db",
			"schema_name":              "test_schema",
			"table_name":               "table",
			"test_type":                "dbt_test",
			"test_sub_type":            "generic",
			"test_results_description": "a mock alert",
			"test_results_query":       "select * from table",
			"severity":                 "ERROR",
		},
	}
}

func modelAlertRow(id, modelID string, tags any, owners, status string) map[string]any {
	return map[string]any{
		"id":             id,
		"alert_class_id": modelID,
		"type":           "model",
		"detected_at":    fixtureTime,
		"status":         "pending",
		"data": map[string]any{
			"id":              id,
			"alert_class_id":  modelID,
			"model_unique_id": modelID,
			"alias":           "modely",
			"path":            "my/path",
			"materialization": "table",
			"full_refresh":    false,
			"detected_at":     fixtureTime,
			"tags":            tags,
			"model_meta":      map[string]any{"owner": owners},
			"status":          status,
			"database_name":   "test_db",
			"schema_name":     "test_schema",
		},
	}
}

func freshnessAlertRow(id, modelID, status, originalStatus string) map[string]any {
	return map[string]any{
		"id":             id,
		"alert_class_id": modelID,
		"type":           "source_freshness",
		"detected_at":    fixtureTime,
		"status":         "pending",
		"data": `{
			"id": "` + id + `",
			"source_freshness_execution_id": "` + id + `",
			"alert_class_id": "` + modelID + `",
			"model_unique_id": "` + modelID + `",
			"path": "my/path",
			"detected_at": "2022-10-10 10:00:00",
			"tags": ["one", "two"],
			"model_meta": {"owner": "[\"jeff\", \"john\"]"},
			"original_status": "` + originalStatus + `",
			"status": "` + status + `",
			"snapshotted_at": "2023-08-15T12:26:06.884065",
			"max_loaded_at": "1969-12-31T00:00:00",
			"max_loaded_at_time_ago_in_s": 1692188766,
			"source_name": "elementary_integration_tests",
			"identifier": "any_type_column_anomalies_validation",
			"error_after": "{\"count\": null, \"period\": null}",
			"warn_after": "{\"count\": 1, \"period\": \"minute\"}",
			"filter": "null",
			"error": "problemz",
			"database_name": "test_db",
			"schema_name": "test_schema"
		}`,
	}
}

func mustDecode(t *testing.T, rows ...map[string]any) []Alert {
	t.Helper()

	decoded := make([]Alert, 0, len(rows))

	for _, row := range rows {
		alert, err := DecodeAlert(row)
		require.NoError(t, err)
		require.NoError(t, alert.Validate())

		decoded = append(decoded, alert)
	}

	return decoded
}

// initialAlerts returns four test alerts, four model alerts and three source freshness alerts.
// test_alert_3 carries its tag as a raw string instead of a list.
func initialAlerts(t *testing.T) ([]Alert, []Alert, []Alert) {
	t.Helper()

	tests := mustDecode(t,
		testAlertRow("test_alert_1", "elementary.model_id_1", "test_1", []any{"one", "two"}, `["jeff", "john"]`, "fail"),
		testAlertRow("test_alert_2", "elementary.model_id_1", "test_2", []any{"three"}, `["jeff", "john"]`, "fail"),
		testAlertRow("test_alert_3", "elementary.model_id_2", "test_3", "one", `["john"]`, "fail"),
		testAlertRow("test_alert_4", "elementary.model_id_2", "test_4", []any{"three", "four"}, `["jeff"]`, "warn"),
	)

	models := mustDecode(t,
		modelAlertRow("model_alert_1", "elementary.model_id_1", []any{"one", "two"}, `["jeff", "john"]`, "error"),
		modelAlertRow("model_alert_2", "elementary.model_id_1", []any{"three"}, `["john"]`, "error"),
		modelAlertRow("model_alert_3", "elementary.model_id_2", []any{"three", "four"}, `["jeff"]`, "skipped"),
		modelAlertRow("model_alert_4", "elementary.model_id_3", []any{"microbatch"}, `["alice"]`, "partial success"),
	)

	freshness := mustDecode(t,
		freshnessAlertRow("freshness_alert_1", "elementary.model_id_1", "fail", "error"),
		freshnessAlertRow("freshness_alert_2", "elementary.model_id_2", "warn", "warn"),
		freshnessAlertRow("freshness_alert_3", "elementary.model_id_3", "error", "runtime error"),
	)

	return tests, models, freshness
}

func ids(alerts []Alert) []string {
	out := make([]string, len(alerts))
	for i, a := range alerts {
		out[i] = a.ID
	}

	return out
}
