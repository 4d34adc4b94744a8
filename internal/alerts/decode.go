package alerts

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/correlator-io/alertmon/internal/canonicalization"
)

var (
	// ErrMalformedAlert is returned when a raw alert row cannot be decoded.
	ErrMalformedAlert = errors.New("malformed alert")

	// ErrMissingField is returned when a required field is absent or empty.
	ErrMissingField = errors.New("missing required field")
)

// fields reads typed values out of a raw row or payload.
type fields map[string]any

func (f fields) str(key string) string {
	return canonicalization.String(f[key])
}

func (f fields) required(keys ...string) error {
	for _, key := range keys {
		if f.str(key) == "" {
			return fmt.Errorf("%w: '%s'", ErrMissingField, key)
		}
	}

	return nil
}

func (f fields) time(key string, fallback time.Time) (time.Time, error) {
	if f[key] == nil || f.str(key) == "" {
		return fallback, nil
	}

	t, err := canonicalization.ParseTimestamp(f[key])
	if err != nil {
		return time.Time{}, fmt.Errorf("field '%s': %w", key, err)
	}

	return t, nil
}

func (f fields) optionalTime(key string) (*time.Time, error) {
	if f[key] == nil || f.str(key) == "" {
		return nil, nil //nolint:nilnil
	}

	t, err := canonicalization.ParseTimestamp(f[key])
	if err != nil {
		return nil, fmt.Errorf("field '%s': %w", key, err)
	}

	return &t, nil
}

func (f fields) dict(key string) (map[string]any, error) {
	d, err := canonicalization.DecodeDict(f[key])
	if err != nil {
		return nil, fmt.Errorf("field '%s': %w", key, err)
	}

	return d, nil
}

func (f fields) rows(key string) ([]map[string]any, error) {
	var raw []byte

	switch v := f[key].(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}

		raw = []byte(v)
	case []byte:
		raw = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("field '%s': %w", key, err)
		}

		raw = encoded
	}

	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("field '%s': %w", key, err)
	}

	return rows, nil
}

// DecodeAlert builds an Alert from a raw pending-alert row.
//
// The row carries the envelope (id, alert_class_id, type, status and timestamps) and a data
// payload stored as JSON text or as a map. Missing envelope timestamps default to now.
func DecodeAlert(raw map[string]any) (Alert, error) {
	row := fields(raw)

	if err := row.required("id", "type"); err != nil {
		return Alert{}, fmt.Errorf("%w: %w", ErrMalformedAlert, err)
	}

	alertType, err := ParseType(row.str("type"))
	if err != nil {
		return Alert{}, fmt.Errorf("%w: %w", ErrMalformedAlert, err)
	}

	alert := Alert{
		ID:           row.str("id"),
		AlertClassID: row.str("alert_class_id"),
		Type:         alertType,
		Status:       DeliveryPending,
	}

	if s := row.str("status"); s != "" {
		if alert.Status, err = ParseDeliveryStatus(s); err != nil {
			return Alert{}, fmt.Errorf("%w: %w", ErrMalformedAlert, err)
		}
	}

	now := time.Now().UTC()

	if alert.DetectedAt, err = row.time("detected_at", now); err != nil {
		return Alert{}, fmt.Errorf("%w: %w", ErrMalformedAlert, err)
	}

	if alert.CreatedAt, err = row.time("created_at", now); err != nil {
		return Alert{}, fmt.Errorf("%w: %w", ErrMalformedAlert, err)
	}

	if alert.UpdatedAt, err = row.time("updated_at", now); err != nil {
		return Alert{}, fmt.Errorf("%w: %w", ErrMalformedAlert, err)
	}

	if alert.SentAt, err = row.optionalTime("sent_at"); err != nil {
		return Alert{}, fmt.Errorf("%w: %w", ErrMalformedAlert, err)
	}

	data, err := row.dict("data")
	if err != nil {
		return Alert{}, fmt.Errorf("%w: %w", ErrMalformedAlert, err)
	}

	if err := alert.decodePayload(fields(data)); err != nil {
		return Alert{}, fmt.Errorf("%w: alert '%s': %w", ErrMalformedAlert, alert.ID, err)
	}

	return alert, nil
}

// DecodeAlerts decodes raw rows, logging and skipping the ones that are malformed.
func DecodeAlerts(rows []map[string]any, logger *slog.Logger) []Alert {
	if logger == nil {
		logger = slog.Default()
	}

	decoded := make([]Alert, 0, len(rows))

	for i, row := range rows {
		alert, err := DecodeAlert(row)
		if err != nil {
			logger.Warn("Skipping malformed alert",
				slog.Int("row", i),
				slog.String("alert_id", canonicalization.String(row["id"])),
				slog.String("error", err.Error()))

			continue
		}

		decoded = append(decoded, alert)
	}

	return decoded
}

func (a *Alert) decodePayload(data fields) error {
	base, err := decodeBase(data)
	if err != nil {
		return err
	}

	switch a.Type {
	case TypeTest:
		a.Test, err = decodeTest(base, data)
	case TypeModel:
		a.Model, err = decodeModel(base, data)
	case TypeSourceFreshness:
		a.SourceFreshness, err = decodeSourceFreshness(base, data)
	}

	return err
}

func decodeBase(data fields) (BaseData, error) {
	if err := data.required("id", "status"); err != nil {
		return BaseData{}, err
	}

	detectedAt, err := data.time("detected_at", time.Now().UTC())
	if err != nil {
		return BaseData{}, err
	}

	modelMeta, err := data.dict("model_meta")
	if err != nil {
		return BaseData{}, err
	}

	return BaseData{
		ID:            data.str("id"),
		AlertClassID:  data.str("alert_class_id"),
		ModelUniqueID: data.str("model_unique_id"),
		DetectedAt:    detectedAt,
		DatabaseName:  data.str("database_name"),
		SchemaName:    data.str("schema_name"),
		Tags:          canonicalization.NormalizeStringList(data["tags"]),
		Owners:        canonicalization.NormalizeStringList(data["owners"]),
		ModelMeta:     modelMeta,
		Status:        data.str("status"),
	}, nil
}

func decodeTest(base BaseData, data fields) (*TestData, error) {
	if err := data.required("test_unique_id", "test_name"); err != nil {
		return nil, err
	}

	test := &TestData{
		BaseData:               base,
		TestUniqueID:           data.str("test_unique_id"),
		ElementaryUniqueID:     data.str("elementary_unique_id"),
		TableName:              data.str("table_name"),
		ColumnName:             data.str("column_name"),
		TestType:               data.str("test_type"),
		TestSubType:            data.str("test_sub_type"),
		TestName:               data.str("test_name"),
		TestShortName:          data.str("test_short_name"),
		TestDescription:        data.str("test_description"),
		TestResultsDescription: data.str("test_results_description"),
		TestResultsQuery:       data.str("test_results_query"),
		Severity:               data.str("severity"),
	}

	var err error

	if test.TestParams, err = data.dict("test_params"); err != nil {
		return nil, err
	}

	if test.TestMeta, err = data.dict("test_meta"); err != nil {
		return nil, err
	}

	if test.Other, err = data.dict("other"); err != nil {
		return nil, err
	}

	if test.TestRowsSample, err = data.rows("test_rows_sample"); err != nil {
		return nil, err
	}

	return test, nil
}

func decodeModel(base BaseData, data fields) (*ModelData, error) {
	return &ModelData{
		BaseData:        base,
		Alias:           data.str("alias"),
		Path:            data.str("path"),
		OriginalPath:    data.str("original_path"),
		Materialization: data.str("materialization"),
		FullRefresh:     canonicalization.Bool(data["full_refresh"]),
		Message:         data.str("message"),
	}, nil
}

func decodeSourceFreshness(base BaseData, data fields) (*SourceFreshnessData, error) {
	if err := data.required("source_name"); err != nil {
		return nil, err
	}

	freshness := &SourceFreshnessData{
		BaseData:                   base,
		SourceFreshnessExecutionID: data.str("source_freshness_execution_id"),
		SourceName:                 data.str("source_name"),
		Identifier:                 data.str("identifier"),
		ErrorAfter:                 data.str("error_after"),
		WarnAfter:                  data.str("warn_after"),
		Filter:                     data.str("filter"),
		OriginalStatus:             data.str("original_status"),
		Path:                       data.str("path"),
		Error:                      data.str("error"),
		FreshnessDescription:       data.str("freshness_description"),
	}

	var err error

	if freshness.SnapshottedAt, err = data.optionalTime("snapshotted_at"); err != nil {
		return nil, err
	}

	if freshness.MaxLoadedAt, err = data.optionalTime("max_loaded_at"); err != nil {
		return nil, err
	}

	ago, ok, err := canonicalization.Int(data["max_loaded_at_time_ago_in_s"])
	if err != nil {
		return nil, fmt.Errorf("field 'max_loaded_at_time_ago_in_s': %w", err)
	}

	if ok {
		freshness.MaxLoadedAtTimeAgoInS = &ago
	}

	return freshness, nil
}
