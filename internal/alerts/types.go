// Package alerts models pending monitoring alerts and filters them by a filters.FilterSet.
//
// An Alert is a tagged union: Type selects which one of Test, Model or SourceFreshness carries
// the payload. Dimension extraction (tags, owners, node name, resource type) switches on Type.
package alerts

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/correlator-io/alertmon/internal/canonicalization"
	"github.com/correlator-io/alertmon/internal/filters"
)

type (
	// Type is the alert variant discriminant.
	Type string

	// DeliveryStatus is the lifecycle state of a pending alert row.
	DeliveryStatus string

	// Alert is a pending alert with exactly one populated variant payload.
	Alert struct {
		ID           string         `json:"id"`
		AlertClassID string         `json:"alert_class_id"`
		Type         Type           `json:"type"`
		DetectedAt   time.Time      `json:"detected_at"`
		CreatedAt    time.Time      `json:"created_at"`
		UpdatedAt    time.Time      `json:"updated_at"`
		Status       DeliveryStatus `json:"status"`
		SentAt       *time.Time     `json:"sent_at,omitempty"`

		Test            *TestData            `json:"test,omitempty"`
		Model           *ModelData           `json:"model,omitempty"`
		SourceFreshness *SourceFreshnessData `json:"source_freshness,omitempty"`
	}

	// BaseData holds the fields shared by every variant payload.
	BaseData struct {
		ID            string         `json:"id"`
		AlertClassID  string         `json:"alert_class_id"`
		ModelUniqueID string         `json:"model_unique_id,omitempty"`
		DetectedAt    time.Time      `json:"detected_at"`
		DatabaseName  string         `json:"database_name,omitempty"`
		SchemaName    string         `json:"schema_name"`
		Tags          []string       `json:"tags,omitempty"`
		Owners        []string       `json:"owners,omitempty"`
		ModelMeta     map[string]any `json:"model_meta,omitempty"`
		Status        string         `json:"status"`
	}

	// TestData is the payload of a TEST alert.
	TestData struct {
		BaseData

		TestUniqueID           string           `json:"test_unique_id"`
		ElementaryUniqueID     string           `json:"elementary_unique_id"`
		TableName              string           `json:"table_name,omitempty"`
		ColumnName             string           `json:"column_name,omitempty"`
		TestType               string           `json:"test_type"`
		TestSubType            string           `json:"test_sub_type"`
		TestName               string           `json:"test_name"`
		TestShortName          string           `json:"test_short_name"`
		TestDescription        string           `json:"test_description,omitempty"`
		TestResultsDescription string           `json:"test_results_description,omitempty"`
		TestResultsQuery       string           `json:"test_results_query,omitempty"`
		TestRowsSample         []map[string]any `json:"test_rows_sample,omitempty"`
		TestParams             map[string]any   `json:"test_params,omitempty"`
		TestMeta               map[string]any   `json:"test_meta,omitempty"`
		Other                  map[string]any   `json:"other,omitempty"`
		Severity               string           `json:"severity"`
	}

	// ModelData is the payload of a MODEL alert.
	ModelData struct {
		BaseData

		Alias           string `json:"alias"`
		Path            string `json:"path"`
		OriginalPath    string `json:"original_path"`
		Materialization string `json:"materialization"`
		FullRefresh     bool   `json:"full_refresh"`
		Message         string `json:"message,omitempty"`
	}

	// SourceFreshnessData is the payload of a SOURCE_FRESHNESS alert.
	SourceFreshnessData struct {
		BaseData

		SourceFreshnessExecutionID string     `json:"source_freshness_execution_id"`
		SnapshottedAt              *time.Time `json:"snapshotted_at,omitempty"`
		MaxLoadedAt                *time.Time `json:"max_loaded_at,omitempty"`
		MaxLoadedAtTimeAgoInS      *int64     `json:"max_loaded_at_time_ago_in_s,omitempty"`
		SourceName                 string     `json:"source_name"`
		Identifier                 string     `json:"identifier"`
		ErrorAfter                 string     `json:"error_after,omitempty"`
		WarnAfter                  string     `json:"warn_after,omitempty"`
		Filter                     string     `json:"filter,omitempty"`
		OriginalStatus             string     `json:"original_status"`
		Path                       string     `json:"path"`
		Error                      string     `json:"error,omitempty"`
		FreshnessDescription       string     `json:"freshness_description,omitempty"`
	}
)

const (
	TypeTest            Type = "test"
	TypeModel           Type = "model"
	TypeSourceFreshness Type = "source_freshness"

	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliverySkipped DeliveryStatus = "skipped"
)

// Meta keys read from model and test meta.
const (
	metaAlertsConfigKey = "alerts_config"
	metaOwnerKey        = "owner"
	metaSubscribersKey  = "subscribers"
	metaDescriptionKey  = "description"
)

var (
	// ErrInvalidType is returned when an alert type literal is not recognized.
	ErrInvalidType = errors.New("invalid alert type")

	// ErrInvalidDeliveryStatus is returned when an alert status literal is not recognized.
	ErrInvalidDeliveryStatus = errors.New("invalid alert status")

	// ErrVariantMismatch is returned when the populated payload does not match the discriminant.
	ErrVariantMismatch = errors.New("alert payload does not match its type")
)

// ParseType converts a wire literal into a Type. Upper case literals are accepted.
func ParseType(value string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(value)))
	switch t {
	case TypeTest, TypeModel, TypeSourceFreshness:
		return t, nil
	default:
		return "", fmt.Errorf("%w: '%s' (valid: test, model, source_freshness)", ErrInvalidType, value)
	}
}

// ParseDeliveryStatus converts a wire literal into a DeliveryStatus.
func ParseDeliveryStatus(value string) (DeliveryStatus, error) {
	s := DeliveryStatus(strings.ToLower(strings.TrimSpace(value)))
	switch s {
	case DeliveryPending, DeliverySent, DeliverySkipped:
		return s, nil
	default:
		return "", fmt.Errorf("%w: '%s' (valid: pending, sent, skipped)", ErrInvalidDeliveryStatus, value)
	}
}

// String returns the wire representation of the Type.
func (t Type) String() string {
	return string(t)
}

// Validate checks that exactly the payload named by Type is populated.
func (a Alert) Validate() error {
	populated := 0

	for _, set := range []bool{a.Test != nil, a.Model != nil, a.SourceFreshness != nil} {
		if set {
			populated++
		}
	}

	if populated != 1 || a.Base() == nil {
		return fmt.Errorf("%w: type '%s' with %d payloads", ErrVariantMismatch, a.Type, populated)
	}

	return nil
}

// Base returns the shared payload fields, or nil when the payload for Type is missing.
func (a Alert) Base() *BaseData {
	switch a.Type {
	case TypeTest:
		if a.Test != nil {
			return &a.Test.BaseData
		}
	case TypeModel:
		if a.Model != nil {
			return &a.Model.BaseData
		}
	case TypeSourceFreshness:
		if a.SourceFreshness != nil {
			return &a.SourceFreshness.BaseData
		}
	}

	return nil
}

// Tags returns the normalized tags of the alert.
func (a Alert) Tags() []string {
	if base := a.Base(); base != nil {
		return base.Tags
	}

	return nil
}

// ModelUniqueID returns the unique id of the model or source the alert is attached to.
func (a Alert) ModelUniqueID() string {
	if base := a.Base(); base != nil {
		return base.ModelUniqueID
	}

	return ""
}

// ResultStatus returns the status of the failing run, e.g. "fail" or "warn".
func (a Alert) ResultStatus() filters.Status {
	if base := a.Base(); base != nil {
		return filters.Status(base.Status)
	}

	return ""
}

// ResourceType maps the alert variant onto the filter resource type.
func (a Alert) ResourceType() filters.ResourceType {
	switch a.Type {
	case TypeTest:
		return filters.ResourceTypeTest
	case TypeModel:
		return filters.ResourceTypeModel
	case TypeSourceFreshness:
		return filters.ResourceTypeSourceFreshness
	default:
		return ""
	}
}

// NodeName is the name node-name selectors compare against:
// the test name for tests, the model unique id otherwise.
func (a Alert) NodeName() string {
	switch a.Type {
	case TypeTest:
		if a.Test != nil {
			return a.Test.TestName
		}
	case TypeModel, TypeSourceFreshness:
		return a.ModelUniqueID()
	}

	return ""
}

// UnifiedMeta merges model meta and, for tests, test meta. alerts_config entries are lifted
// to the top level; test meta wins over model meta.
func (a Alert) UnifiedMeta() map[string]any {
	unified := make(map[string]any)

	for _, meta := range a.metas() {
		for k, v := range meta {
			unified[k] = v
		}
	}

	return unified
}

// UnifiedOwners returns the configured owners followed by the owners declared in meta,
// without duplicates.
func (a Alert) UnifiedOwners() []string {
	base := a.Base()
	if base == nil {
		return nil
	}

	return canonicalization.MergeStringLists(base.Owners, a.metaAttribute(metaOwnerKey))
}

// Subscribers returns the subscribers declared in meta.
func (a Alert) Subscribers() []string {
	return a.metaAttribute(metaSubscribersKey)
}

// Description returns the meta description, falling back to the test description.
func (a Alert) Description() string {
	if d, ok := a.UnifiedMeta()[metaDescriptionKey].(string); ok && d != "" {
		return d
	}

	if a.Type == TypeTest && a.Test != nil {
		return a.Test.TestDescription
	}

	return ""
}

func (a Alert) metas() []map[string]any {
	base := a.Base()
	if base == nil {
		return nil
	}

	metas := []map[string]any{canonicalization.FlattenByKey(base.ModelMeta, metaAlertsConfigKey)}

	if a.Type == TypeTest {
		metas = append(metas, canonicalization.FlattenByKey(a.Test.TestMeta, metaAlertsConfigKey))
	}

	return metas
}

func (a Alert) metaAttribute(key string) []string {
	lists := make([][]string, 0, 2)

	for _, meta := range a.metas() {
		if v, ok := meta[key]; ok {
			lists = append(lists, canonicalization.NormalizeStringList(v))
		}
	}

	return canonicalization.MergeStringLists(lists...)
}
