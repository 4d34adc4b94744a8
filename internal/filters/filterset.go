package filters

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type (
	// Status is the outcome of a test, model run or source freshness check as used by filters.
	Status string

	// ResourceType identifies the kind of node an alert was raised for.
	ResourceType string

	// FilterSet is the full set of constraints applied to an alert or report collection.
	//
	// Dimensions compose OR within a criterion and AND across criteria and across dimensions.
	// An empty dimension imposes no constraint, except Statuses which defaults to the
	// actionable statuses (see NewFilterSet).
	//
	// InvocationID, InvocationTime and LastInvocation scope the set to reports. Applying a
	// report-scoped set to alerts yields no alerts.
	FilterSet struct {
		Selector       string
		InvocationID   string
		InvocationTime *time.Time
		LastInvocation bool

		// NodeNames is a flat OR list. Nil means no constraint.
		NodeNames []string
		// ExcludedNodeNames drops every node matching one of its names.
		ExcludedNodeNames []string

		Tags          []Criterion[string]
		Owners        []Criterion[string]
		Models        []Criterion[string]
		Statuses      []Criterion[Status]
		ResourceTypes []Criterion[ResourceType]
	}
)

const (
	StatusWarn         Status = "warn"
	StatusFail         Status = "fail"
	StatusSkipped      Status = "skipped"
	StatusError        Status = "error"
	StatusRuntimeError Status = "runtime error"

	ResourceTypeTest            ResourceType = "test"
	ResourceTypeModel           ResourceType = "model"
	ResourceTypeSourceFreshness ResourceType = "source_freshness"
)

// Report selector keys. A selector containing any of them targets reports, not alerts.
const (
	selectorLastInvocation = "last_invocation"
	selectorInvocationID   = "invocation_id"
	selectorInvocationTime = "invocation_time"
)

var (
	// ErrInvalidStatus is returned when a status literal is not recognized.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidResourceType is returned when a resource type literal is not recognized.
	ErrInvalidResourceType = errors.New("invalid resource type")

	// ErrInvalidSelector is returned when a selector is used with the wrong grammar.
	ErrInvalidSelector = errors.New("invalid selector")

	reportSelectorKeys = []string{selectorLastInvocation, selectorInvocationID, selectorInvocationTime}
)

// DefaultStatuses returns the statuses shown when no status filter is given.
func DefaultStatuses() []Status {
	return []Status{StatusFail, StatusError, StatusRuntimeError, StatusWarn}
}

// ParseStatus converts a wire literal into a Status.
func ParseStatus(value string) (Status, error) {
	s := Status(strings.TrimSpace(value))
	switch s {
	case StatusWarn, StatusFail, StatusSkipped, StatusError, StatusRuntimeError:
		return s, nil
	default:
		return "", fmt.Errorf("%w: '%s' (valid: fail, error, skipped, warn, runtime error)", ErrInvalidStatus, value)
	}
}

// ParseResourceType converts a wire literal into a ResourceType.
func ParseResourceType(value string) (ResourceType, error) {
	rt := ResourceType(strings.TrimSpace(value))
	switch rt {
	case ResourceTypeTest, ResourceTypeModel, ResourceTypeSourceFreshness:
		return rt, nil
	default:
		return "", fmt.Errorf("%w: '%s' (valid: test, model, source_freshness)", ErrInvalidResourceType, value)
	}
}

// String returns the wire representation of the Status.
func (s Status) String() string {
	return string(s)
}

// String returns the wire representation of the ResourceType.
func (rt ResourceType) String() string {
	return string(rt)
}

// NewFilterSet returns the default filter set: no constraints besides the actionable statuses.
func NewFilterSet() *FilterSet {
	return &FilterSet{
		Statuses: []Criterion[Status]{Is(DefaultStatuses()...)},
	}
}

// IsReportScoped reports whether the set targets reports rather than alerts.
func (fs *FilterSet) IsReportScoped() bool {
	return fs.InvocationID != "" || fs.InvocationTime != nil || fs.LastInvocation
}

// ValidateReportSelector fails unless the selector is empty or uses one of the report keys.
func (fs *FilterSet) ValidateReportSelector() error {
	if fs.Selector == "" {
		return nil
	}

	if !hasReportSelectorKey(fs.Selector) {
		return fmt.Errorf("%w for report: '%s'", ErrInvalidSelector, fs.Selector)
	}

	return nil
}

// ValidateAlertSelector fails if the selector uses one of the report keys.
func (fs *FilterSet) ValidateAlertSelector() error {
	if fs.Selector == "" {
		return nil
	}

	if hasReportSelectorKey(fs.Selector) {
		return fmt.Errorf("%w for alerts: '%s'", ErrInvalidSelector, fs.Selector)
	}

	return nil
}

func hasReportSelectorKey(selector string) bool {
	for _, key := range reportSelectorKeys {
		if strings.Contains(selector, key) {
			return true
		}
	}

	return false
}
