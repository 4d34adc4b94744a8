package alerts

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/correlator-io/alertmon/internal/canonicalization"
	"github.com/correlator-io/alertmon/internal/filters"
)

// keyedAlert pairs an alert with its content identity so keys are computed once per pass.
type keyedAlert struct {
	alert Alert
	key   string
}

// FilterAlerts returns the alerts that satisfy every dimension of fs.
//
// Dimensions are applied in order: tags, models, owners, statuses, resource types, included
// node names and excluded node names, each narrowing the output of the previous one. Within
// a dimension every criterion selects an OR subset of the running set; the subsets are
// intersected by content identity.
// Input order is preserved and the input is never modified.
//
// A report-scoped fs (invocation id, invocation time or last invocation) matches no alert:
// a warning is logged and an empty slice returned. A nil fs applies the default filter set.
func FilterAlerts(alerts []Alert, fs *filters.FilterSet, logger *slog.Logger) []Alert {
	if logger == nil {
		logger = slog.Default()
	}

	if fs == nil {
		fs = filters.NewFilterSet()
	}

	if fs.IsReportScoped() {
		logger.Warn("Invalid filter for alerts", slog.String("selector", fs.Selector))

		return []Alert{}
	}

	running := keyAlerts(alerts, logger)

	running = filterDimension(running, fs.Tags, matchTags, logger)
	running = filterDimension(running, fs.Models, matchModel, logger)
	running = filterDimension(running, fs.Owners, matchOwners, logger)
	running = filterDimension(running, fs.Statuses, matchStatus, logger)
	running = filterDimension(running, fs.ResourceTypes, matchResourceType, logger)

	if fs.NodeNames != nil {
		running = filterNodeNames(running, fs.NodeNames, true)
	}

	if len(fs.ExcludedNodeNames) > 0 {
		running = filterNodeNames(running, fs.ExcludedNodeNames, false)
	}

	filtered := make([]Alert, len(running))
	for i, k := range running {
		filtered[i] = k.alert
	}

	logger.Debug("Filtered alerts",
		slog.Int("input_count", len(alerts)),
		slog.Int("output_count", len(filtered)))

	return filtered
}

func keyAlerts(alerts []Alert, logger *slog.Logger) []keyedAlert {
	keyed := make([]keyedAlert, len(alerts))

	for i, alert := range alerts {
		key, err := canonicalization.ContentKey(alert.ID, alert)
		if err != nil {
			logger.Warn("Failed to compute alert identity, alert will not be deduplicated",
				slog.String("alert_id", alert.ID),
				slog.String("error", err.Error()))

			key = fmt.Sprintf("unkeyed:%d", i)
		}

		keyed[i] = keyedAlert{alert: alert, key: key}
	}

	return keyed
}

// filterDimension applies every criterion of one dimension to alerts and AND-combines the
// per-criterion subsets left to right. An empty criteria list passes alerts through.
func filterDimension[T ~string](
	alerts []keyedAlert,
	criteria []filters.Criterion[T],
	match func(filters.Criterion[T], Alert) bool,
	logger *slog.Logger,
) []keyedAlert {
	if len(criteria) == 0 {
		return alerts
	}

	var combined []keyedAlert

	for i, criterion := range criteria {
		subset := make([]keyedAlert, 0, len(alerts))

		for _, k := range alerts {
			if match(criterion, k.alert) {
				subset = append(subset, k)
			}
		}

		if i == 0 {
			combined = subset

			continue
		}

		combined = findCommon(combined, subset)
	}

	logger.Debug("Applied alert filter dimension",
		slog.Int("criteria", len(criteria)),
		slog.Int("input_count", len(alerts)),
		slog.Int("output_count", len(combined)))

	return combined
}

// findCommon returns the alerts present in both lists by content identity. The concatenation
// of first and second is walked in order and each identity is kept at most once.
func findCommon(first, second []keyedAlert) []keyedAlert {
	inFirst := make(map[string]struct{}, len(first))
	for _, k := range first {
		inFirst[k.key] = struct{}{}
	}

	inSecond := make(map[string]struct{}, len(second))
	for _, k := range second {
		inSecond[k.key] = struct{}{}
	}

	seen := make(map[string]struct{})
	common := make([]keyedAlert, 0, min(len(first), len(second)))

	for _, list := range [][]keyedAlert{first, second} {
		for _, k := range list {
			if _, ok := seen[k.key]; ok {
				continue
			}

			_, a := inFirst[k.key]
			_, b := inSecond[k.key]

			if a && b {
				seen[k.key] = struct{}{}
				common = append(common, k)
			}
		}
	}

	return common
}

func matchTags(c filters.Criterion[string], alert Alert) bool {
	return c.MatchValues(alert.Tags())
}

func matchOwners(c filters.Criterion[string], alert Alert) bool {
	return c.MatchValues(alert.UnifiedOwners())
}

func matchStatus(c filters.Criterion[filters.Status], alert Alert) bool {
	return c.MatchValue(alert.ResultStatus())
}

func matchResourceType(c filters.Criterion[filters.ResourceType], alert Alert) bool {
	return c.MatchValue(alert.ResourceType())
}

// matchModel compares the alert model unique id against model names by suffix, so "orders"
// matches "model.jaffle_shop.orders". Alerts without a model only pass IS_NOT criteria.
func matchModel(c filters.Criterion[string], alert Alert) bool {
	modelID := alert.ModelUniqueID()

	switch c.Operator {
	case filters.OperatorIs:
		return modelID != "" && hasModelSuffix(modelID, c.Values)
	case filters.OperatorIsNot:
		return modelID == "" || !hasModelSuffix(modelID, c.Values)
	default:
		return modelID != "" && c.MatchValue(modelID)
	}
}

func hasModelSuffix(modelID string, models []string) bool {
	for _, model := range models {
		if strings.HasSuffix(modelID, model) {
			return true
		}
	}

	return false
}

// filterNodeNames keeps the alerts whose node name ends with one of names or is a suffix of
// one when keep is true, and the alerts that match none of names otherwise. Alerts without a
// node name match nothing.
func filterNodeNames(alerts []keyedAlert, names []string, keep bool) []keyedAlert {
	filtered := make([]keyedAlert, 0, len(alerts))

	for _, k := range alerts {
		if nodeNameMatches(k.alert.NodeName(), names) == keep {
			filtered = append(filtered, k)
		}
	}

	return filtered
}

func nodeNameMatches(nodeName string, names []string) bool {
	if nodeName == "" {
		return false
	}

	for _, name := range names {
		if strings.HasSuffix(nodeName, name) || strings.HasSuffix(name, nodeName) {
			return true
		}
	}

	return false
}
