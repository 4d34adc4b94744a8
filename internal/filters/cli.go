package filters

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
)

// CLI clause dimension prefixes.
const (
	keyTags          = "tags"
	keyOwners        = "owners"
	keyModels        = "models"
	keyStatuses      = "statuses"
	keyResourceTypes = "resource_types"
)

type (
	// NodeResolver resolves a selector expression into the node names it selects.
	// Implementations live in internal/selection.
	NodeResolver interface {
		Resolve(ctx context.Context, selector string) ([]string, error)
	}

	// ParseOption configures FromCLIParams and ParseSelector.
	ParseOption func(*parseOptions)

	parseOptions struct {
		resolver NodeResolver
		logger   *slog.Logger
	}

	// clauses accumulates criteria for one side (include or exclude) of the CLI input.
	clauses struct {
		tags          []Criterion[string]
		owners        []Criterion[string]
		models        []Criterion[string]
		statuses      []Criterion[Status]
		resourceTypes []Criterion[ResourceType]
		nodeNames     []string
	}
)

// WithNodeResolver sets the resolver used for graph-operator model clauses and dbt selectors.
func WithNodeResolver(r NodeResolver) ParseOption {
	return func(o *parseOptions) {
		o.resolver = r
	}
}

// WithLogger sets the logger used for non-fatal parse diagnostics.
func WithLogger(logger *slog.Logger) ParseOption {
	return func(o *parseOptions) {
		o.logger = logger
	}
}

func newParseOptions(opts []ParseOption) *parseOptions {
	o := &parseOptions{}
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = slog.Default()
	}

	return o
}

// FromCLIParams builds a FilterSet from structured `dimension:v1,v2` clauses.
//
// Each clause becomes its own criterion; repeated clauses for one dimension are AND-ed.
// Exclude clauses build IS_NOT criteria placed after the include criteria of the same
// dimension. Unknown dimensions are logged and skipped. Invalid status or resource type
// literals abort the parse.
//
// When a NodeResolver is configured, model clauses using dbt graph operators ("+orders",
// "orders+", "@orders") are resolved into NodeNames instead of a model criterion. Resolved
// exclude clauses become ExcludedNodeNames.
func FromCLIParams(ctx context.Context, filters, excludes []string, opts ...ParseOption) (*FilterSet, error) {
	o := newParseOptions(opts)

	include, err := parseClauses(ctx, filters, OperatorIs, o)
	if err != nil {
		return nil, err
	}

	exclude, err := parseClauses(ctx, excludes, OperatorIsNot, o)
	if err != nil {
		return nil, err
	}

	fs := NewFilterSet()
	fs.Tags = append(include.tags, exclude.tags...)
	fs.Owners = append(include.owners, exclude.owners...)
	fs.Models = append(include.models, exclude.models...)
	fs.ResourceTypes = append(include.resourceTypes, exclude.resourceTypes...)

	// Without explicit status includes the default statuses still apply, after the excludes.
	if len(include.statuses) > 0 {
		fs.Statuses = append(include.statuses, exclude.statuses...)
	} else {
		fs.Statuses = append(exclude.statuses, fs.Statuses...)
	}

	if include.nodeNames != nil {
		fs.NodeNames = include.nodeNames
	}

	fs.ExcludedNodeNames = exclude.nodeNames

	return fs, nil
}

func parseClauses(ctx context.Context, raw []string, op Operator, o *parseOptions) (*clauses, error) {
	out := &clauses{}

	for _, clause := range raw {
		key, values, ok := splitClause(clause)
		if !ok {
			o.logger.Warn("Skipping filter clause without values",
				slog.String("clause", clause),
				slog.String("operator", op.String()))

			continue
		}

		switch key {
		case keyTags:
			out.tags = append(out.tags, Criterion[string]{Values: values, Operator: op})
		case keyOwners:
			out.owners = append(out.owners, Criterion[string]{Values: values, Operator: op})
		case keyModels:
			if err := out.addModels(ctx, values, op, o); err != nil {
				return nil, err
			}
		case keyStatuses:
			statuses := make([]Status, 0, len(values))

			for _, v := range values {
				s, err := ParseStatus(v)
				if err != nil {
					return nil, err
				}

				statuses = append(statuses, s)
			}

			out.statuses = append(out.statuses, Criterion[Status]{Values: statuses, Operator: op})
		case keyResourceTypes:
			types := make([]ResourceType, 0, len(values))

			for _, v := range values {
				rt, err := ParseResourceType(v)
				if err != nil {
					return nil, err
				}

				types = append(types, rt)
			}

			out.resourceTypes = append(out.resourceTypes, Criterion[ResourceType]{Values: types, Operator: op})
		default:
			o.logger.Warn("Unsupported filter key, skipping",
				slog.String("clause", clause),
				slog.String("key", key))
		}
	}

	return out, nil
}

func (c *clauses) addModels(ctx context.Context, values []string, op Operator, o *parseOptions) error {
	if o.resolver == nil {
		for _, v := range values {
			if hasGraphOperator(v) {
				o.logger.Warn("No selector resolver configured, graph operator kept as a literal model name",
					slog.String("model", v),
					slog.String("operator", op.String()))
			}
		}

		c.models = append(c.models, Criterion[string]{Values: values, Operator: op})

		return nil
	}

	literal := make([]string, 0, len(values))

	for _, v := range values {
		if !hasGraphOperator(v) {
			literal = append(literal, v)

			continue
		}

		nodes, err := o.resolver.Resolve(ctx, v)
		if err != nil {
			return fmt.Errorf("failed to resolve model selector '%s': %w", v, err)
		}

		if c.nodeNames == nil {
			c.nodeNames = []string{}
		}

		c.nodeNames = append(c.nodeNames, nodes...)
	}

	if len(literal) > 0 {
		c.models = append(c.models, Criterion[string]{Values: literal, Operator: op})
	}

	return nil
}

// splitClause splits "key:v1,v2" into its key and trimmed non-empty values.
func splitClause(clause string) (string, []string, bool) {
	key, rest, found := strings.Cut(clause, ":")
	if !found {
		return strings.TrimSpace(clause), nil, false
	}

	values := make([]string, 0)

	for _, part := range strings.Split(rest, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}

	return strings.TrimSpace(key), values, len(values) > 0
}

// hasGraphOperator reports whether a model value uses dbt graph selection syntax:
// "+name", "name+", "2+name", "name+3" or "@name".
func hasGraphOperator(value string) bool {
	if strings.HasPrefix(value, "@") {
		return true
	}

	trimmed := strings.TrimLeftFunc(value, unicode.IsDigit)
	if strings.HasPrefix(trimmed, "+") {
		return true
	}

	trimmed = strings.TrimRightFunc(value, unicode.IsDigit)

	return strings.HasSuffix(trimmed, "+")
}
