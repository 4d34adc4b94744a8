package filters

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrInvalidInvocationTime is returned when an invocation_time selector is not ISO-8601.
var ErrInvalidInvocationTime = errors.New("invalid invocation_time, please use a valid ISO 8601 format")

// invocationTimeLayouts are the ISO-8601 forms accepted by invocation_time selectors.
var invocationTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// selectorKinds lists free-text selector patterns in precedence order; the first match wins.
var selectorKinds = []struct {
	key   string
	apply func(fs *FilterSet, value string) error
}{
	{selectorLastInvocation, func(fs *FilterSet, _ string) error {
		fs.LastInvocation = true

		return nil
	}},
	{selectorInvocationID + ":", func(fs *FilterSet, value string) error {
		fs.InvocationID = value

		return nil
	}},
	{selectorInvocationTime + ":", func(fs *FilterSet, value string) error {
		t, err := ParseInvocationTime(value)
		if err != nil {
			return err
		}

		fs.InvocationTime = &t

		return nil
	}},
	{"tag:", func(fs *FilterSet, value string) error {
		fs.Tags = []Criterion[string]{Is(value)}

		return nil
	}},
	{"config.meta.owner:", func(fs *FilterSet, value string) error {
		fs.Owners = []Criterion[string]{Is(value)}

		return nil
	}},
	{"model:", func(fs *FilterSet, value string) error {
		fs.Models = []Criterion[string]{Is(value)}

		return nil
	}},
	{keyStatuses + ":", func(fs *FilterSet, value string) error {
		statuses := make([]Status, 0)

		for _, part := range strings.Split(value, ",") {
			s, err := ParseStatus(part)
			if err != nil {
				return err
			}

			statuses = append(statuses, s)
		}

		fs.Statuses = []Criterion[Status]{Is(statuses...)}

		return nil
	}},
	{keyResourceTypes + ":", func(fs *FilterSet, value string) error {
		types := make([]ResourceType, 0)

		for _, part := range strings.Split(value, ",") {
			rt, err := ParseResourceType(part)
			if err != nil {
				return err
			}

			types = append(types, rt)
		}

		fs.ResourceTypes = []Criterion[ResourceType]{Is(types...)}

		return nil
	}},
}

// unresolvableSelectorKeys mark selectors that a NodeResolver cannot answer.
var unresolvableSelectorKeys = []string{
	selectorLastInvocation,
	selectorInvocationID,
	selectorInvocationTime,
	keyStatuses,
	keyResourceTypes,
}

// ParseSelector parses a free-text selector into a FilterSet.
//
// With a NodeResolver configured, selectors that don't use a report, status or resource type
// key are resolved directly into NodeNames. Otherwise the selector is matched against the
// supported patterns in precedence order:
//
//	last_invocation > invocation_id:<id> > invocation_time:<iso8601> > tag:<name>
//	  > config.meta.owner:<name> > model:<name> > statuses:<list> > resource_types:<list>
//
// An unrecognized selector is logged and yields a filter set without constraints.
// A malformed invocation time, status or resource type is returned as an error.
func ParseSelector(ctx context.Context, selector string, opts ...ParseOption) (*FilterSet, error) {
	o := newParseOptions(opts)

	if selector == "" {
		return NewFilterSet(), nil
	}

	if o.resolver != nil && canResolve(selector) {
		nodes, err := o.resolver.Resolve(ctx, selector)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve selector '%s': %w", selector, err)
		}

		if nodes == nil {
			nodes = []string{}
		}

		fs := NewFilterSet()
		fs.Selector = selector
		fs.NodeNames = nodes

		o.logger.Debug("Resolved selector into node names",
			slog.String("selector", selector),
			slog.Int("node_count", len(nodes)))

		return fs, nil
	}

	for _, kind := range selectorKinds {
		value, ok := selectorValue(selector, kind.key)
		if !ok {
			continue
		}

		fs := NewFilterSet()
		fs.Selector = selector

		if err := kind.apply(fs, value); err != nil {
			o.logger.Error("Failed to parse selector",
				slog.String("selector", selector),
				slog.String("error", err.Error()))

			return nil, err
		}

		return fs, nil
	}

	o.logger.Error("Could not parse the given selector", slog.String("selector", selector))

	return &FilterSet{Selector: selector}, nil
}

// ParseInvocationTime parses an ISO-8601 timestamp. Timestamps without a zone are taken as UTC.
func ParseInvocationTime(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)

	for _, layout := range invocationTimeLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: '%s'", ErrInvalidInvocationTime, value)
}

// selectorValue finds key in selector and returns the text following it.
// Keys ending in ':' carry a value; bare keys only need to be present.
func selectorValue(selector, key string) (string, bool) {
	idx := strings.Index(selector, key)
	if idx < 0 {
		return "", false
	}

	return selector[idx+len(key):], true
}

func canResolve(selector string) bool {
	for _, key := range unresolvableSelectorKeys {
		if strings.Contains(selector, key) {
			return false
		}
	}

	return true
}
