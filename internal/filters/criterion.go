// Package filters provides the alert and report filter model: criteria, filter sets and the
// parsers that build them from CLI clauses and free-text selectors.
package filters

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Operator is the comparison applied by a Criterion.
type Operator string

const (
	// OperatorIs matches when the candidate equals one of the criterion values.
	OperatorIs Operator = "is"

	// OperatorIsNot matches when the candidate equals none of the criterion values.
	OperatorIsNot Operator = "is_not"

	// OperatorContains matches when one of the criterion values is a case-insensitive
	// substring of the candidate.
	OperatorContains Operator = "contains"
)

// ErrUnsupportedOperator is returned when an operator literal is not recognized.
var ErrUnsupportedOperator = errors.New("unsupported filter operator")

// ParseOperator converts a wire literal into an Operator.
func ParseOperator(value string) (Operator, error) {
	op := Operator(strings.ToLower(strings.TrimSpace(value)))
	if !op.IsValid() {
		return "", fmt.Errorf("%w: '%s'", ErrUnsupportedOperator, value)
	}

	return op, nil
}

// IsValid checks if the Operator is one of the supported operators.
func (o Operator) IsValid() bool {
	switch o {
	case OperatorIs, OperatorIsNot, OperatorContains:
		return true
	default:
		return false
	}
}

// matchesAll reports whether the operator needs every candidate to satisfy it.
// IS and CONTAINS are "any" operators, IS_NOT is an "all" operator.
func (o Operator) matchesAll() bool {
	return o == OperatorIsNot
}

// String returns the wire representation of the Operator.
func (o Operator) String() string {
	return string(o)
}

// Criterion is a single filter clause. The relation between its values is OR.
//
// Criteria are immutable after construction; the type parameter lets status and resource type
// criteria carry their enumerations instead of raw strings.
type Criterion[T ~string] struct {
	Values   []T      `json:"values"`
	Operator Operator `json:"operator"`
}

// NewCriterion builds a Criterion after validating the operator.
func NewCriterion[T ~string](op Operator, values ...T) (Criterion[T], error) {
	if !op.IsValid() {
		return Criterion[T]{}, fmt.Errorf("%w: '%s'", ErrUnsupportedOperator, op)
	}

	copied := make([]T, len(values))
	copy(copied, values)

	return Criterion[T]{Values: copied, Operator: op}, nil
}

// Is builds an IS criterion.
func Is[T ~string](values ...T) Criterion[T] {
	c, _ := NewCriterion(OperatorIs, values...)

	return c
}

// IsNot builds an IS_NOT criterion.
func IsNot[T ~string](values ...T) Criterion[T] {
	c, _ := NewCriterion(OperatorIsNot, values...)

	return c
}

// Contains builds a CONTAINS criterion.
func Contains[T ~string](values ...T) Criterion[T] {
	c, _ := NewCriterion(OperatorContains, values...)

	return c
}

// MatchValue applies the criterion to a single candidate value.
func (c Criterion[T]) MatchValue(value T) bool {
	switch c.Operator {
	case OperatorIs:
		return c.hasValue(value)
	case OperatorIsNot:
		return !c.hasValue(value)
	case OperatorContains:
		return c.containsValue(value)
	default:
		slog.Error("Unsupported filter operator", slog.String("operator", string(c.Operator)))

		return false
	}
}

// MatchValues applies the criterion to a collection of candidates.
//
// IS and CONTAINS match when any candidate matches. IS_NOT matches only when no candidate
// appears in the criterion values.
func (c Criterion[T]) MatchValues(values []T) bool {
	if !c.Operator.IsValid() {
		slog.Error("Unsupported filter operator", slog.String("operator", string(c.Operator)))

		return false
	}

	if c.Operator.matchesAll() {
		for _, value := range values {
			if !c.MatchValue(value) {
				return false
			}
		}

		return true
	}

	for _, value := range values {
		if c.MatchValue(value) {
			return true
		}
	}

	return false
}

// MatchingValues returns the candidates that satisfy the criterion, each at most once,
// in input order.
func (c Criterion[T]) MatchingValues(values []T) []T {
	matching := make([]T, 0, len(values))
	seen := make(map[T]struct{}, len(values))

	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}

		if c.MatchValue(value) {
			seen[value] = struct{}{}
			matching = append(matching, value)
		}
	}

	return matching
}

// Strings returns the criterion values as plain strings.
func (c Criterion[T]) Strings() []string {
	out := make([]string, len(c.Values))
	for i, v := range c.Values {
		out[i] = string(v)
	}

	return out
}

func (c Criterion[T]) hasValue(value T) bool {
	for _, v := range c.Values {
		if v == value {
			return true
		}
	}

	return false
}

func (c Criterion[T]) containsValue(value T) bool {
	candidate := strings.ToLower(string(value))

	for _, v := range c.Values {
		if strings.Contains(candidate, strings.ToLower(string(v))) {
			return true
		}
	}

	return false
}
