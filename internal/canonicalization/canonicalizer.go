// Package canonicalization provides canonical keys and value normalization for monitoring records.
//
// Warehouse rows arrive as loosely typed values: JSON documents stored as text, lists stored
// as JSON strings or comma separated text, timestamps as driver values or strings. This package
// turns them into canonical Go values so filtering and aggregation never probe raw shapes.
//
// Key functions:
//   - ContentKey: identity of a record as "id:sha256(canonical JSON)"
//   - ParseUniqueID: splits a dbt unique id ("model.jaffle_shop.orders") into its parts
//   - NormalizeStringList, DecodeDict, FlattenByKey, ParseTimestamp: value normalization
package canonicalization

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	// minUniqueIDParts is resource type, package and name.
	minUniqueIDParts = 3
)

// Sentinel errors for canonicalization operations.
var (
	// ErrEmptyRecordID is returned when a content key is requested for a record without id.
	ErrEmptyRecordID = errors.New("record id cannot be empty")

	// ErrUnencodableRecord is returned when a record cannot be serialized canonically.
	ErrUnencodableRecord = errors.New("record cannot be canonically encoded")

	// ErrInvalidUniqueID is returned when a dbt unique id does not have the expected shape.
	ErrInvalidUniqueID = errors.New("invalid unique id format: expected 'resource_type.package.name'")
)

// UniqueID is a parsed dbt node unique id.
type UniqueID struct {
	ResourceType string
	Package      string
	// Name is everything after the package, so versioned or test hashes stay intact.
	Name string
}

// ContentKey returns the identity key of a record: its id plus a SHA-256 of its canonical JSON.
//
// Two records share a key only when both their id and their full content agree. Map keys are
// serialized in sorted order, so the key does not depend on map iteration order.
//
// Examples:
//   - ContentKey("a1", alert) → "a1:9f86d0..."
//   - same id, different late-bound field → different key
func ContentKey(id string, record any) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", ErrEmptyRecordID
	}

	encoded, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnencodableRecord, err)
	}

	return id + ":" + hashSHA256(encoded), nil
}

// ParseUniqueID splits a dbt unique id into resource type, package and name.
//
// Examples:
//   - "model.jaffle_shop.orders" → {model, jaffle_shop, orders}
//   - "test.jaffle_shop.unique_orders_id.fed9c1b8a2" → {test, jaffle_shop, unique_orders_id.fed9c1b8a2}
//   - "orders" → ErrInvalidUniqueID
func ParseUniqueID(uniqueID string) (UniqueID, error) {
	trimmed := strings.TrimSpace(uniqueID)

	parts := strings.SplitN(trimmed, ".", minUniqueIDParts)
	if len(parts) != minUniqueIDParts {
		return UniqueID{}, fmt.Errorf("%w: '%s'", ErrInvalidUniqueID, uniqueID)
	}

	for _, part := range parts {
		if part == "" {
			return UniqueID{}, fmt.Errorf("%w: '%s'", ErrInvalidUniqueID, uniqueID)
		}
	}

	return UniqueID{ResourceType: parts[0], Package: parts[1], Name: parts[2]}, nil
}

// ShortName returns the node name of a dbt unique id, or the input unchanged when it is not one.
func ShortName(uniqueID string) string {
	parsed, err := ParseUniqueID(uniqueID)
	if err != nil {
		return uniqueID
	}

	return parsed.Name
}

// hashSHA256 returns the lowercase hex SHA-256 of input.
func hashSHA256(input []byte) string {
	hash := sha256.Sum256(input)

	return hex.EncodeToString(hash[:])
}
