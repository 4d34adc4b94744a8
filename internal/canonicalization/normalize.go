package canonicalization

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNotADict is returned when a value is neither a JSON object nor a map.
	ErrNotADict = errors.New("value is not a JSON object")

	// ErrInvalidTimestamp is returned when a value cannot be read as a timestamp.
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrNotANumber is returned when a value cannot be read as a number.
	ErrNotANumber = errors.New("value is not a number")
)

// timestampLayouts are the textual timestamp forms warehouses return, most specific first.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// NormalizeStringList flattens a loosely typed list value into deduplicated strings.
//
// Accepted shapes:
//   - nil or "" → nil
//   - []string / []any → each element as is, recursively
//   - `["a", "b"]` (JSON-encoded list) → "a", "b"
//   - `["Doe, John"]` → "Doe, John"
//   - "a, b" (plain text) → "a", "b"
//   - "one" → "one"
//
// Order of first appearance is preserved.
func NormalizeStringList(value any) []string {
	var out []string

	seen := make(map[string]struct{})

	collectStrings(value, func(s string) {
		if _, ok := seen[s]; ok {
			return
		}

		seen[s] = struct{}{}
		out = append(out, s)
	})

	return out
}

// MergeStringLists concatenates lists and removes duplicates, keeping first appearance order.
func MergeStringLists(lists ...[]string) []string {
	merged := make([]any, 0, len(lists))
	for _, list := range lists {
		merged = append(merged, list)
	}

	return NormalizeStringList(merged)
}

// collectStrings splits plain text on commas. Strings that are list elements or
// come out of JSON are kept whole.
func collectStrings(value any, add func(string)) {
	switch v := value.(type) {
	case string:
		collectText(v, add)
	case []byte:
		collectText(string(v), add)
	default:
		collectElements(v, add)
	}
}

func collectElements(value any, add func(string)) {
	switch v := value.(type) {
	case nil:
	case string:
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			add(trimmed)
		}
	case []string:
		for _, s := range v {
			collectElements(s, add)
		}
	case []any:
		for _, item := range v {
			collectElements(item, add)
		}
	default:
		add(fmt.Sprint(v))
	}
}

func collectText(s string, add func(string)) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || trimmed == "null" {
		return
	}

	if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, `"`) {
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			collectElements(decoded, add)

			return
		}
	}

	for _, part := range strings.Split(trimmed, ",") {
		if p := strings.TrimSpace(part); p != "" {
			add(p)
		}
	}
}

// DecodeDict reads a JSON object stored as text, bytes or an already decoded map.
// Absent values (nil, "", "null") decode to an empty map.
func DecodeDict(value any) (map[string]any, error) {
	switch v := value.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	case string:
		return decodeDictString(v)
	case []byte:
		return decodeDictString(string(v))
	default:
		return nil, fmt.Errorf("%w: got %T", ErrNotADict, value)
	}
}

func decodeDictString(s string) (map[string]any, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || trimmed == "null" {
		return map[string]any{}, nil
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotADict, err)
	}

	if decoded == nil {
		return map[string]any{}, nil
	}

	return decoded, nil
}

// FlattenByKey lifts the entries of dict[key] to the top level and drops key.
// Nested entries override top level entries with the same name.
//
// Example:
//
//	FlattenByKey({"owner": "a", "alerts_config": {"channel": "c"}}, "alerts_config")
//	→ {"owner": "a", "channel": "c"}
func FlattenByKey(dict map[string]any, key string) map[string]any {
	flat := make(map[string]any, len(dict))

	for k, v := range dict {
		if k != key {
			flat[k] = v
		}
	}

	nested, err := DecodeDict(dict[key])
	if err != nil {
		return flat
	}

	for k, v := range nested {
		flat[k] = v
	}

	return flat
}

// ParseTimestamp reads a driver time value or a textual timestamp. Results are in UTC;
// timestamps without a zone are taken as UTC.
func ParseTimestamp(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC(), nil
	case *time.Time:
		if v == nil {
			return time.Time{}, fmt.Errorf("%w: nil", ErrInvalidTimestamp)
		}

		return v.UTC(), nil
	case string:
		return parseTimestampString(v)
	case []byte:
		return parseTimestampString(string(v))
	default:
		return time.Time{}, fmt.Errorf("%w: got %T", ErrInvalidTimestamp, value)
	}
}

func parseTimestampString(s string) (time.Time, error) {
	trimmed := strings.TrimSpace(s)

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: '%s'", ErrInvalidTimestamp, s)
}

// String reads a scalar as text. Nil reads as "".
func String(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}

// Int reads an integer from driver values, JSON numbers or numeric text.
// The second result is false for nil.
func Int(value any) (int64, bool, error) {
	switch v := value.(type) {
	case nil:
		return 0, false, nil
	case int:
		return int64(v), true, nil
	case int32:
		return int64(v), true, nil
	case int64:
		return v, true, nil
	case float64:
		return int64(v), true, nil
	case float32:
		return int64(v), true, nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false, fmt.Errorf("%w: '%s'", ErrNotANumber, v)
		}

		return n, true, nil
	case string, []byte:
		text := strings.TrimSpace(String(v))
		if text == "" {
			return 0, false, nil
		}

		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(text, 64)
			if ferr != nil {
				return 0, false, fmt.Errorf("%w: '%s'", ErrNotANumber, text)
			}

			return int64(f), true, nil
		}

		return n, true, nil
	default:
		return 0, false, fmt.Errorf("%w: got %T", ErrNotANumber, value)
	}
}

// Float reads a float from driver values, JSON numbers or numeric text.
// The second result is false for nil.
func Float(value any) (float64, bool, error) {
	switch v := value.(type) {
	case nil:
		return 0, false, nil
	case float64:
		return v, true, nil
	case float32:
		return float64(v), true, nil
	case int:
		return float64(v), true, nil
	case int64:
		return float64(v), true, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false, fmt.Errorf("%w: '%s'", ErrNotANumber, v)
		}

		return f, true, nil
	case string, []byte:
		text := strings.TrimSpace(String(v))
		if text == "" {
			return 0, false, nil
		}

		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return 0, false, fmt.Errorf("%w: '%s'", ErrNotANumber, text)
		}

		return f, true, nil
	default:
		return 0, false, fmt.Errorf("%w: got %T", ErrNotANumber, value)
	}
}

// Bool reads a boolean from driver values or text. Unknown values read as false.
func Bool(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case int:
		return v != 0
	case string, []byte:
		b, err := strconv.ParseBool(strings.TrimSpace(String(v)))

		return err == nil && b
	default:
		return false
	}
}
