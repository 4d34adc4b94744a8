package canonicalization

import (
	"errors"
	"strings"
	"testing"
)

// ==============================================================================
// Unit Tests: Content Keys
// ==============================================================================

type record struct {
	ID     string            `json:"id"`
	Status string            `json:"status"`
	Meta   map[string]string `json:"meta"`
}

func TestContentKey_Deterministic(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	r := record{ID: "a1", Status: "fail", Meta: map[string]string{"z": "1", "a": "2", "m": "3"}}

	key1, err := ContentKey(r.ID, r)
	if err != nil {
		t.Fatalf("ContentKey() unexpected error = %v", err)
	}

	for i := 0; i < 20; i++ {
		key2, err := ContentKey(r.ID, record{ID: "a1", Status: "fail", Meta: map[string]string{"m": "3", "a": "2", "z": "1"}})
		if err != nil {
			t.Fatalf("ContentKey() unexpected error = %v", err)
		}

		if key1 != key2 {
			t.Fatalf("ContentKey() not deterministic: %s vs %s", key1, key2)
		}
	}

	if !strings.HasPrefix(key1, "a1:") {
		t.Errorf("ContentKey() = %s, want prefix 'a1:'", key1)
	}

	if len(key1) != len("a1:")+64 {
		t.Errorf("ContentKey() returned %d chars, expected id + 64 hex chars", len(key1))
	}
}

func TestContentKey_IdAndContentBothMatter(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	base := record{ID: "a1", Status: "fail"}

	sameIDOtherContent := record{ID: "a1", Status: "warn"}
	otherIDSameContent := base

	k1, _ := ContentKey("a1", base)
	k2, _ := ContentKey("a1", sameIDOtherContent)
	k3, _ := ContentKey("a2", otherIDSameContent)

	if k1 == k2 {
		t.Error("ContentKey() equal for records with same id but different content")
	}

	if k1 == k3 {
		t.Error("ContentKey() equal for records with different ids")
	}
}

func TestContentKey_Errors(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	if _, err := ContentKey("  ", record{}); !errors.Is(err, ErrEmptyRecordID) {
		t.Errorf("ContentKey() error = %v, want ErrEmptyRecordID", err)
	}

	if _, err := ContentKey("a1", map[string]any{"ch": make(chan int)}); !errors.Is(err, ErrUnencodableRecord) {
		t.Errorf("ContentKey() error = %v, want ErrUnencodableRecord", err)
	}
}

// ==============================================================================
// Unit Tests: Unique IDs
// ==============================================================================

func TestParseUniqueID(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name    string
		input   string
		want    UniqueID
		wantErr bool
	}{
		{
			name:  "model",
			input: "model.jaffle_shop.orders",
			want:  UniqueID{ResourceType: "model", Package: "jaffle_shop", Name: "orders"},
		},
		{
			name:  "test with hash",
			input: "test.jaffle_shop.unique_orders_id.fed9c1b8a2",
			want:  UniqueID{ResourceType: "test", Package: "jaffle_shop", Name: "unique_orders_id.fed9c1b8a2"},
		},
		{
			name:  "source",
			input: " source.jaffle_shop.raw.customers ",
			want:  UniqueID{ResourceType: "source", Package: "jaffle_shop", Name: "raw.customers"},
		},
		{name: "bare name", input: "orders", wantErr: true},
		{name: "two parts", input: "model.orders", wantErr: true},
		{name: "empty package", input: "model..orders", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUniqueID(tt.input)

			if tt.wantErr {
				if !errors.Is(err, ErrInvalidUniqueID) {
					t.Errorf("ParseUniqueID(%q) error = %v, want ErrInvalidUniqueID", tt.input, err)
				}

				return
			}

			if err != nil {
				t.Fatalf("ParseUniqueID(%q) unexpected error = %v", tt.input, err)
			}

			if got != tt.want {
				t.Errorf("ParseUniqueID(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestShortName(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	if got := ShortName("model.jaffle_shop.orders"); got != "orders" {
		t.Errorf("ShortName() = %s, want orders", got)
	}

	if got := ShortName("orders"); got != "orders" {
		t.Errorf("ShortName() = %s, want orders (passthrough)", got)
	}
}
