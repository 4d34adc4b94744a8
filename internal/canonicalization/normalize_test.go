package canonicalization

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestNormalizeStringList(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  []string
	}{
		{name: "nil", input: nil, want: nil},
		{name: "empty string", input: "", want: nil},
		{name: "json null", input: "null", want: nil},
		{name: "string slice", input: []string{"one", "two"}, want: []string{"one", "two"}},
		{name: "any slice", input: []any{"one", "two", "one"}, want: []string{"one", "two"}},
		{name: "json encoded list", input: `["jeff", "john"]`, want: []string{"jeff", "john"}},
		{name: "json encoded bytes", input: []byte(`["jeff"]`), want: []string{"jeff"}},
		{name: "raw single value", input: "one", want: []string{"one"}},
		{name: "comma separated", input: "a, b ,c", want: []string{"a", "b", "c"}},
		{name: "json encoded string", input: `"finance"`, want: []string{"finance"}},
		{name: "nested lists", input: []any{[]string{"a", "b"}, []any{"c", "a"}}, want: []string{"a", "b", "c"}},
		{name: "json list keeps commas", input: `["team a, finance", " x "]`, want: []string{"team a, finance", "x"}},
		{name: "json string keeps commas", input: `"Doe, John"`, want: []string{"Doe, John"}},
		{name: "slice element keeps commas", input: []any{"a,b"}, want: []string{"a,b"}},
		{name: "string slice element keeps commas", input: []string{"Doe, John", "jeff"}, want: []string{"Doe, John", "jeff"}},
		{name: "non string elements", input: []any{1.0, true}, want: []string{"1", "true"}},
		{name: "broken json falls back to text", input: `[a, b`, want: []string{"[a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeStringList(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeStringList(%v) = %#v, want %#v", tt.input, got, tt.want)
			}
		})
	}
}

func TestMergeStringLists(t *testing.T) {
	got := MergeStringLists([]string{"jeff", "john"}, nil, []string{"john", "alice"})
	want := []string{"jeff", "john", "alice"}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergeStringLists() = %v, want %v", got, want)
	}
}

func TestDecodeDict(t *testing.T) {
	for _, input := range []any{nil, "", "null", "  "} {
		got, err := DecodeDict(input)
		if err != nil {
			t.Fatalf("DecodeDict(%v) unexpected error = %v", input, err)
		}

		if got == nil || len(got) != 0 {
			t.Errorf("DecodeDict(%v) = %v, want empty map", input, got)
		}
	}

	got, err := DecodeDict(`{"owner": "jeff", "n": 1}`)
	if err != nil {
		t.Fatalf("DecodeDict() unexpected error = %v", err)
	}

	if got["owner"] != "jeff" || got["n"] != 1.0 {
		t.Errorf("DecodeDict() = %v", got)
	}

	m := map[string]any{"a": "b"}

	got, err = DecodeDict(m)
	if err != nil || got["a"] != "b" {
		t.Errorf("DecodeDict(map) = %v, %v", got, err)
	}

	if _, err := DecodeDict("[1,2]"); !errors.Is(err, ErrNotADict) {
		t.Errorf("DecodeDict(list) error = %v, want ErrNotADict", err)
	}

	if _, err := DecodeDict(42); !errors.Is(err, ErrNotADict) {
		t.Errorf("DecodeDict(int) error = %v, want ErrNotADict", err)
	}
}

func TestFlattenByKey(t *testing.T) {
	meta := map[string]any{
		"owner":         "top",
		"description":   "d",
		"alerts_config": map[string]any{"owner": "nested", "channel": "#data"},
	}

	got := FlattenByKey(meta, "alerts_config")
	want := map[string]any{"owner": "nested", "description": "d", "channel": "#data"}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("FlattenByKey() = %v, want %v", got, want)
	}

	if _, ok := meta["channel"]; ok {
		t.Error("FlattenByKey() mutated its input")
	}

	encoded := map[string]any{"alerts_config": `{"subscribers": ["@a"]}`}
	if got := FlattenByKey(encoded, "alerts_config"); got["subscribers"] == nil {
		t.Errorf("FlattenByKey() did not decode JSON text nested config: %v", got)
	}

	if got := FlattenByKey(nil, "alerts_config"); len(got) != 0 {
		t.Errorf("FlattenByKey(nil) = %v, want empty", got)
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2022, 10, 10, 10, 0, 0, 0, time.UTC)

	for _, input := range []any{
		"2022-10-10T10:00:00Z",
		"2022-10-10T12:00:00+02:00",
		"2022-10-10T10:00:00",
		"2022-10-10 10:00:00",
		"2022-10-10 10:00:00.000000",
		[]byte("2022-10-10 10:00:00"),
		want,
		want.In(time.FixedZone("X", 3600)),
	} {
		got, err := ParseTimestamp(input)
		if err != nil {
			t.Fatalf("ParseTimestamp(%v) unexpected error = %v", input, err)
		}

		if !got.Equal(want) || got.Location() != time.UTC {
			t.Errorf("ParseTimestamp(%v) = %v, want %v", input, got, want)
		}
	}

	for _, input := range []any{nil, "yesterday", 42} {
		if _, err := ParseTimestamp(input); !errors.Is(err, ErrInvalidTimestamp) {
			t.Errorf("ParseTimestamp(%v) error = %v, want ErrInvalidTimestamp", input, err)
		}
	}
}

func TestInt(t *testing.T) {
	tests := []struct {
		input   any
		want    int64
		present bool
		wantErr bool
	}{
		{nil, 0, false, false},
		{int64(3), 3, true, false},
		{7, 7, true, false},
		{2.0, 2, true, false},
		{"12", 12, true, false},
		{[]byte("5"), 5, true, false},
		{"1.0", 1, true, false},
		{json.Number("9"), 9, true, false},
		{"", 0, false, false},
		{"abc", 0, false, true},
		{struct{}{}, 0, false, true},
	}

	for _, tt := range tests {
		got, present, err := Int(tt.input)

		if (err != nil) != tt.wantErr {
			t.Errorf("Int(%v) error = %v, wantErr %v", tt.input, err, tt.wantErr)

			continue
		}

		if got != tt.want || present != tt.present {
			t.Errorf("Int(%v) = (%d, %v), want (%d, %v)", tt.input, got, present, tt.want, tt.present)
		}
	}
}

func TestFloat(t *testing.T) {
	for input, want := range map[any]float64{
		1.5:              1.5,
		int64(2):         2,
		"0.25":           0.25,
		json.Number("3"): 3,
	} {
		got, present, err := Float(input)
		if err != nil || !present || got != want {
			t.Errorf("Float(%v) = (%v, %v, %v), want %v", input, got, present, err, want)
		}
	}

	if _, present, err := Float(nil); present || err != nil {
		t.Errorf("Float(nil) present = %v, err = %v", present, err)
	}

	if _, _, err := Float("x"); !errors.Is(err, ErrNotANumber) {
		t.Errorf("Float(x) error = %v, want ErrNotANumber", err)
	}
}

func TestStringAndBool(t *testing.T) {
	if String(nil) != "" || String([]byte("x")) != "x" || String(3) != "3" {
		t.Error("String() did not read scalars as text")
	}

	if !Bool(true) || !Bool("true") || !Bool(int64(1)) || Bool("nope") || Bool(nil) {
		t.Error("Bool() did not read booleans")
	}
}
