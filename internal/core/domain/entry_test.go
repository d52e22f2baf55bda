package domain

import (
	"encoding/json"
	"testing"
)

func TestEntry_JSON(t *testing.T) {
	tests := []struct {
		name  string
		entry *Entry
		want  string
	}{
		{"string", NewString("bar"), `{"type":"string","value":"bar"}`},
		{"list", NewList("a", "b"), `{"type":"list","value":["a","b"]}`},
		{"empty list", NewList(), `{"type":"list","value":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.entry)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("Marshal() = %s, want %s", data, tt.want)
			}

			var back Entry
			if err := json.Unmarshal(data, &back); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if !back.Equal(tt.entry) {
				t.Errorf("round trip = %+v, want %+v", back, tt.entry)
			}
		})
	}
}

func TestEntry_UnmarshalInvalid(t *testing.T) {
	for _, input := range []string{
		`{"type":"hash","value":{}}`,
		`{"type":"string","value":["x"]}`,
		`{"type":"list","value":"x"}`,
		`[]`,
	} {
		var e Entry
		if err := json.Unmarshal([]byte(input), &e); err == nil {
			t.Errorf("Unmarshal(%s) error = nil, want error", input)
		}
	}
}

func TestEntry_Clone(t *testing.T) {
	orig := NewList("x", "y")
	c := orig.Clone()
	c.List[0] = "changed"

	if orig.List[0] != "x" {
		t.Error("Clone should not share the list backing array")
	}
	if (*Entry)(nil).Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
	if !NewString("v").IsString() || NewString("v").IsList() {
		t.Error("kind predicates wrong for string entry")
	}
}
