package relaxjson

import (
	"reflect"
	"testing"
)

func TestCoerceValue(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want any
	}{
		{"string literal", `"SOF"`, "SOF"},
		{"object literal", `{"x": 1}`, map[string]any{"x": float64(1)}},
		{"relaxed object literal", `{x: 1, y: undefined}`, map[string]any{"x": float64(1), "y": nil}},
		{"array literal", `[1, "a"]`, []any{float64(1), "a"}},
		{"true", `true`, true},
		{"false", ` false `, false},
		{"null", `null`, nil},
		{"void zero", `void 0`, nil},
		{"integer", `42`, int64(42)},
		{"negative integer", `-7`, int64(-7)},
		{"float", `2.49`, 2.49},
		{"bigint", `10n`, "10"},
		{"set", `new Set([1])`, []any{}},
		{"bare identifier", `c`, "c"},
		{"single quoted", `'BG'`, "BG"},
		{"empty", `  `, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := coerceValue(tt.raw); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("coerceValue(%q) = %#v, want %#v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestReconstructAssignmentsWithoutReturn(t *testing.T) {
	got := reconstructAssignments(`(function(a,b){a.code="SOF";a.size=3;b.open=true;}({},{}))`)

	want := map[string]any{
		"a": map[string]any{"code": "SOF", "size": int64(3)},
		"b": map[string]any{"open": true},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("reconstructAssignments() = %#v, want %#v", got, want)
	}
}

func TestReconstructAssignmentsReturnTokens(t *testing.T) {
	got := reconstructAssignments(`(function(a){a.id=1;return {x: a, y: 3, "z": "lit", w: q};}({}))`)

	want := map[string]any{
		"x": map[string]any{"id": int64(1)},
		"y": float64(3),
		"z": "lit",
		"w": "q",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("reconstructAssignments() = %#v, want %#v", got, want)
	}
}

func TestReconstructAssignmentsEmpty(t *testing.T) {
	got := reconstructAssignments(`(function(){}())`)
	if len(got) != 0 {
		t.Errorf("reconstructAssignments() = %#v, want empty mapping", got)
	}
	if got == nil {
		t.Error("reconstructAssignments() should return a non-nil mapping")
	}
}
