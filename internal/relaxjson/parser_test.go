package relaxjson

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func newTestParser(t *testing.T) (*Parser, string) {
	t.Helper()
	debugPath := filepath.Join(t.TempDir(), "debug", "extracted_data_debug.txt")
	return New(Options{Artifacts: FileWriter{Path: debugPath}}), debugPath
}

func TestParseDeclaration(t *testing.T) {
	p, _ := newTestParser(t)

	got, err := p.Parse(`const x = {a: 1n, b: undefined, c: new Set([1,2]),};`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := map[string]any{"a": "1", "b": nil, "c": []any{}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Parse() = %#v, want %#v", got, want)
	}
}

func TestParseFunctionWrapper(t *testing.T) {
	p, _ := newTestParser(t)

	got, err := p.Parse(`(function(a,b){a.code="SOF";b.code="BG";return {"country": a, "region": b};}({},{}))`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := map[string]any{
		"country": map[string]any{"code": "SOF"},
		"region":  map[string]any{"code": "BG"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Parse() = %#v, want %#v", got, want)
	}
}

func TestParseScriptAssignment(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		anchor string
	}{
		{
			name:   "bare global",
			raw:    `<script>__INITIAL_STATE__ = {layout: "default", count: 3n};</script><script>var other = 1;</script>`,
			anchor: "__INITIAL_STATE__",
		},
		{
			name:   "window global",
			raw:    `<html><script>window.__NUXT__={layout:"default",count:3n} ;</script></html>`,
			anchor: "window.__NUXT__",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestParser(t)

			fragment, err := p.Locate(tt.raw)
			if err != nil {
				t.Fatalf("Locate() error = %v", err)
			}
			if fragment.Anchor != tt.anchor {
				t.Errorf("Locate() anchor = %q, want %q", fragment.Anchor, tt.anchor)
			}

			got, err := p.Parse(tt.raw)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			want := map[string]any{"layout": "default", "count": "3"}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("Parse() = %#v, want %#v", got, want)
			}
		})
	}
}

func TestParseNuxtWrapperInPage(t *testing.T) {
	p, _ := newTestParser(t)
	raw := `<script>window.__NUXT__=(function(a,b,c){a.name="Leffe";a.price=2.49;b.count=2;return {"product": a, "state": b, "layout": "store", "tags": [c]};}("x","y",0));</script>`

	got, err := p.Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := map[string]any{
		"product": map[string]any{"name": "Leffe", "price": 2.49},
		"state":   map[string]any{"count": int64(2)},
		"layout":  "store",
		"tags":    "[c]",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Parse() = %#v, want %#v", got, want)
	}
}

func TestParseReturnAnchor(t *testing.T) {
	p, _ := newTestParser(t)
	raw := "export default function load() {\n  return {\"data\": [1, 2], \"id\": 77n};\n}\n"

	got, err := p.Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := map[string]any{"data": []any{float64(1), float64(2)}, "id": "77"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Parse() = %#v, want %#v", got, want)
	}
}

func TestParseStrictJSONWithScriptLikeText(t *testing.T) {
	p, debugPath := newTestParser(t)
	raw := `<script>window.__NUXT__={"name":"Leffe","description":"Belgian ale, note: serve cold","stock":"undefined until 12n, void 0","tags":["a, b: c",",]"]};</script>`

	got, err := p.Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := map[string]any{
		"name":        "Leffe",
		"description": "Belgian ale, note: serve cold",
		"stock":       "undefined until 12n, void 0",
		"tags":        []any{"a, b: c", ",]"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Parse() = %#v, want %#v", got, want)
	}
	if _, statErr := os.Stat(debugPath); !os.IsNotExist(statErr) {
		t.Errorf("debug artifact should not exist, stat error = %v", statErr)
	}
}

func TestParseSparseArrays(t *testing.T) {
	p, _ := newTestParser(t)
	raw := "<script>window.__NUXT__={items: [1" + strings.Repeat(",", 20) + "], label: \"x\"};</script>"

	got, err := p.Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := map[string]any{"items": []any{float64(1)}, "label": "x"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Parse() = %#v, want %#v", got, want)
	}
}

func TestWithArtifacts(t *testing.T) {
	p, debugPath := newTestParser(t)
	otherPath := filepath.Join(t.TempDir(), "other.txt")
	other := p.WithArtifacts(FileWriter{Path: otherPath})

	_, err := other.Parse(`<script>window.__NUXT__ = {broken: [1, {x: }};</script>`)
	var malformed *MalformedDataError
	if !errors.As(err, &malformed) {
		t.Fatalf("Parse() error = %v, want *MalformedDataError", err)
	}
	if malformed.ArtifactLocation != otherPath {
		t.Errorf("ArtifactLocation = %q, want %q", malformed.ArtifactLocation, otherPath)
	}
	if _, statErr := os.Stat(debugPath); !os.IsNotExist(statErr) {
		t.Errorf("original writer should be untouched, stat error = %v", statErr)
	}
}

func TestParseAnchorNotFound(t *testing.T) {
	p, debugPath := newTestParser(t)

	_, err := p.Parse("<html><body><p>No data here.</p></body></html>")
	if !errors.Is(err, ErrAnchorNotFound) {
		t.Fatalf("Parse() error = %v, want ErrAnchorNotFound", err)
	}
	if _, statErr := os.Stat(debugPath); !os.IsNotExist(statErr) {
		t.Errorf("debug artifact should not exist, stat error = %v", statErr)
	}
}

func TestParseMalformedWritesArtifact(t *testing.T) {
	p, debugPath := newTestParser(t)

	_, err := p.Parse(`<script>window.__NUXT__ = {broken: [1, 2, {x: }};</script>`)
	if !errors.Is(err, ErrMalformedData) {
		t.Fatalf("Parse() error = %v, want ErrMalformedData", err)
	}

	var malformed *MalformedDataError
	if !errors.As(err, &malformed) {
		t.Fatalf("Parse() error type = %T, want *MalformedDataError", err)
	}
	if malformed.ArtifactLocation != debugPath {
		t.Errorf("ArtifactLocation = %q, want %q", malformed.ArtifactLocation, debugPath)
	}
	if !strings.Contains(err.Error(), debugPath) {
		t.Errorf("error message %q should name the debug artifact", err.Error())
	}

	data, readErr := os.ReadFile(debugPath)
	if readErr != nil {
		t.Fatalf("reading debug artifact: %v", readErr)
	}
	content := string(data)
	for _, want := range []string{"=== ORIGINAL", "{broken: [1, 2, {x: }}", "=== NORMALIZED", `{"broken": [1, 2, {"x": }}`} {
		if !strings.Contains(content, want) {
			t.Errorf("debug artifact missing %q:\n%s", want, content)
		}
	}
}

func TestParseHeuristicProducts(t *testing.T) {
	p, debugPath := newTestParser(t)
	raw := `<script>window.__INITIAL_STATE__={products:[{name:"Milk",price:1.5}],meta:{a:}};</script>`

	got, err := p.Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := map[string]any{
		"products": []any{map[string]any{"name": "Milk", "price": 1.5}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Parse() = %#v, want %#v", got, want)
	}
	if _, err := os.Stat(debugPath); err != nil {
		t.Errorf("debug artifact should be written before heuristics: %v", err)
	}
}

func TestParseHeuristicShallowObject(t *testing.T) {
	p, _ := newTestParser(t)
	raw := `<script>window.__NUXT__={broken: , deep: {a: {b: 1}}, item: {name: "A product name long enough to count", description: "A description that pushes the object past the cutoff"}};</script>`

	got, err := p.Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := map[string]any{
		"name":        "A product name long enough to count",
		"description": "A description that pushes the object past the cutoff",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Parse() = %#v, want %#v", got, want)
	}
}

func TestParseHeuristicRejectsSmallObjects(t *testing.T) {
	debugPath := filepath.Join(t.TempDir(), "debug.txt")
	p := New(Options{MinObjectSize: 500, Artifacts: FileWriter{Path: debugPath}})
	raw := `<script>window.__NUXT__={broken: , deep: {a: {b: 1}}, item: {name: "short"}};</script>`

	_, err := p.Parse(raw)
	if !errors.Is(err, ErrMalformedData) {
		t.Fatalf("Parse() error = %v, want ErrMalformedData", err)
	}
}

func TestLocateCustomIdentifier(t *testing.T) {
	p := New(Options{Identifiers: []string{"__APOLLO_STATE__"}})

	fragment, err := p.Locate(`<script>window.__APOLLO_STATE__ = {"a": 1};</script>`)
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	if fragment.Text != `{"a": 1}` {
		t.Errorf("Locate() text = %q", fragment.Text)
	}
	if fragment.Wrapper {
		t.Error("Locate() should not flag an object literal as a wrapper")
	}
}

func TestIsFunctionWrapper(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"(function(a){return {}}())", true},
		{"function(a){}", true},
		{"!function(){}()", true},
		{"{\"function\": 1}", false},
		{"[1,2]", false},
	}

	for _, tt := range tests {
		if got := isFunctionWrapper(tt.text); got != tt.want {
			t.Errorf("isFunctionWrapper(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
