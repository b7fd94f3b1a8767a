package templates

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/matthewgall/shelfscrape/internal/models"
)

func TestFormatAmount(t *testing.T) {
	price := 2.49
	var missing *float64

	tests := []struct {
		name  string
		value interface{}
		want  string
	}{
		{"nil", nil, "N/A"},
		{"nil pointer", missing, "N/A"},
		{"pointer", &price, "2.49"},
		{"whole float", 3.0, "3"},
		{"int64", int64(12), "12"},
		{"string", "1.20", "1.20"},
		{"empty string", "", "N/A"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatAmount(tt.value); got != tt.want {
				t.Errorf("formatAmount(%v) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestLoadEmbedded(t *testing.T) {
	set, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	for _, name := range []string{Prompt, Report} {
		if _, ok := set.templates[name]; !ok {
			t.Errorf("template %s not loaded", name)
		}
	}
}

func TestPromptTemplate(t *testing.T) {
	got, err := MustLoad().String(Prompt, map[string]string{
		"Product": "Leffe Бира 0.33 Л",
		"Site":    "prices.nedostavka.net",
	})
	if err != nil {
		t.Fatalf("String() error = %v", err)
	}
	for _, want := range []string{"TARGET PRODUCT: Leffe Бира 0.33 Л", "TARGET SITE: prices.nedostavka.net", `"index"`} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

type reportFixture struct {
	Products      []models.Product
	ContentURIs   []string
	TopLevelKeys  []string
	ShapeMismatch bool
}

func TestReportTemplate(t *testing.T) {
	price, promo := 3.2, 2.49
	fixture := reportFixture{
		Products: []models.Product{
			{Name: "Leffe", Price: &price, PromoPrice: &promo, Currency: "BGN", Description: "Beer", ImageURL: "https://img/1"},
			{Name: "Water", Currency: "BGN", Description: models.DefaultDescription, ImageURL: models.NotAvailable},
		},
		ContentURIs:  []string{"/v3/content/1"},
		TopLevelKeys: []string{"data", "layout"},
	}

	got, err := MustLoad().String(Report, fixture)
	if err != nil {
		t.Fatalf("String() error = %v", err)
	}

	for _, want := range []string{
		"## 1. Leffe",
		"  - Original Price: 3.2 BGN",
		"  - Promo Price: 2.49 BGN",
		"## 2. Water",
		"  - Price: N/A BGN",
		"  - Image URL: N/A",
		"Found 2 products.",
		"Deferred content: /v3/content/1",
		"Top-level keys: data, layout",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("report missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "not as expected") {
		t.Error("report should not flag a shape mismatch")
	}
}

func TestReportTemplateShapeMismatch(t *testing.T) {
	got, err := MustLoad().String(Report, reportFixture{ShapeMismatch: true})
	if err != nil {
		t.Fatalf("String() error = %v", err)
	}
	for _, want := range []string{"not as expected", "Found 0 products.", "Top-level keys: none"} {
		if !strings.Contains(got, want) {
			t.Errorf("report missing %q:\n%s", want, got)
		}
	}
}

func TestLoadFSRejectsBrokenTemplate(t *testing.T) {
	source := fstest.MapFS{
		"text/broken.tmpl": {Data: []byte("{{ if }}")},
	}
	if _, err := LoadFS(source, "text"); err == nil {
		t.Error("LoadFS() should fail on a broken template")
	}
}

func TestExecuteUnknownTemplate(t *testing.T) {
	if _, err := MustLoad().String("missing.tmpl", nil); err == nil {
		t.Error("String() should fail for an unknown template")
	}
}
