package report

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/matthewgall/shelfscrape/internal/models"
)

func decode(t *testing.T, doc string) any {
	t.Helper()
	var structure any
	if err := json.Unmarshal([]byte(doc), &structure); err != nil {
		t.Fatalf("decoding fixture: %v", err)
	}
	return structure
}

const storePage = `{
  "layout": "store",
  "data": [
    {"meta": {}},
    {"initialData": {"body": [
      {"type": "GRID", "data": {"elements": [
        {"type": "PRODUCT_TILE", "data": {
          "id": "p-1",
          "externalId": "SKU-1",
          "name": "Leffe Бира 0.33 Л / бутилка",
          "description": "  Belgian abbey beer  ",
          "priceInfo": {"amount": 2.49, "currencyCode": "BGN", "displayText": "2,49 лв."},
          "imageUrl": "https://img.example.com/leffe.png",
          "tracking": {"subCategory": "Beer"},
          "promotion": {"promoId": "promo-1", "title": "-20%", "type": "PERCENTAGE", "price": 1.99, "priceInfo": {"amount": 1.99}},
          "promotions": [
            {"promoId": "promo-1", "title": "-20%", "type": "PERCENTAGE", "price": 1.99},
            {"promotionId": 77, "title": "Prime", "type": "PRIME", "isPrime": true}
          ]
        }},
        {"type": "BANNER", "data": {"name": "Not a product"}},
        {"type": "PRODUCT_TILE", "data": {"name": "Water"}}
      ]}},
      {"type": "CONTENT_PLACEHOLDER", "data": {"contentUri": "/v3/stores/1/content/2"}}
    ]}}
  ]
}`

func TestBuildStorePage(t *testing.T) {
	r := Build(decode(t, storePage))

	if r.ShapeMismatch {
		t.Fatal("Build() flagged a shape mismatch")
	}
	if len(r.Products) != 2 {
		t.Fatalf("Build() found %d products, want 2", len(r.Products))
	}
	if !reflect.DeepEqual(r.TopLevelKeys, []string{"data", "layout"}) {
		t.Errorf("TopLevelKeys = %v", r.TopLevelKeys)
	}
	if !reflect.DeepEqual(r.ContentURIs, []string{"/v3/stores/1/content/2"}) {
		t.Errorf("ContentURIs = %v", r.ContentURIs)
	}

	leffe := r.Products[0]
	if leffe.Name != "Leffe Бира 0.33 Л" {
		t.Errorf("Name = %q", leffe.Name)
	}
	if leffe.ID != "p-1" || leffe.SKU != "SKU-1" || leffe.Category != "Beer" || leffe.Currency != "BGN" {
		t.Errorf("product = %+v", leffe)
	}
	if leffe.Description != "Belgian abbey beer" {
		t.Errorf("Description = %q", leffe.Description)
	}
	if leffe.Price == nil || *leffe.Price != 2.49 {
		t.Errorf("Price = %v", leffe.Price)
	}
	if leffe.PromoPrice == nil || *leffe.PromoPrice != 1.99 {
		t.Errorf("PromoPrice = %v", leffe.PromoPrice)
	}
	if len(leffe.Promotions) != 2 {
		t.Fatalf("Promotions = %+v, want 2 after dedup", leffe.Promotions)
	}
	if leffe.Promotions[1].ID != "77" || !leffe.Promotions[1].IsPrime {
		t.Errorf("second promotion = %+v", leffe.Promotions[1])
	}

	water := r.Products[1]
	if water.Price != nil || water.PromoPrice != nil {
		t.Errorf("Water prices = %v / %v, want absent", water.Price, water.PromoPrice)
	}
	if water.Description != models.DefaultDescription || water.ImageURL != models.NotAvailable || water.Category != "Uncategorized" {
		t.Errorf("Water sentinels = %+v", water)
	}
}

func TestBuildOriginalAndPromoPrice(t *testing.T) {
	structure := map[string]any{
		"data": []any{
			map[string]any{"initialData": map[string]any{"body": []any{
				map[string]any{"data": map[string]any{"elements": []any{
					map[string]any{"type": "PRODUCT_TILE", "data": map[string]any{
						"name":      "Leffe",
						"priceInfo": map[string]any{"amount": 2.49, "currencyCode": "BGN"},
						"promotion": map[string]any{"priceInfo": map[string]any{"amount": 1.99}},
					}},
				}}},
			}}},
		},
	}

	r := Build(structure)
	if len(r.Products) != 1 {
		t.Fatalf("Build() found %d products, want 1", len(r.Products))
	}
	p := r.Products[0]
	if !p.HasPromo() || *p.Price != 2.49 || *p.PromoPrice != 1.99 {
		t.Fatalf("product = %+v", p)
	}

	var out bytes.Buffer
	if err := Render(&out, r); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	for _, want := range []string{"Original Price: 2.49 BGN", "Promo Price: 1.99 BGN", "Found 1 products."} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Render() missing %q:\n%s", want, out.String())
		}
	}
}

func TestBuildHeuristicProducts(t *testing.T) {
	structure := map[string]any{
		"products": []any{
			map[string]any{"name": "Milk", "price": 1.5},
			map[string]any{"type": "PRODUCT_TILE", "data": map[string]any{"name": "Bread", "priceInfo": map[string]any{"amount": "0.99"}}},
			map[string]any{"type": "BANNER"},
			"stray",
		},
	}

	r := Build(structure)
	if r.ShapeMismatch {
		t.Fatal("Build() flagged a shape mismatch")
	}
	if len(r.Products) != 2 {
		t.Fatalf("Build() found %d products, want 2", len(r.Products))
	}
	if r.Products[0].Name != "Milk" || r.Products[0].Price == nil || *r.Products[0].Price != 1.5 {
		t.Errorf("first product = %+v", r.Products[0])
	}
	if r.Products[1].Price == nil || *r.Products[1].Price != 0.99 {
		t.Errorf("quoted amount not read: %+v", r.Products[1])
	}
}

func TestBuildShapeMismatch(t *testing.T) {
	tests := []struct {
		name      string
		structure any
	}{
		{"scenario A", map[string]any{"a": "1", "b": nil, "c": []any{}}},
		{"scenario B", map[string]any{"country": map[string]any{"code": "SOF"}}},
		{"array", []any{float64(1), float64(2)}},
		{"nil", nil},
		{"data without bodies", map[string]any{"data": []any{map[string]any{"x": 1}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Build(tt.structure)
			if !r.ShapeMismatch {
				t.Error("Build() should flag a shape mismatch")
			}
			if len(r.Products) != 0 {
				t.Errorf("Build() found %d products, want 0", len(r.Products))
			}
		})
	}
}

func TestCleanName(t *testing.T) {
	tests := map[string]string{
		"Leffe 0.33 Л / бутилка": "Leffe 0.33 Л",
		"A / B / C":              "A / B",
		"/ only suffix":          "/ only suffix",
		"Plain":                  "Plain",
		"  padded  ":             "padded",
	}
	for input, want := range tests {
		if got := cleanName(input); got != want {
			t.Errorf("cleanName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestSummary(t *testing.T) {
	r := Report{Products: make([]models.Product, 3), TopLevelKeys: []string{"data", "layout"}}
	if got := r.Summary(); got != "Recovered 3 products. Top-level keys: data, layout" {
		t.Errorf("Summary() = %q", got)
	}
	if got := (Report{}).Summary(); got != "Recovered 0 products. Top-level keys: none" {
		t.Errorf("Summary() = %q", got)
	}
}
