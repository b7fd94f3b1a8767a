// Package report turns a recovered page structure into product records.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/matthewgall/shelfscrape/internal/models"
	"github.com/matthewgall/shelfscrape/internal/templates"
	"github.com/tidwall/gjson"
)

const (
	productTile        = "PRODUCT_TILE"
	contentPlaceholder = "CONTENT_PLACEHOLDER"
	uncategorized      = "Uncategorized"
)

// Report is the product view over one recovered structure.
type Report struct {
	Products     []models.Product `json:"products"`
	ContentURIs  []string         `json:"content_uris,omitempty"`
	TopLevelKeys []string         `json:"top_level_keys"`
	// ShapeMismatch is set when no product list was found where one was
	// expected. It is not an error.
	ShapeMismatch bool `json:"shape_mismatch"`
}

// Build walks the page bodies and any top-level products array.
func Build(structure any) Report {
	r := Report{Products: []models.Product{}, TopLevelKeys: TopLevelKeys(structure)}

	encoded, err := json.Marshal(structure)
	if err != nil {
		r.ShapeMismatch = true
		return r
	}
	root := gjson.ParseBytes(encoded)

	found := false
	root.Get("data").ForEach(func(_, entry gjson.Result) bool {
		entry.Get("initialData.body").ForEach(func(_, body gjson.Result) bool {
			if elements := body.Get("data.elements"); elements.IsArray() {
				found = true
				r.Products = append(r.Products, tiles(elements)...)
			}
			if body.Get("type").String() == contentPlaceholder {
				if uri := body.Get("data.contentUri").String(); uri != "" {
					r.ContentURIs = append(r.ContentURIs, uri)
				}
			}
			return true
		})
		return true
	})

	if products := root.Get("products"); products.IsArray() {
		found = true
		products.ForEach(func(_, item gjson.Result) bool {
			if item.Get("type").Exists() {
				if item.Get("type").String() == productTile {
					r.Products = append(r.Products, productFrom(item.Get("data")))
				}
				return true
			}
			if item.IsObject() {
				r.Products = append(r.Products, productFrom(item))
			}
			return true
		})
	}

	r.ShapeMismatch = !found
	return r
}

// Summary is the one-line outcome of a run.
func (r Report) Summary() string {
	keys := "none"
	if len(r.TopLevelKeys) > 0 {
		keys = strings.Join(r.TopLevelKeys, ", ")
	}
	return fmt.Sprintf("Recovered %d products. Top-level keys: %s", len(r.Products), keys)
}

// TopLevelKeys lists the keys of a mapping structure in sorted order.
func TopLevelKeys(structure any) []string {
	m, ok := structure.(map[string]any)
	if !ok {
		return []string{}
	}
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func tiles(elements gjson.Result) []models.Product {
	var products []models.Product
	elements.ForEach(func(_, element gjson.Result) bool {
		if element.Get("type").String() == productTile && element.Get("data").IsObject() {
			products = append(products, productFrom(element.Get("data")))
		}
		return true
	})
	return products
}

func productFrom(data gjson.Result) models.Product {
	p := models.Product{
		ID:           data.Get("id").String(),
		SKU:          data.Get("externalId").String(),
		Name:         cleanName(data.Get("name").String()),
		Description:  strings.TrimSpace(data.Get("description").String()),
		Currency:     data.Get("priceInfo.currencyCode").String(),
		PriceDisplay: data.Get("priceInfo.displayText").String(),
		ImageURL:     data.Get("imageUrl").String(),
		Category:     data.Get("tracking.subCategory").String(),
		Promotions:   promotions(data),
	}

	if p.Name == "" {
		p.Name = models.NotAvailable
	}
	if p.Description == "" {
		p.Description = models.DefaultDescription
	}
	if p.ImageURL == "" {
		p.ImageURL = models.NotAvailable
	}
	if p.Category == "" {
		p.Category = uncategorized
	}

	p.Price = amount(data.Get("priceInfo.amount"))
	if p.Price == nil {
		p.Price = amount(data.Get("price"))
	}
	if promo := data.Get("promotion"); promo.IsObject() {
		p.PromoPrice = amount(promo.Get("priceInfo.amount"))
		if p.PromoPrice == nil {
			p.PromoPrice = amount(promo.Get("price"))
		}
	}

	return p
}

// cleanName drops a trailing " / ..." unit suffix.
func cleanName(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndex(name, " / "); i > 0 {
		return name[:i]
	}
	return name
}

func promotions(data gjson.Result) []models.Promotion {
	var raw []gjson.Result
	if promo := data.Get("promotion"); promo.IsObject() {
		raw = append(raw, promo)
	}
	data.Get("promotions").ForEach(func(_, promo gjson.Result) bool {
		if promo.IsObject() {
			raw = append(raw, promo)
		}
		return true
	})

	seen := make(map[string]bool)
	out := []models.Promotion{}
	for _, promo := range raw {
		id := promo.Get("promoId").String()
		if id == "" {
			id = promo.Get("promotionId").String()
		}
		if seen[id] {
			continue
		}
		seen[id] = true

		price := amount(promo.Get("price"))
		if price == nil {
			price = amount(promo.Get("priceInfo.amount"))
		}
		out = append(out, models.Promotion{
			ID:       id,
			Title:    promo.Get("title").String(),
			Type:     promo.Get("type").String(),
			NewPrice: price,
			IsPrime:  promo.Get("isPrime").Bool(),
		})
	}
	return out
}

// amount reads a numeric field, accepting numbers quoted by the parser.
func amount(value gjson.Result) *float64 {
	switch value.Type {
	case gjson.Number:
		f := value.Float()
		return &f
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(value.Str), 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

var reportTemplates = templates.MustLoad()

// Render writes the human-readable listing.
func Render(w io.Writer, r Report) error {
	return reportTemplates.Execute(w, templates.Report, r)
}
