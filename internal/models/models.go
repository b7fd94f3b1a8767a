package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"time"
)

// NotAvailable is the placeholder for product fields the page did not carry.
const NotAvailable = "N/A"

// DefaultDescription replaces an empty product description.
const DefaultDescription = "No description available."

// ErrResourceNotFound reports a missing page or input file.
var ErrResourceNotFound = errors.New("resource not found")

// Source identifies the origin of cached payloads.
type Source string

const (
	SourcePage   Source = "page"
	SourceSearch Source = "search"
)

type ExtractionStatus string

const (
	StatusSucceeded ExtractionStatus = "succeeded"
	StatusNotFound  ExtractionStatus = "not_found"
	StatusMalformed ExtractionStatus = "malformed"
	StatusFailed    ExtractionStatus = "failed"
)

func (s Source) Valid() bool {
	return s == SourcePage || s == SourceSearch
}

func (s Source) String() string {
	return string(s)
}

func (s ExtractionStatus) Valid() bool {
	return s == StatusSucceeded || s == StatusNotFound || s == StatusMalformed || s == StatusFailed
}

func (s ExtractionStatus) String() string {
	return string(s)
}

func (s ExtractionStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid extraction status: %s", s)
	}
	return s.String(), nil
}

func (s *ExtractionStatus) Scan(value interface{}) error {
	if value == nil {
		*s = StatusFailed
		return nil
	}

	str, ok := value.(string)
	if !ok {
		return fmt.Errorf("cannot scan %T into ExtractionStatus", value)
	}

	status := ExtractionStatus(str)
	if !status.Valid() {
		return fmt.Errorf("invalid extraction status: %s", str)
	}

	*s = status
	return nil
}

// Promotion is a promotional offer attached to a product tile.
type Promotion struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Type     string   `json:"type"`
	NewPrice *float64 `json:"new_price,omitempty"`
	IsPrime  bool     `json:"is_prime"`
}

// Product is one record derived from a product tile.
type Product struct {
	ID           string      `json:"id"`
	SKU          string      `json:"sku"`
	Name         string      `json:"name"`
	Description  string      `json:"description"`
	Price        *float64    `json:"price"`
	Currency     string      `json:"currency"`
	PriceDisplay string      `json:"price_display,omitempty"`
	PromoPrice   *float64    `json:"promo_price"`
	ImageURL     string      `json:"image_url"`
	Category     string      `json:"category"`
	Promotions   []Promotion `json:"promotions"`
}

// HasPromo reports whether the product carries a promotional price.
func (p Product) HasPromo() bool {
	return p.PromoPrice != nil
}

// Extraction records one fetch-parse-report run.
type Extraction struct {
	ID               int64            `json:"id" db:"id"`
	Source           string           `json:"source" db:"source"`
	Status           ExtractionStatus `json:"status" db:"status"`
	ProductCount     int              `json:"product_count" db:"product_count"`
	TopLevelKeys     []string         `json:"top_level_keys,omitempty" db:"-"`
	ArtifactLocation *string          `json:"artifact_location,omitempty" db:"artifact_location"`
	OutputLocation   *string          `json:"output_location,omitempty" db:"output_location"`
	ErrorMessage     *string          `json:"error,omitempty" db:"error_message"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
}

type ExternalCache struct {
	ID          int64     `json:"id" db:"id"`
	Source      Source    `json:"source" db:"source"`
	CacheKey    string    `json:"cache_key" db:"cache_key"`
	PayloadJSON string    `json:"payload_json" db:"payload_json"`
	ETag        *string   `json:"etag,omitempty" db:"etag"`
	FetchedAt   time.Time `json:"fetched_at" db:"fetched_at"`
	TTLSeconds  int       `json:"ttl_seconds" db:"ttl_seconds"`
}
