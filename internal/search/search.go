// Package search runs text searches against the DuckDuckGo lite endpoint.
package search

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/matthewgall/shelfscrape/internal/cache"
	"github.com/matthewgall/shelfscrape/internal/models"
)

const DefaultBaseURL = "https://lite.duckduckgo.com/lite/"

var ErrEmptyQuery = errors.New("search query required")

// Result is one search hit.
type Result struct {
	Title string `json:"title"`
	Href  string `json:"href"`
	Body  string `json:"body"`
}

type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Cache      cache.Cache
	CacheTTL   time.Duration
	UserAgent  string
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      cache.Cache
	cacheTTL   time.Duration
	userAgent  string
}

func New(opts Options) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		cache:      opts.Cache,
		cacheTTL:   opts.CacheTTL,
		userAgent:  userAgent,
	}
}

// Query builds the site-restricted query for a product name.
func Query(site, product string) string {
	site = strings.TrimSpace(site)
	product = strings.TrimSpace(product)
	if site == "" {
		return product
	}
	return fmt.Sprintf("site:%s %s", site, product)
}

// Text returns at most max results for query.
func (c *Client) Text(ctx context.Context, query string, max int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if max <= 0 {
		max = 10
	}

	cacheKey := fmt.Sprintf("%d:%s", max, query)
	var results []Result
	if found, err := cache.Lookup(ctx, c.cache, models.SourceSearch, cacheKey, &results); err != nil {
		log.Printf("Warning: search cache lookup failed: %v", err)
	} else if found {
		return results, nil
	}

	doc, err := c.fetch(ctx, query)
	if err != nil {
		return nil, err
	}
	results = parseResults(doc, max)

	if c.cache != nil && c.cacheTTL > 0 {
		if err := c.cache.Set(ctx, models.SourceSearch, cacheKey, results, c.cacheTTL, nil); err != nil {
			log.Printf("Warning: failed to cache search results for %q: %v", query, err)
		}
	}
	return results, nil
}

func (c *Client) fetch(ctx context.Context, query string) (*goquery.Document, error) {
	form := url.Values{"q": {query}, "kl": {"wt-wt"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("closing search response: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search request failed with status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse search results: %w", err)
	}
	return doc, nil
}

// parseResults pairs each result link with the snippet row that follows it.
func parseResults(doc *goquery.Document, max int) []Result {
	results := []Result{}
	doc.Find("a.result-link").Each(func(_ int, link *goquery.Selection) {
		if len(results) >= max {
			return
		}
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		result := Result{
			Title: collapse(link.Text()),
			Href:  resolveRedirect(href),
		}
		row := link.Closest("tr")
		for next := row.Next(); next.Length() > 0; next = next.Next() {
			if next.Find("a.result-link").Length() > 0 {
				break
			}
			if snippet := next.Find("td.result-snippet"); snippet.Length() > 0 {
				result.Body = collapse(snippet.Text())
				break
			}
		}
		results = append(results, result)
	})
	return results
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg= redirect links.
func resolveRedirect(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := parsed.Query().Get("uddg"); target != "" && strings.HasSuffix(parsed.Path, "/l/") {
		return target
	}
	return href
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
