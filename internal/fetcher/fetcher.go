// Package fetcher retrieves the raw page text that the parser works on.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/matthewgall/shelfscrape/internal/cache"
	"github.com/matthewgall/shelfscrape/internal/models"
	"golang.org/x/net/html/charset"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	maxBodySize = 32 << 20
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetching %s: unexpected status %d", e.URL, e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone {
		return models.ErrResourceNotFound
	}
	return nil
}

type Options struct {
	HTTPClient *http.Client
	Cache      cache.Cache
	CacheTTL   time.Duration
	UserAgent  string
	Timeout    time.Duration
}

type Client struct {
	httpClient *http.Client
	cache      cache.Cache
	cacheTTL   time.Duration
	userAgent  string
}

func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Client{
		httpClient: httpClient,
		cache:      opts.Cache,
		cacheTTL:   opts.CacheTTL,
		userAgent:  userAgent,
	}
}

// Fetch returns the decoded body of url. Responses are cached for the
// configured TTL; there are no retries.
func (c *Client) Fetch(ctx context.Context, url string) (string, error) {
	var body string
	if found, err := cache.Lookup(ctx, c.cache, models.SourcePage, url, &body); err != nil {
		log.Printf("Warning: page cache lookup failed for %s: %v", url, err)
	} else if found {
		return body, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	// #nosec G704 -- the target URL is operator supplied.
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", url, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("closing response for %s: %v", url, err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	reader, err := charset.NewReader(io.LimitReader(resp.Body, maxBodySize), resp.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("decoding %s: %w", url, err)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", url, err)
	}
	body = string(data)

	if c.cache != nil && c.cacheTTL > 0 {
		if err := c.cache.Set(ctx, models.SourcePage, url, body, c.cacheTTL, nil); err != nil {
			log.Printf("Warning: failed to cache page %s: %v", url, err)
		}
	}

	return body, nil
}

// Forget drops url from the page cache so the next Fetch goes to the network.
func (c *Client) Forget(ctx context.Context, url string) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Delete(ctx, models.SourcePage, url)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "bg-BG,bg;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Accept-Encoding", "identity")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}

// ReadFile reads a local page dump as UTF-8 text.
func ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("reading %s: %w", path, models.ErrResourceNotFound)
		}
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}
