package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/matthewgall/shelfscrape/internal/models"
)

// Cache stores fetched pages and search results for a bounded time.
type Cache interface {
	Get(ctx context.Context, source models.Source, key string) (*models.ExternalCache, error)
	Set(ctx context.Context, source models.Source, key string, payload interface{}, ttl time.Duration, etag *string) error
	Delete(ctx context.Context, source models.Source, key string) error
	ClearExpired(ctx context.Context) error
	ClearAll(ctx context.Context) error
	Close() error
}

// Lookup decodes a live entry into dest. It reports false on a miss.
func Lookup(ctx context.Context, c Cache, source models.Source, key string, dest interface{}) (bool, error) {
	if c == nil {
		return false, nil
	}
	entry, err := c.Get(ctx, source, key)
	if err != nil {
		return false, err
	}
	if entry == nil {
		return false, nil
	}
	if err := json.Unmarshal([]byte(entry.PayloadJSON), dest); err != nil {
		return false, fmt.Errorf("decoding cached %s payload: %w", source, err)
	}
	return true, nil
}

type sqliteCache struct {
	db *sql.DB
	// owned is set when the cache opened db itself and must close it.
	owned bool
}

// New wraps a handle owned by the caller; Close leaves it open.
func New(db *sql.DB) Cache {
	return &sqliteCache{db: db}
}

func (c *sqliteCache) Get(ctx context.Context, source models.Source, key string) (*models.ExternalCache, error) {
	var entry models.ExternalCache
	var fetchedAt string

	err := c.db.QueryRowContext(ctx, `
		SELECT id, source, cache_key, payload_json, etag, fetched_at, ttl_seconds
		FROM external_cache
		WHERE source = ? AND cache_key = ? AND datetime(fetched_at, '+' || ttl_seconds || ' seconds') > datetime('now')
		LIMIT 1
	`, source, key).Scan(
		&entry.ID, &entry.Source, &entry.CacheKey, &entry.PayloadJSON,
		&entry.ETag, &fetchedAt, &entry.TTLSeconds,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying cache: %w", err)
	}

	parsed, err := time.Parse("2006-01-02 15:04:05", fetchedAt)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339, fetchedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing fetched_at time: %w", err)
		}
	}
	entry.FetchedAt = parsed

	return &entry, nil
}

func (c *sqliteCache) Set(ctx context.Context, source models.Source, key string, payload interface{}, ttl time.Duration, etag *string) error {
	if !source.Valid() {
		return fmt.Errorf("invalid cache source: %s", source)
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO external_cache
		(source, cache_key, payload_json, etag, fetched_at, ttl_seconds)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP, ?)
	`, source, key, string(payloadJSON), etag, int(ttl.Seconds()))
	if err != nil {
		return fmt.Errorf("storing cache entry: %w", err)
	}

	return nil
}

func (c *sqliteCache) Delete(ctx context.Context, source models.Source, key string) error {
	_, err := c.db.ExecContext(ctx, `
		DELETE FROM external_cache WHERE source = ? AND cache_key = ?
	`, source, key)
	return err
}

func (c *sqliteCache) ClearExpired(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `
		DELETE FROM external_cache
		WHERE datetime(fetched_at, '+' || ttl_seconds || ' seconds') <= datetime('now')
	`)
	return err
}

func (c *sqliteCache) ClearAll(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, "DELETE FROM external_cache")
	return err
}

func (c *sqliteCache) Close() error {
	if !c.owned {
		return nil
	}
	return c.db.Close()
}
