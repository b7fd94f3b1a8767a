package cache

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matthewgall/shelfscrape/internal/models"
	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	UseTLS    bool
	KeyPrefix string
}

type redisCache struct {
	client    *redis.Client
	keyPrefix string
}

type redisCacheEntry struct {
	Source      models.Source `json:"source"`
	CacheKey    string        `json:"cache_key"`
	PayloadJSON string        `json:"payload_json"`
	ETag        *string       `json:"etag,omitempty"`
	FetchedAt   time.Time     `json:"fetched_at"`
	TTLSeconds  int           `json:"ttl_seconds"`
}

func NewRedis(cfg RedisConfig) (Cache, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	options := &redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.UseTLS {
		options.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(options)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "shelfscrape"
	}
	return &redisCache{client: client, keyPrefix: prefix}, nil
}

func (c *redisCache) Get(ctx context.Context, source models.Source, key string) (*models.ExternalCache, error) {
	value, err := c.client.Get(ctx, c.buildKey(source, key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying redis cache: %w", err)
	}

	var entry redisCacheEntry
	if err := json.Unmarshal([]byte(value), &entry); err != nil {
		return nil, fmt.Errorf("decoding redis cache: %w", err)
	}

	return &models.ExternalCache{
		Source:      entry.Source,
		CacheKey:    entry.CacheKey,
		PayloadJSON: entry.PayloadJSON,
		ETag:        entry.ETag,
		FetchedAt:   entry.FetchedAt,
		TTLSeconds:  entry.TTLSeconds,
	}, nil
}

func (c *redisCache) Set(ctx context.Context, source models.Source, key string, payload interface{}, ttl time.Duration, etag *string) error {
	if !source.Valid() {
		return fmt.Errorf("invalid cache source: %s", source)
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	encoded, err := json.Marshal(redisCacheEntry{
		Source:      source,
		CacheKey:    key,
		PayloadJSON: string(payloadJSON),
		ETag:        etag,
		FetchedAt:   time.Now().UTC(),
		TTLSeconds:  int(ttl.Seconds()),
	})
	if err != nil {
		return fmt.Errorf("encoding redis cache: %w", err)
	}

	if err := c.client.Set(ctx, c.buildKey(source, key), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("storing redis cache: %w", err)
	}
	return nil
}

func (c *redisCache) Delete(ctx context.Context, source models.Source, key string) error {
	if err := c.client.Del(ctx, c.buildKey(source, key)).Err(); err != nil {
		return fmt.Errorf("deleting redis cache: %w", err)
	}
	return nil
}

// ClearExpired is a no-op: redis expires keys itself.
func (c *redisCache) ClearExpired(ctx context.Context) error {
	return nil
}

func (c *redisCache) ClearAll(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.keyPrefix+":*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("clearing redis cache: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scanning redis keys: %w", err)
	}
	return nil
}

func (c *redisCache) Close() error {
	return c.client.Close()
}

func (c *redisCache) buildKey(source models.Source, key string) string {
	return fmt.Sprintf("%s:%s:%s", c.keyPrefix, source, key)
}
