package main

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/matthewgall/shelfscrape/internal/artifacts"
	"github.com/matthewgall/shelfscrape/internal/cache"
	"github.com/matthewgall/shelfscrape/internal/config"
	"github.com/matthewgall/shelfscrape/internal/db"
	"github.com/matthewgall/shelfscrape/internal/fetcher"
	"github.com/matthewgall/shelfscrape/internal/matcher"
	"github.com/matthewgall/shelfscrape/internal/pipeline"
	"github.com/matthewgall/shelfscrape/internal/relaxjson"
	"github.com/matthewgall/shelfscrape/internal/search"
)

// app holds the components shared by every command.
type app struct {
	history  *db.DB
	cache    cache.Cache
	pipeline *pipeline.Pipeline
	search   *search.Client
	matcher  *matcher.Matcher
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cache: newCache(ctx, cfg.Cache)}

	if cfg.Database.Path != "" {
		history, err := db.New(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("initializing database: %w", err)
		}
		a.history = history
	}

	store, err := artifacts.New(ctx, cfg.Artifacts)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initializing artifact storage: %w", err)
	}

	parser := relaxjson.New(relaxjson.Options{
		Identifiers:   cfg.Parser.Identifiers,
		MinObjectSize: cfg.Parser.MinObjectSize,
		Artifacts:     artifacts.DebugWriter{Store: store, Key: cfg.Artifacts.DebugKey},
	})
	pageFetcher := fetcher.New(fetcher.Options{
		Cache:     a.cache,
		CacheTTL:  cfg.Cache.TTL.Page,
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   cfg.Fetch.Timeout,
	})

	opts := pipeline.Options{
		Parser:    parser,
		Fetcher:   pageFetcher,
		Store:     store,
		OutputKey: cfg.Output.Path,
		DebugKey:  cfg.Artifacts.DebugKey,
	}
	if a.history != nil {
		opts.History = a.history
	}
	a.pipeline = pipeline.New(opts)

	a.search = search.New(search.Options{
		BaseURL:   cfg.Search.BaseURL,
		Cache:     a.cache,
		CacheTTL:  cfg.Cache.TTL.Search,
		UserAgent: cfg.Fetch.UserAgent,
	})
	a.matcher = matcher.New(matcher.Options{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
		Site:    cfg.Search.Site,
	})

	return a, nil
}

// newCache returns nil when caching is disabled or the backend is
// unavailable; callers treat a nil cache as a miss.
func newCache(ctx context.Context, cfg config.CacheConfig) cache.Cache {
	if cfg.Disabled {
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "redis":
		redisCache, err := cache.NewRedis(cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			UseTLS:   cfg.Redis.UseTLS,
		})
		if err != nil {
			log.Printf("Warning: failed to initialize redis cache: %v", err)
			return nil
		}
		return redisCache
	default:
		if strings.TrimSpace(cfg.Directory) == "" {
			return nil
		}
		cachePath := filepath.Join(cfg.Directory, "external_cache.db")
		sqliteCache, err := cache.NewWithPath(cachePath)
		if err != nil {
			log.Printf("Warning: failed to initialize cache DB at %s: %v", cachePath, err)
			return nil
		}
		if err := sqliteCache.ClearExpired(ctx); err != nil {
			log.Printf("Warning: failed to clear expired cache entries: %v", err)
		}
		return sqliteCache
	}
}

func (a *app) Close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			log.Printf("Warning: failed to close cache: %v", err)
		}
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			log.Printf("Warning: failed to close database: %v", err)
		}
	}
}
