package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/matthewgall/shelfscrape/internal/config"
	"github.com/matthewgall/shelfscrape/internal/models"
)

func TestNewCache(t *testing.T) {
	ctx := context.Background()

	if c := newCache(ctx, config.CacheConfig{Provider: "sqlite", Directory: t.TempDir(), Disabled: true}); c != nil {
		t.Errorf("newCache() = %T, want nil when disabled", c)
	}
	if c := newCache(ctx, config.CacheConfig{Provider: "sqlite"}); c != nil {
		t.Errorf("newCache() = %T, want nil without a directory", c)
	}

	c := newCache(ctx, config.CacheConfig{Provider: "sqlite", Directory: t.TempDir()})
	if c == nil {
		t.Fatal("newCache() = nil, want sqlite cache")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestAppCloseReleasesHandles(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(dir, "history.db")
	cfg.Cache.Directory = filepath.Join(dir, "cache")
	cfg.Artifacts.Local.Directory = filepath.Join(dir, "out")

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	if a.cache == nil || a.history == nil {
		t.Fatalf("newApp() should open cache and history, got cache=%v history=%v", a.cache, a.history)
	}

	a.Close()

	if _, err := a.cache.Get(ctx, models.SourcePage, "k"); err == nil {
		t.Error("cache should be closed")
	}
	if _, err := a.history.ListExtractions(ctx, 1); err == nil {
		t.Error("history should be closed")
	}
}
