package cli

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"storefront/config"
	"storefront/internal/domain"
	"storefront/internal/logger"
	"storefront/internal/usecase"
)

func TestFormatDuration(t *testing.T) {
	cases := map[time.Duration]string{
		500 * time.Millisecond:        "<1s",
		42 * time.Second:              "42s",
		3*time.Minute + 5*time.Second: "3m5s",
		2*time.Hour + 7*time.Minute:   "2h7m",
	}
	for d, want := range cases {
		if got := formatDuration(d); got != want {
			t.Errorf("formatDuration(%s): expected %q, got %q", d, want, got)
		}
	}
}

func TestResolvePaths(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.Driver = "sqlite3"
	cfg.Database.DSN = "data/store.db"
	cfg.VectorIndex.Path = "/abs/vectors.db"
	cfg.Reembed.ProgressDir = ".storefront"

	resolvePaths(cfg, "/srv/shop")

	if cfg.Database.DSN != filepath.Join("/srv/shop", "data/store.db") {
		t.Errorf("expected anchored dsn, got %s", cfg.Database.DSN)
	}
	if cfg.VectorIndex.Path != "/abs/vectors.db" {
		t.Errorf("expected absolute path kept, got %s", cfg.VectorIndex.Path)
	}
	if cfg.Reembed.ProgressDir != filepath.Join("/srv/shop", ".storefront") {
		t.Errorf("expected anchored progress dir, got %s", cfg.Reembed.ProgressDir)
	}
}

func TestResolvePathsLeavesPostgresDSN(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.Driver = "postgres"
	cfg.Database.DSN = "postgres://shop@localhost/shop?sslmode=disable"

	resolvePaths(cfg, "/srv/shop")

	if cfg.Database.DSN != "postgres://shop@localhost/shop?sslmode=disable" {
		t.Errorf("expected postgres dsn untouched, got %s", cfg.Database.DSN)
	}
}

func TestOpenVectorIndexUnknownBackend(t *testing.T) {
	_, _, err := openVectorIndex(config.VectorIndexConfig{Backend: "faiss"})
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestAppWiresMemoryStoreAndBoltIndex(t *testing.T) {
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Database.Driver = "memory"
	cfg.VectorIndex.Backend = "bolt"
	cfg.VectorIndex.Path = filepath.Join(dir, "nested", "vectors.db")
	cfg.Reembed.ProgressDir = dir
	cfg.Models = []config.ModelConfig{
		{Name: "mock", Provider: "mock", Dimension: 32, Index: "products", Sync: true},
	}
	cfg.DefaultModel = "mock"

	a, err := newApp(cfg, logger.Discard())
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	defer a.Close()

	ctx := context.Background()
	if err := a.index.EnsureIndex(ctx, "products", 32); err != nil {
		t.Fatalf("EnsureIndex failed: %v", err)
	}

	created, err := a.productService().Create(ctx, domain.Product{
		Name:        "Walnut Desk",
		Description: "Solid walnut writing desk",
		Categories:  []string{"Furniture"},
		Price:       domain.Price(45000),
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	resp, err := a.searchService().Search(ctx, usecase.SearchRequest{Query: "walnut"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(resp.Results) == 0 || resp.Results[0].ID != created.ID {
		t.Fatalf("expected product %d first, got %+v", created.ID, resp.Results)
	}
	if resp.Results[0].MatchType != domain.MatchExact {
		t.Errorf("expected exact match, got %s", resp.Results[0].MatchType)
	}

	noDelay := time.Duration(0)
	report, err := a.reembedService().Run(ctx, usecase.ReembedOptions{Model: "mock", Delay: &noDelay})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Processed != 1 || report.Failed != 0 {
		t.Errorf("expected 1 processed, got %+v", report)
	}
}
