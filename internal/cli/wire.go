package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"storefront/config"
	"storefront/internal/adapter/checkpoint"
	"storefront/internal/adapter/dataset"
	"storefront/internal/adapter/embedding"
	"storefront/internal/adapter/repository"
	"storefront/internal/adapter/storage"
	"storefront/internal/adapter/vectorindex"
	"storefront/internal/logger"
	"storefront/internal/port"
	"storefront/internal/usecase"
)

// vectorBackend is what the CLI needs from a vector index implementation.
type vectorBackend interface {
	port.VectorIndex
	port.IndexAdmin
}

// app holds the adapters shared by the commands of one process.
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	repo   port.ProductRepository
	index  vectorBackend
	models *embedding.Registry
	images *storage.PublicURLs

	closers []func() error
}

func newApp(cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	repo, err := openRepository(cfg.Database)
	if err != nil {
		return nil, err
	}
	a.repo = repo
	a.closers = append(a.closers, repo.Close)

	index, closeIndex, err := openVectorIndex(cfg.VectorIndex)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.index = index
	if closeIndex != nil {
		a.closers = append(a.closers, closeIndex)
	}

	a.models = embedding.NewRegistry(cfg, index, nil)
	a.images = storage.NewPublicURLs(cfg.Storage)

	log.Debug("app ready",
		logger.F("database", cfg.Database.Driver), logger.F("vector_backend", cfg.VectorIndex.Backend),
		logger.F("default_model", cfg.DefaultModel))
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close failed", logger.Err(err))
		}
	}
	a.closers = nil
}

func (a *app) searchService() *usecase.SearchService {
	cache := embedding.NewCache(a.cfg.Search.CacheSize, a.cfg.Search.CacheTTL)
	return usecase.NewSearchService(a.repo, a.models, a.index, a.images, cache, a.cfg.Search, a.log)
}

func (a *app) productService() *usecase.ProductService {
	return usecase.NewProductService(a.repo, a.models, embedding.NewRetrier(a.cfg.Sync.Retry, a.log), a.log)
}

func (a *app) reembedService() *usecase.ReembedService {
	progress := checkpoint.NewFileStore(a.cfg.Reembed.ProgressDir)
	retrier := embedding.NewRetrier(a.cfg.Reembed.Retry, a.log)
	return usecase.NewReembedService(a.repo, a.models, progress, retrier, a.cfg.Reembed, a.log)
}

func (a *app) seedService(includes, excludes []string) *usecase.SeedService {
	if len(includes) == 0 {
		includes = a.cfg.Seed.Includes
	}
	if len(excludes) == 0 {
		excludes = a.cfg.Seed.Excludes
	}
	return usecase.NewSeedService(dataset.NewWalker(includes, excludes), a.productService(), a.log)
}

func openRepository(cfg config.DatabaseConfig) (port.ProductRepository, error) {
	if cfg.Driver == "memory" {
		return repository.NewMemoryStore(), nil
	}
	if cfg.Driver == "sqlite3" {
		if err := ensureParent(cfg.DSN); err != nil {
			return nil, err
		}
	}
	store, err := repository.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open product store: %w", err)
	}
	return store, nil
}

func openVectorIndex(cfg config.VectorIndexConfig) (vectorBackend, func() error, error) {
	switch cfg.Backend {
	case "bolt":
		if err := ensureParent(cfg.Path); err != nil {
			return nil, nil, err
		}
		idx, err := vectorindex.OpenBolt(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return idx, idx.Close, nil
	case "pinecone":
		idx, err := vectorindex.NewPinecone(cfg)
		if err != nil {
			return nil, nil, err
		}
		return idx, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported vector index backend: %s", cfg.Backend)
	}
}

func ensureParent(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}
