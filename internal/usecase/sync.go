package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/adapter/embedding"
	"storefront/internal/domain"
	"storefront/internal/logger"
	"storefront/internal/port"
)

// ProductService writes products to the relational store and then keeps
// every synced vector index in step. The two writes are not transactional:
// a failed index write leaves the row in place and is reported as a sync
// error alongside the stored product.
type ProductService struct {
	repo    port.ProductRepository
	models  port.ModelCatalog
	retrier *embedding.Retrier
	log     *logger.Logger
}

func NewProductService(
	repo port.ProductRepository,
	models port.ModelCatalog,
	retrier *embedding.Retrier,
	log *logger.Logger,
) *ProductService {
	if log == nil {
		log = logger.Discard()
	}
	return &ProductService{
		repo:    repo,
		models:  models,
		retrier: retrier,
		log:     log.WithComponent("sync"),
	}
}

func (s *ProductService) Get(ctx context.Context, id int64) (domain.Product, error) {
	if id <= 0 {
		return domain.Product{}, domain.NewInputError("get product", domain.ErrInvalidID)
	}
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Product{}, repoError("get product", err)
	}
	return p, nil
}

// Create stores the product, then embeds it and upserts its vector into every
// synced index.
func (s *ProductService) Create(ctx context.Context, p domain.Product) (domain.Product, error) {
	if err := validate(p); err != nil {
		return domain.Product{}, domain.NewInputError("create product", err)
	}

	created, err := s.repo.Create(ctx, p)
	if err != nil {
		return domain.Product{}, domain.NewRepositoryFailure("create product", err)
	}
	s.log.Info("product created", logger.F("id", created.ID), logger.F("name", created.Name))

	if err := s.forEachIndex(ctx, func(profile port.ModelProfile) error {
		return s.upsert(ctx, profile, created)
	}); err != nil {
		return created, domain.NewSyncError("create product", created.ID, err)
	}
	return created, nil
}

// Update stores the change, then re-embeds only when name or description
// changed. Otherwise only the vector metadata is replaced.
func (s *ProductService) Update(ctx context.Context, p domain.Product) (domain.Product, error) {
	if p.ID <= 0 {
		return domain.Product{}, domain.NewInputError("update product", domain.ErrInvalidID)
	}
	if err := validate(p); err != nil {
		return domain.Product{}, domain.NewInputError("update product", err)
	}

	before, err := s.repo.Get(ctx, p.ID)
	if err != nil {
		return domain.Product{}, repoError("update product", err)
	}

	updated, err := s.repo.Update(ctx, p)
	if err != nil {
		return domain.Product{}, repoError("update product", err)
	}

	reembed := before.ContentChanged(updated)
	s.log.Info("product updated", logger.F("id", updated.ID), logger.F("reembed", reembed))

	if err := s.forEachIndex(ctx, func(profile port.ModelProfile) error {
		if reembed {
			return s.upsert(ctx, profile, updated)
		}
		return s.retrier.Do(ctx, "update metadata", func(ctx context.Context) error {
			return profile.Vectors.Update(ctx, updated.VectorID(), nil, updated.VectorMetadata())
		})
	}); err != nil {
		return updated, domain.NewSyncError("update product", updated.ID, err)
	}
	return updated, nil
}

// Delete removes the row, then the vector records. A failed vector delete is
// reported; the row is not restored.
func (s *ProductService) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return domain.NewInputError("delete product", domain.ErrInvalidID)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return repoError("delete product", err)
	}
	s.log.Info("product deleted", logger.F("id", id))

	vectorID := domain.Product{ID: id}.VectorID()
	if err := s.forEachIndex(ctx, func(profile port.ModelProfile) error {
		return s.retrier.Do(ctx, "delete vector", func(ctx context.Context) error {
			return profile.Vectors.Delete(ctx, []string{vectorID})
		})
	}); err != nil {
		return domain.NewSyncError("delete product", id, err)
	}
	return nil
}

func (s *ProductService) upsert(ctx context.Context, profile port.ModelProfile, p domain.Product) error {
	var vector []float32
	err := s.retrier.Do(ctx, "embed "+profile.Name, func(ctx context.Context) error {
		v, err := profile.Embedder.Embed(ctx, p.EmbeddingText())
		vector = v
		return err
	})
	if err != nil {
		return domain.NewProviderFailure("embed product", profile.Name, err)
	}

	record := port.VectorRecord{ID: p.VectorID(), Values: vector, Metadata: p.VectorMetadata()}
	return s.retrier.Do(ctx, "upsert "+profile.Name, func(ctx context.Context) error {
		return profile.Vectors.Upsert(ctx, []port.VectorRecord{record})
	})
}

// forEachIndex applies fn to every synced profile that could be built and
// joins the failures, including the profiles that could not.
func (s *ProductService) forEachIndex(ctx context.Context, fn func(port.ModelProfile) error) error {
	var errs []error
	profiles, err := s.models.Synced()
	if err != nil {
		s.log.Error("cannot resolve synced models", logger.Err(err))
		errs = append(errs, err)
	}

	for _, profile := range profiles {
		if err := fn(profile); err != nil {
			s.log.Error("vector index sync failed",
				logger.F("model", profile.Name), logger.F("index", profile.Index), logger.F("namespace", profile.Namespace), logger.Err(err))
			if !domain.IsKind(err, domain.KindProvider) {
				err = domain.NewIndexServiceFailure("sync", profile.Index, profile.Namespace, err)
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func validate(p domain.Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("product name is required")
	}
	if p.Price < 0 {
		return fmt.Errorf("price must not be negative")
	}
	return nil
}

// repoError keeps not-found visible to callers and classifies the rest.
func repoError(op string, err error) error {
	if errors.Is(err, domain.ErrProductNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return domain.NewRepositoryFailure(op, err)
}
