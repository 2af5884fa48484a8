package port

import (
	"context"

	"storefront/internal/domain"
)

// ProductRepository is the relational system of record.
type ProductRepository interface {
	Create(ctx context.Context, p domain.Product) (domain.Product, error)

	Get(ctx context.Context, id int64) (domain.Product, error)

	Update(ctx context.Context, p domain.Product) (domain.Product, error)

	Delete(ctx context.Context, id int64) error

	// List returns up to limit products ordered by id. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]domain.Product, error)

	// FindByIDs returns the products that exist among ids, ordered by id.
	// Missing ids are silently absent.
	FindByIDs(ctx context.Context, ids []int64) ([]domain.Product, error)

	// FindByTokens returns products where every token occurs in name,
	// description or a category, ordered by id.
	FindByTokens(ctx context.Context, tokens []string) ([]domain.Product, error)

	Close() error
}
