package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"storefront/internal/domain"
)

// MemoryStore keeps products in a map. Ids are assigned sequentially.
type MemoryStore struct {
	mu       sync.RWMutex
	products map[int64]domain.Product
	nextID   int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[int64]domain.Product),
		nextID:   1,
	}
}

func (s *MemoryStore) Create(ctx context.Context, p domain.Product) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p = clone(p.Normalize())
	p.ID = s.nextID
	s.nextID++
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	s.products[p.ID] = p
	return clone(p), nil
}

func (s *MemoryStore) Get(ctx context.Context, id int64) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, fmt.Errorf("%w: %d", domain.ErrProductNotFound, id)
	}
	return clone(p), nil
}

func (s *MemoryStore) Update(ctx context.Context, p domain.Product) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.products[p.ID]
	if !ok {
		return domain.Product{}, fmt.Errorf("%w: %d", domain.ErrProductNotFound, p.ID)
	}
	p = clone(p.Normalize())
	p.CreatedAt = old.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	s.products[p.ID] = p
	return clone(p), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return fmt.Errorf("%w: %d", domain.ErrProductNotFound, id)
	}
	delete(s.products, id)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, limit int) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.sorted(func(domain.Product) bool { return true })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) FindByIDs(ctx context.Context, ids []int64) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	return s.sorted(func(p domain.Product) bool { return want[p.ID] }), nil
}

func (s *MemoryStore) FindByTokens(ctx context.Context, tokens []string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sorted(func(p domain.Product) bool { return p.MatchesTokens(tokens) }), nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// sorted returns copies of the products accepted by keep, ordered by id.
// Callers hold the read lock.
func (s *MemoryStore) sorted(keep func(domain.Product) bool) []domain.Product {
	out := make([]domain.Product, 0)
	for _, p := range s.products {
		if keep(p) {
			out = append(out, clone(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func clone(p domain.Product) domain.Product {
	p.Categories = append([]string{}, p.Categories...)
	p.Images = append([]string{}, p.Images...)
	return p
}
