package product

import (
	"context"
	"sort"
	"sync"

	"cocart-replica/internal/domain"
)

// MemoryRepo is an in-memory catalog used by tests and local runs
// without a database.
type MemoryRepo struct {
	mu       sync.RWMutex
	products map[int64]domain.Product
}

func NewMemory(products ...domain.Product) *MemoryRepo {
	repo := &MemoryRepo{products: make(map[int64]domain.Product, len(products))}
	for _, p := range products {
		repo.products[p.ID] = p
	}
	return repo
}

// Put inserts or replaces a product.
func (r *MemoryRepo) Put(p domain.Product) {
	r.mu.Lock()
	r.products[p.ID] = p
	r.mu.Unlock()
}

func (r *MemoryRepo) Get(_ context.Context, id int64) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	switch p.Type {
	case domain.ProductVariable:
		p.VariationIDs = r.children(p.ID)
	case domain.ProductGrouped:
		p.ChildIDs = r.children(p.ID)
	}
	return &p, nil
}

func (r *MemoryRepo) GetVariation(_ context.Context, variationID int64) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[variationID]
	if !ok || p.Type != domain.ProductVariation {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (r *MemoryRepo) ResolveVariation(_ context.Context, productID int64, attrs map[string]string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matches []int64
	for _, id := range r.children(productID) {
		p := r.products[id]
		if p.Type == domain.ProductVariation && attrsMatch(p.VariationAttrs, attrs) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return 0, domain.ErrNotFound
	case 1:
		return matches[0], nil
	default:
		return 0, domain.ErrAmbiguousVariation
	}
}

func (r *MemoryRepo) List(_ context.Context, limit int) ([]domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Product
	for _, p := range r.products {
		if p.Type != domain.ProductVariation {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// children must be called with the lock held.
func (r *MemoryRepo) children(parentID int64) []int64 {
	var ids []int64
	for id, p := range r.products {
		if p.ParentID == parentID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
