package coupon

import (
	"context"
	"strings"
	"sync"

	"cocart-replica/internal/domain"
)

// MemoryRepo is an in-memory coupon lookup for tests.
type MemoryRepo struct {
	mu      sync.RWMutex
	coupons map[string]domain.Coupon
}

func NewMemory(coupons ...domain.Coupon) *MemoryRepo {
	repo := &MemoryRepo{coupons: make(map[string]domain.Coupon, len(coupons))}
	for _, c := range coupons {
		repo.coupons[strings.ToLower(c.Code)] = c
	}
	return repo
}

func (r *MemoryRepo) Put(c domain.Coupon) {
	r.mu.Lock()
	r.coupons[strings.ToLower(c.Code)] = c
	r.mu.Unlock()
}

func (r *MemoryRepo) GetByCode(_ context.Context, code string) (*domain.Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.coupons[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}
