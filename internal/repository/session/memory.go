package session

import (
	"context"
	"sort"
	"sync"

	"cocart-replica/internal/domain"
)

// MemoryRepo mirrors the dual-table semantics in memory for tests and
// database-less runs.
type MemoryRepo struct {
	mu       sync.Mutex
	nextID   int64
	sessions map[string]domain.CartRecord
	carts    map[string]domain.CartRecord
	legacy   map[string]domain.CartRecord

	transferred bool
	// now lets tests control expiry checks; zero means "no filtering
	// on read", matching rows the database would still return.
	now func() int64
}

func NewMemory() *MemoryRepo {
	return &MemoryRepo{
		sessions: make(map[string]domain.CartRecord),
		carts:    make(map[string]domain.CartRecord),
		legacy:   make(map[string]domain.CartRecord),
	}
}

// SetNow installs a clock for expiry filtering on Load.
func (r *MemoryRepo) SetNow(now func() int64) { r.now = now }

// SeedLegacy injects a legacy session row for transfer tests.
func (r *MemoryRepo) SeedLegacy(rec domain.CartRecord) {
	r.mu.Lock()
	r.legacy[rec.Key] = rec
	r.mu.Unlock()
}

func (r *MemoryRepo) Load(ctx context.Context, cartKey string) (*domain.CartRecord, error) {
	return r.loadFrom(r.sessions, cartKey)
}

func (r *MemoryRepo) LoadDurable(ctx context.Context, cartKey string) (*domain.CartRecord, error) {
	return r.loadFrom(r.carts, cartKey)
}

func (r *MemoryRepo) loadFrom(table map[string]domain.CartRecord, cartKey string) (*domain.CartRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := table[cartKey]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if r.now != nil && rec.Expiry < r.now() {
		return nil, domain.ErrNotFound
	}
	out := rec
	return &out, nil
}

func (r *MemoryRepo) Save(ctx context.Context, rec domain.CartRecord, sessionExpiry, cartExpiry int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	if existing, ok := r.sessions[rec.Key]; ok {
		rec.ID = existing.ID
	} else {
		rec.ID = r.nextID
	}
	sessionRec := rec
	sessionRec.Expiry = sessionExpiry
	r.sessions[rec.Key] = sessionRec
	cartRec := rec
	cartRec.Expiry = cartExpiry
	r.carts[rec.Key] = cartRec
	return nil
}

func (r *MemoryRepo) Delete(ctx context.Context, cartKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, cartKey)
	delete(r.carts, cartKey)
	return nil
}

func (r *MemoryRepo) Rename(ctx context.Context, oldKey, newKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.carts[newKey]; ok {
		return domain.ErrConflict
	}
	for _, table := range []map[string]domain.CartRecord{r.sessions, r.carts} {
		if rec, ok := table[oldKey]; ok {
			rec.Key = newKey
			table[newKey] = rec
			delete(table, oldKey)
		}
	}
	return nil
}

func (r *MemoryRepo) SweepExpired(ctx context.Context, now int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, table := range []map[string]domain.CartRecord{r.sessions, r.carts} {
		for key, rec := range table {
			if rec.Expiry < now {
				delete(table, key)
				total++
			}
		}
	}
	return total, nil
}

func (r *MemoryRepo) TransferLegacy(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.transferred {
		return 0, nil
	}
	r.transferred = true
	var moved int64
	for key, rec := range r.legacy {
		if _, ok := r.carts[key]; ok {
			continue
		}
		rec.Source = domain.SourceWooCommerce
		r.carts[key] = rec
		moved++
	}
	r.legacy = make(map[string]domain.CartRecord)
	return moved, nil
}

func (r *MemoryRepo) List(ctx context.Context, limit int) ([]domain.CartRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]domain.CartRecord, 0, len(r.carts))
	for _, rec := range r.carts {
		result = append(result, rec)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Created > result[j].Created })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
