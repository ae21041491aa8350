package session

import (
	"context"

	"cocart-replica/internal/domain"
)

// Repository persists carts in two tables: cocart_sessions holds the
// short-lived rolling session row, cocart_carts the durable row that
// survives session expiry. Save upserts both in one transaction.
type Repository interface {
	// Load reads the session row. domain.ErrNotFound on miss or expiry.
	Load(ctx context.Context, cartKey string) (*domain.CartRecord, error)
	// LoadDurable reads the durable row; used to promote a cart back
	// into the session table after the session row expired.
	LoadDurable(ctx context.Context, cartKey string) (*domain.CartRecord, error)
	// Save upserts the session row with sessionExpiry and the durable
	// row with cartExpiry atomically.
	Save(ctx context.Context, rec domain.CartRecord, sessionExpiry, cartExpiry int64) error
	// Delete removes both rows.
	Delete(ctx context.Context, cartKey string) error
	// Rename moves both rows from oldKey to newKey. Returns
	// domain.ErrConflict if newKey already holds a cart.
	Rename(ctx context.Context, oldKey, newKey string) error
	// SweepExpired deletes rows past their expiry from both tables and
	// reports how many were removed. Idempotent.
	SweepExpired(ctx context.Context, now int64) (int64, error)
	// TransferLegacy migrates still-valid rows from the legacy session
	// table into cocart_carts. Runs once per install; re-entrant.
	TransferLegacy(ctx context.Context) (int64, error)
	// List returns durable rows for the admin surface.
	List(ctx context.Context, limit int) ([]domain.CartRecord, error)
}
