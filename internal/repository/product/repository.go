package product

import (
	"context"

	"cocart-replica/internal/domain"
)

// Repository is the read-only catalog gateway consumed by the cart
// engine. Variations are products themselves, tagged with parent_id and
// the attribute values that select them.
type Repository interface {
	Get(ctx context.Context, id int64) (*domain.Product, error)
	GetVariation(ctx context.Context, variationID int64) (*domain.Product, error)
	// ResolveVariation finds the variation of productID whose attributes
	// match attrs exactly. Returns domain.ErrNotFound when nothing
	// matches and domain.ErrAmbiguousVariation when more than one does.
	ResolveVariation(ctx context.Context, productID int64, attrs map[string]string) (int64, error)
	List(ctx context.Context, limit int) ([]domain.Product, error)
}
