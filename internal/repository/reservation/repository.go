package reservation

import "context"

// Repository exposes the draft-order stock holds consulted by stock
// admission. Reserved stock held by other carts reduces what a cart may
// admit.
type Repository interface {
	// ReservedQty sums unexpired holds on productID, excluding the
	// requesting cart's own hold.
	ReservedQty(ctx context.Context, productID int64, excludeCartKey string) (int, error)
}
