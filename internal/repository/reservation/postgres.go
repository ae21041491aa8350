package reservation

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) Repository {
	return &postgresRepo{pool: pool}
}

func (r *postgresRepo) ReservedQty(ctx context.Context, productID int64, excludeCartKey string) (int, error) {
	const q = `
SELECT COALESCE(SUM(quantity), 0)
FROM stock_reservations
WHERE product_id = $1
  AND cart_key <> $2
  AND expires_at >= EXTRACT(EPOCH FROM now())::bigint
`
	var qty int
	if err := r.pool.QueryRow(ctx, q, productID, excludeCartKey).Scan(&qty); err != nil {
		return 0, err
	}
	return qty, nil
}
