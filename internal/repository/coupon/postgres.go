package coupon

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cocart-replica/internal/domain"
)

type postgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) Repository {
	return &postgresRepo{pool: pool}
}

func (r *postgresRepo) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	const q = `
SELECT id, code, discount_type, amount, minimum_spend_cents,
       usage_limit, usage_count, individual_use, product_ids, categories, expires_at
FROM coupons
WHERE lower(code) = lower($1)
`
	var c domain.Coupon
	err := r.pool.QueryRow(ctx, q, strings.TrimSpace(code)).Scan(
		&c.ID, &c.Code, &c.DiscountType, &c.Amount, &c.MinimumSpendCents,
		&c.UsageLimit, &c.UsageCount, &c.IndividualUse, &c.ProductIDs, &c.Categories, &c.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}
