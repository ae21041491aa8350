package product

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cocart-replica/internal/domain"
)

const productColumns = `
id, product_type, parent_id, name, slug, price_cents, currency,
purchasable, in_stock, manage_stock, stock_qty, backorders_allowed,
sold_individually, min_purchase, max_purchase,
weight_grams, length_mm, width_mm, height_mm, image_url,
categories, variation_attributes, created_at, updated_at`

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *log.Logger) Repository {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &postgresRepo{pool: pool, logger: logger}
}

func (r *postgresRepo) Get(ctx context.Context, id int64) (*domain.Product, error) {
	p, err := r.fetch(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	switch p.Type {
	case domain.ProductVariable:
		if p.VariationIDs, err = r.childIDs(ctx, p.ID); err != nil {
			return nil, err
		}
	case domain.ProductGrouped:
		if p.ChildIDs, err = r.childIDs(ctx, p.ID); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (r *postgresRepo) GetVariation(ctx context.Context, variationID int64) (*domain.Product, error) {
	p, err := r.fetch(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 AND product_type = 'variation'`, variationID)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *postgresRepo) ResolveVariation(ctx context.Context, productID int64, attrs map[string]string) (int64, error) {
	const q = `
SELECT id, variation_attributes
FROM products
WHERE parent_id = $1 AND product_type = 'variation'
ORDER BY id
`
	rows, err := r.pool.Query(ctx, q, productID)
	if err != nil {
		r.logger.Printf("product repo: resolve variation product_id=%d error=%v", productID, err)
		return 0, err
	}
	defer rows.Close()

	var matches []int64
	for rows.Next() {
		var id int64
		var varAttrs map[string]string
		if err := rows.Scan(&id, &varAttrs); err != nil {
			return 0, err
		}
		if attrsMatch(varAttrs, attrs) {
			matches = append(matches, id)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
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

func (r *postgresRepo) List(ctx context.Context, limit int) ([]domain.Product, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
SELECT `+productColumns+`
FROM products
WHERE product_type <> 'variation'
ORDER BY id
LIMIT $1
`, limit)
	if err != nil {
		r.logger.Printf("product repo: list error=%v", err)
		return nil, err
	}
	defer rows.Close()

	var result []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

func (r *postgresRepo) fetch(ctx context.Context, q string, args ...any) (*domain.Product, error) {
	row := r.pool.QueryRow(ctx, q, args...)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Printf("product repo: fetch error=%v", err)
		return nil, err
	}
	return p, nil
}

func (r *postgresRepo) childIDs(ctx context.Context, parentID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM products WHERE parent_id = $1 ORDER BY id`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var p domain.Product
	if err := row.Scan(
		&p.ID, &p.Type, &p.ParentID, &p.Name, &p.Slug, &p.PriceCents, &p.Currency,
		&p.Purchasable, &p.InStock, &p.ManageStock, &p.StockQty, &p.BackordersAllowed,
		&p.SoldIndividually, &p.MinPurchase, &p.MaxPurchase,
		&p.WeightGrams, &p.Dimensions.Length, &p.Dimensions.Width, &p.Dimensions.Height, &p.ImageURL,
		&p.Categories, &p.VariationAttrs, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

// attrsMatch requires every variation attribute to be present in the
// request with the same value, ignoring case on names.
func attrsMatch(varAttrs, requested map[string]string) bool {
	if len(varAttrs) == 0 {
		return false
	}
	req := make(map[string]string, len(requested))
	for name, value := range requested {
		req[strings.ToLower(name)] = value
	}
	for name, want := range varAttrs {
		if req[strings.ToLower(name)] != want {
			return false
		}
	}
	return true
}
