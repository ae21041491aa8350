package seed

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"cocart-replica/internal/service/identity"
)

type productSeed struct {
	ID               int64
	Type             string
	ParentID         int64
	Name             string
	Slug             string
	PriceCents       int64
	ManageStock      bool
	StockQty         int
	BackordersOK     bool
	SoldIndividually bool
	MinPurchase      int
	MaxPurchase      int
	Categories       string
	VariationAttrs   string
}

type couponSeed struct {
	Code          string
	DiscountType  string
	Amount        int64
	MinimumSpend  int64
	IndividualUse bool
	ProductIDs    string
	Categories    string
}

// Apply inserts a small demo catalog for manual testing. Idempotent via
// ON CONFLICT so it can run on every deploy.
func Apply(ctx context.Context, pool *pgxpool.Pool) error {
	products := []productSeed{
		{ID: 1, Type: "simple", Name: "Demo Hoodie", Slug: "demo-hoodie", PriceCents: 4500,
			ManageStock: true, StockQty: 25, Categories: `["apparel"]`},
		{ID: 2, Type: "simple", Name: "Demo Sticker Pack", Slug: "demo-sticker-pack", PriceCents: 500,
			Categories: `["accessories"]`},
		{ID: 3, Type: "variable", Name: "Demo T-Shirt", Slug: "demo-tshirt", PriceCents: 1999,
			Categories: `["apparel"]`},
		{ID: 4, Type: "variation", ParentID: 3, Name: "Demo T-Shirt - Small", Slug: "demo-tshirt-small",
			PriceCents: 1999, ManageStock: true, StockQty: 10, VariationAttrs: `{"size":"small"}`},
		{ID: 5, Type: "variation", ParentID: 3, Name: "Demo T-Shirt - Large", Slug: "demo-tshirt-large",
			PriceCents: 2199, ManageStock: true, StockQty: 3, BackordersOK: true, VariationAttrs: `{"size":"large"}`},
		{ID: 6, Type: "simple", Name: "Limited Print", Slug: "limited-print", PriceCents: 12000,
			ManageStock: true, StockQty: 1, SoldIndividually: true, Categories: `["art"]`},
		{ID: 7, Type: "simple", Name: "Demo Socks", Slug: "demo-socks", PriceCents: 900,
			MinPurchase: 2, MaxPurchase: 10, Categories: `["apparel"]`},
		{ID: 8, Type: "grouped", Name: "Demo Starter Bundle", Slug: "demo-starter-bundle"},
		{ID: 9, Type: "simple", ParentID: 8, Name: "Bundle Notebook", Slug: "bundle-notebook", PriceCents: 1200},
	}
	for _, p := range products {
		if err := upsertProduct(ctx, pool, p); err != nil {
			return fmt.Errorf("upsert product %s: %w", p.Slug, err)
		}
	}
	if _, err := pool.Exec(ctx, `SELECT setval('products_id_seq', (SELECT MAX(id) FROM products))`); err != nil {
		return fmt.Errorf("bump products sequence: %w", err)
	}

	coupons := []couponSeed{
		{Code: "welcome10", DiscountType: "percent", Amount: 10, ProductIDs: `[]`, Categories: `[]`},
		{Code: "fiveoff", DiscountType: "fixed_cart", Amount: 500, MinimumSpend: 2000, ProductIDs: `[]`, Categories: `[]`},
		{Code: "apparel15", DiscountType: "percent", Amount: 15, ProductIDs: `[]`, Categories: `["apparel"]`},
		{Code: "vip25", DiscountType: "percent", Amount: 25, IndividualUse: true, ProductIDs: `[]`, Categories: `[]`},
	}
	for _, cp := range coupons {
		if err := upsertCoupon(ctx, pool, cp); err != nil {
			return fmt.Errorf("upsert coupon %s: %w", cp.Code, err)
		}
	}

	if err := ensureDemoUser(ctx, pool, "demo@example.com", "demo-password", "Demo Customer"); err != nil {
		return fmt.Errorf("ensure demo user: %w", err)
	}
	return nil
}

func upsertProduct(ctx context.Context, pool *pgxpool.Pool, p productSeed) error {
	const q = `
INSERT INTO products (id, product_type, parent_id, name, slug, price_cents,
    manage_stock, stock_qty, backorders_allowed, sold_individually,
    min_purchase, max_purchase, categories, variation_attributes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::jsonb, $14::jsonb)
ON CONFLICT (id) DO UPDATE
SET product_type = EXCLUDED.product_type,
    parent_id = EXCLUDED.parent_id,
    name = EXCLUDED.name,
    slug = EXCLUDED.slug,
    price_cents = EXCLUDED.price_cents,
    manage_stock = EXCLUDED.manage_stock,
    stock_qty = EXCLUDED.stock_qty,
    backorders_allowed = EXCLUDED.backorders_allowed,
    sold_individually = EXCLUDED.sold_individually,
    min_purchase = EXCLUDED.min_purchase,
    max_purchase = EXCLUDED.max_purchase,
    categories = EXCLUDED.categories,
    variation_attributes = EXCLUDED.variation_attributes,
    updated_at = now()
`
	categories := p.Categories
	if categories == "" {
		categories = `[]`
	}
	attrs := p.VariationAttrs
	if attrs == "" {
		attrs = `{}`
	}
	_, err := pool.Exec(ctx, q, p.ID, p.Type, p.ParentID, p.Name, p.Slug, p.PriceCents,
		p.ManageStock, p.StockQty, p.BackordersOK, p.SoldIndividually,
		p.MinPurchase, p.MaxPurchase, categories, attrs)
	return err
}

func upsertCoupon(ctx context.Context, pool *pgxpool.Pool, cp couponSeed) error {
	const q = `
INSERT INTO coupons (code, discount_type, amount, minimum_spend_cents, individual_use, product_ids, categories)
VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb)
ON CONFLICT (code) DO UPDATE
SET discount_type = EXCLUDED.discount_type,
    amount = EXCLUDED.amount,
    minimum_spend_cents = EXCLUDED.minimum_spend_cents,
    individual_use = EXCLUDED.individual_use,
    product_ids = EXCLUDED.product_ids,
    categories = EXCLUDED.categories
`
	_, err := pool.Exec(ctx, q, cp.Code, cp.DiscountType, cp.Amount, cp.MinimumSpend, cp.IndividualUse, cp.ProductIDs, cp.Categories)
	return err
}

func ensureDemoUser(ctx context.Context, pool *pgxpool.Pool, email, password, displayName string) error {
	hash, err := identity.HashPassword(password)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO users (email, password_hash, display_name)
VALUES ($1, $2, $3)
ON CONFLICT (email) DO UPDATE SET display_name = EXCLUDED.display_name
`
	_, err = pool.Exec(ctx, q, email, hash, displayName)
	return err
}
