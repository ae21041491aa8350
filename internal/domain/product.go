package domain

import "time"

// ProductType tags the polymorphic product kinds.
type ProductType string

const (
	ProductSimple    ProductType = "simple"
	ProductVariable  ProductType = "variable"
	ProductVariation ProductType = "variation"
	ProductGrouped   ProductType = "grouped"
)

// Dimensions in millimetres.
type Dimensions struct {
	Length int `json:"length"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Product is the read-only catalog view consumed by the cart engine.
// Variations carry ParentID and the attribute values that select them;
// variable products list their variation ids; grouped products list
// their children.
type Product struct {
	ID                int64             `json:"id"`
	Type              ProductType       `json:"type"`
	Name              string            `json:"name"`
	Slug              string            `json:"slug"`
	PriceCents        int64             `json:"price_cents"`
	Currency          string            `json:"currency"`
	Purchasable       bool              `json:"purchasable"`
	InStock           bool              `json:"in_stock"`
	ManageStock       bool              `json:"manage_stock"`
	StockQty          int               `json:"stock_qty"`
	BackordersAllowed bool              `json:"backorders_allowed"`
	SoldIndividually  bool              `json:"sold_individually"`
	MinPurchase       int               `json:"min_purchase"`
	MaxPurchase       int               `json:"max_purchase"`
	WeightGrams       int               `json:"weight_grams"`
	Dimensions        Dimensions        `json:"dimensions"`
	ImageURL          string            `json:"image_url,omitempty"`
	Categories        []string          `json:"categories,omitempty"`
	ParentID          int64             `json:"parent_id,omitempty"`
	VariationAttrs    map[string]string `json:"variation_attributes,omitempty"`
	VariationIDs      []int64           `json:"variation_ids,omitempty"`
	ChildIDs          []int64           `json:"child_ids,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}
