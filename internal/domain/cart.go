package domain

// CartSchemaVersion tags the serialized cart blob so future readers can
// migrate older payloads.
const CartSchemaVersion = 1

// Cart source tags recorded on the durable row.
const (
	SourceCoCart      = "cocart"
	SourceWooCommerce = "woocommerce"
	SourceOther       = "other"
)

// CartItem is a single line in a cart. ItemKey is the deterministic hash
// of (product, variation, attributes, item data); two adds with the same
// tuple land on the same line.
type CartItem struct {
	ItemKey             string            `json:"item_key"`
	ProductID           int64             `json:"product_id"`
	VariationID         int64             `json:"variation_id"`
	Quantity            int               `json:"quantity"`
	VariationAttributes map[string]string `json:"variation_attributes,omitempty"`
	CartItemData        map[string]any    `json:"cart_item_data,omitempty"`
	Backordered         bool              `json:"backordered,omitempty"`
	// RemovedIndex remembers the line's position while it sits in the
	// removed-items buffer so restore can reinstate the order.
	RemovedIndex int `json:"removed_index,omitempty"`

	// Display snapshot taken at add time.
	Name           string `json:"name"`
	Slug           string `json:"slug,omitempty"`
	PriceCents     int64  `json:"price_cents"`
	MinPurchase    int    `json:"min_purchase,omitempty"`
	MaxPurchase    int    `json:"max_purchase,omitempty"`
	SoldIndividual bool   `json:"sold_individually,omitempty"`

	// Derived by the pricing engine.
	LineSubtotal    int64 `json:"line_subtotal"`
	LineSubtotalTax int64 `json:"line_subtotal_tax"`
	LineTotal       int64 `json:"line_total"`
	LineTotalTax    int64 `json:"line_total_tax"`
}

// Fee is an ad-hoc cart-level charge.
type Fee struct {
	Name        string `json:"name"`
	AmountCents int64  `json:"amount_cents"`
	Taxable     bool   `json:"taxable"`
}

// CartTotals is the cached output of a recalculation. It is never
// hand-written; every mutation recomputes it.
type CartTotals struct {
	Subtotal      int64 `json:"subtotal"`
	SubtotalTax   int64 `json:"subtotal_tax"`
	DiscountTotal int64 `json:"discount_total"`
	FeeTotal      int64 `json:"fee_total"`
	ShippingTotal int64 `json:"shipping_total"`
	TotalTax      int64 `json:"total_tax"`
	Total         int64 `json:"total"`
}

// Cart is the full cart state persisted as the session blob. Items and
// RemovedItems are slices so insertion order survives serialization.
type Cart struct {
	SchemaVersion  int            `json:"schema_version"`
	Key            string         `json:"cart_key"`
	Items          []CartItem     `json:"items"`
	RemovedItems   []CartItem     `json:"removed_items,omitempty"`
	AppliedCoupons []string       `json:"applied_coupons,omitempty"`
	ChosenShipping map[int]string `json:"chosen_shipping_methods,omitempty"`
	Fees           []Fee          `json:"fees,omitempty"`
	Totals         CartTotals     `json:"totals"`
	CreatedAt      int64          `json:"created_at"`
	ExpiresAt      int64          `json:"expires_at"`
	Source         string         `json:"source"`
	ContentHash    string         `json:"content_hash"`
	// LastRequestID makes mutations idempotent per client request id:
	// replaying the same id is a no-op returning current state.
	LastRequestID string `json:"last_request_id,omitempty"`
}

// Item returns the line with the given key, or nil.
func (c *Cart) Item(itemKey string) *CartItem {
	for i := range c.Items {
		if c.Items[i].ItemKey == itemKey {
			return &c.Items[i]
		}
	}
	return nil
}

// RemovedItem returns the soft-deleted line with the given key, or nil.
func (c *Cart) RemovedItem(itemKey string) *CartItem {
	for i := range c.RemovedItems {
		if c.RemovedItems[i].ItemKey == itemKey {
			return &c.RemovedItems[i]
		}
	}
	return nil
}

// IsEmpty reports whether the cart holds no active lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// ItemCount sums the quantities of all active lines.
func (c *Cart) ItemCount() int {
	n := 0
	for i := range c.Items {
		n += c.Items[i].Quantity
	}
	return n
}

// HasCoupon reports whether code is already applied.
func (c *Cart) HasCoupon(code string) bool {
	for _, applied := range c.AppliedCoupons {
		if applied == code {
			return true
		}
	}
	return false
}

// CartRecord is one row of the sessions or carts table.
type CartRecord struct {
	ID      int64  `json:"cart_id"`
	Key     string `json:"cart_key"`
	Value   []byte `json:"-"`
	Created int64  `json:"cart_created"`
	Expiry  int64  `json:"cart_expiry"`
	Source  string `json:"cart_source"`
	Hash    string `json:"cart_hash"`
}
