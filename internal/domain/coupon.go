package domain

import "time"

// Discount types.
const (
	DiscountPercent   = "percent"
	DiscountFixedCart = "fixed_cart"
)

// Coupon is a discount code with its eligibility constraints. Amount is
// a percentage (0-100) for percent coupons and cents for fixed ones.
type Coupon struct {
	ID                int64      `json:"id"`
	Code              string     `json:"code"`
	DiscountType      string     `json:"discount_type"`
	Amount            int64      `json:"amount"`
	MinimumSpendCents int64      `json:"minimum_spend_cents"`
	UsageLimit        int        `json:"usage_limit"`
	UsageCount        int        `json:"usage_count"`
	IndividualUse     bool       `json:"individual_use"`
	ProductIDs        []int64    `json:"product_ids,omitempty"`
	Categories        []string   `json:"categories,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the coupon is past its expiry at now.
func (c *Coupon) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// UsageExhausted reports whether the usage limit has been reached.
func (c *Coupon) UsageExhausted() bool {
	return c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit
}
