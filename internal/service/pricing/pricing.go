// Package pricing recomputes cart totals. Recalculate is deterministic
// over its inputs and keeps no state between calls.
package pricing

import (
	"cocart-replica/internal/config"
	"cocart-replica/internal/domain"
)

// TaxMode controls whether line prices are treated as tax-inclusive.
type TaxMode string

const (
	TaxInclusive TaxMode = "incl"
	TaxExclusive TaxMode = "excl"
)

// Engine holds the store-level pricing policy. All computation is in
// integer cents; taxes use a flat store rate in basis points.
type Engine struct {
	RateBasisPoints int
	RoundingMode    string
	ShippingRates   map[string]int64
}

// New builds an Engine from configuration. Shipping rates are the
// store's flat method costs.
func New(cfg config.Config) *Engine {
	return &Engine{
		RateBasisPoints: cfg.TaxRateBasisPoints,
		RoundingMode:    cfg.TaxRoundingMode,
		ShippingRates: map[string]int64{
			"flat_rate":     500,
			"free_shipping": 0,
			"local_pickup":  0,
		},
	}
}

// Recalculate derives per-line and cart-level totals. Coupons must be
// the cart's applied coupons in insertion order: fixed-amount discounts
// reduce the running subtotal before any later percentage coupon is
// computed on it.
func (e *Engine) Recalculate(cart *domain.Cart, coupons []domain.Coupon, mode TaxMode) domain.CartTotals {
	var totals domain.CartTotals

	for i := range cart.Items {
		item := &cart.Items[i]
		subtotal := item.PriceCents * int64(item.Quantity)
		var tax int64
		if e.RoundingMode == config.RoundPerLine {
			tax = e.taxOn(subtotal, mode)
		}
		item.LineSubtotal = subtotal
		item.LineSubtotalTax = tax
		item.LineTotal = subtotal
		item.LineTotalTax = tax
		totals.Subtotal += subtotal
	}
	if e.RoundingMode == config.RoundPerLine {
		for i := range cart.Items {
			totals.SubtotalTax += cart.Items[i].LineSubtotalTax
		}
	} else {
		totals.SubtotalTax = e.taxOn(totals.Subtotal, mode)
	}

	running := totals.Subtotal
	for _, c := range coupons {
		var discount int64
		switch c.DiscountType {
		case domain.DiscountPercent:
			discount = roundDiv(running*c.Amount, 100)
		default:
			discount = c.Amount
		}
		if discount > running {
			discount = running
		}
		totals.DiscountTotal += discount
		running -= discount
	}

	for _, fee := range cart.Fees {
		totals.FeeTotal += fee.AmountCents
		if fee.Taxable {
			totals.TotalTax += e.taxOn(fee.AmountCents, mode)
		}
	}

	for _, method := range cart.ChosenShipping {
		totals.ShippingTotal += e.ShippingRates[method]
	}

	// Tax on the discounted goods value, then fees' tax already added.
	totals.TotalTax += e.taxOnDiscounted(cart, running, mode)

	totals.Total = running + totals.FeeTotal + totals.ShippingTotal
	if mode == TaxExclusive {
		totals.Total += totals.TotalTax
	}
	return totals
}

// taxOnDiscounted prorates the subtotal tax by the discount so the
// same inputs always yield the same rounded result.
func (e *Engine) taxOnDiscounted(cart *domain.Cart, discounted int64, mode TaxMode) int64 {
	if discounted <= 0 {
		return 0
	}
	var base int64
	for i := range cart.Items {
		base += cart.Items[i].LineSubtotal
	}
	if base == 0 {
		return 0
	}
	full := e.taxOn(base, mode)
	if discounted == base {
		return full
	}
	return roundDiv(full*discounted, base)
}

// taxOn computes the tax portion of amount. In exclusive mode tax is
// added on top; in inclusive mode it is extracted from the amount.
func (e *Engine) taxOn(amount int64, mode TaxMode) int64 {
	rate := int64(e.RateBasisPoints)
	if rate == 0 || amount == 0 {
		return 0
	}
	if mode == TaxInclusive {
		return roundDiv(amount*rate, 10000+rate)
	}
	return roundDiv(amount*rate, 10000)
}

// roundDiv divides with half-up rounding.
func roundDiv(n, d int64) int64 {
	if d == 0 {
		return 0
	}
	return (n + d/2) / d
}
