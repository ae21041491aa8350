package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"cocart-replica/internal/config"
	"cocart-replica/internal/domain"
)

func testEngine(rounding string) *Engine {
	return &Engine{
		RateBasisPoints: 2000,
		RoundingMode:    rounding,
		ShippingRates:   map[string]int64{"flat_rate": 500, "free_shipping": 0},
	}
}

func cartWith(items ...domain.CartItem) *domain.Cart {
	return &domain.Cart{Items: items}
}

func TestRecalculateExclusiveTax(t *testing.T) {
	cart := cartWith(domain.CartItem{ItemKey: "a", PriceCents: 1000, Quantity: 2})
	totals := testEngine(config.RoundPerLine).Recalculate(cart, nil, TaxExclusive)

	assert.Equal(t, int64(2000), totals.Subtotal)
	assert.Equal(t, int64(400), totals.SubtotalTax)
	assert.Equal(t, int64(400), totals.TotalTax)
	assert.Equal(t, int64(2400), totals.Total)
	assert.Equal(t, int64(2000), cart.Items[0].LineSubtotal)
	assert.Equal(t, int64(400), cart.Items[0].LineSubtotalTax)
}

func TestRecalculateInclusiveTax(t *testing.T) {
	cart := cartWith(domain.CartItem{ItemKey: "a", PriceCents: 1200, Quantity: 1})
	totals := testEngine(config.RoundPerLine).Recalculate(cart, nil, TaxInclusive)

	// 1200 incl 20% -> 200 tax inside, total stays 1200.
	assert.Equal(t, int64(200), totals.TotalTax)
	assert.Equal(t, int64(1200), totals.Total)
}

func TestRecalculateDiscountOrder(t *testing.T) {
	cart := cartWith(domain.CartItem{ItemKey: "a", PriceCents: 10000, Quantity: 1})
	coupons := []domain.Coupon{
		{Code: "TENOFF", DiscountType: domain.DiscountFixedCart, Amount: 1000},
		{Code: "HALF", DiscountType: domain.DiscountPercent, Amount: 50},
	}
	totals := testEngine(config.RoundPerLine).Recalculate(cart, coupons, TaxExclusive)

	// Fixed 10.00 first, then 50% of the remaining 90.00.
	assert.Equal(t, int64(1000+4500), totals.DiscountTotal)
	assert.Equal(t, int64(4500+900), totals.Total)
}

func TestRecalculateDiscountCappedAtSubtotal(t *testing.T) {
	cart := cartWith(domain.CartItem{ItemKey: "a", PriceCents: 500, Quantity: 1})
	coupons := []domain.Coupon{{Code: "BIG", DiscountType: domain.DiscountFixedCart, Amount: 10000}}
	totals := testEngine(config.RoundPerLine).Recalculate(cart, coupons, TaxExclusive)

	assert.Equal(t, int64(500), totals.DiscountTotal)
	assert.Equal(t, int64(0), totals.Total)
}

func TestRecalculateFeesAndShipping(t *testing.T) {
	cart := cartWith(domain.CartItem{ItemKey: "a", PriceCents: 1000, Quantity: 1})
	cart.Fees = []domain.Fee{{Name: "gift wrap", AmountCents: 300, Taxable: true}}
	cart.ChosenShipping = map[int]string{0: "flat_rate"}
	totals := testEngine(config.RoundPerLine).Recalculate(cart, nil, TaxExclusive)

	assert.Equal(t, int64(300), totals.FeeTotal)
	assert.Equal(t, int64(500), totals.ShippingTotal)
	// 200 on goods + 60 on the taxable fee.
	assert.Equal(t, int64(260), totals.TotalTax)
	assert.Equal(t, int64(1000+300+500+260), totals.Total)
}

func TestRoundingModesDiverge(t *testing.T) {
	// Three lines of 3.33 at 20%: per-line rounds each 66.6 -> 67;
	// per-subtotal taxes 9.99 once -> 200.
	items := []domain.CartItem{
		{ItemKey: "a", PriceCents: 333, Quantity: 1},
		{ItemKey: "b", PriceCents: 333, Quantity: 1},
		{ItemKey: "c", PriceCents: 333, Quantity: 1},
	}

	perLine := testEngine(config.RoundPerLine).Recalculate(cartWith(items...), nil, TaxExclusive)
	perSub := testEngine(config.RoundPerSubtotal).Recalculate(cartWith(items...), nil, TaxExclusive)

	assert.Equal(t, int64(201), perLine.SubtotalTax)
	assert.Equal(t, int64(200), perSub.SubtotalTax)
}

func TestRecalculateDeterministic(t *testing.T) {
	engine := testEngine(config.RoundPerLine)
	cart := cartWith(domain.CartItem{ItemKey: "a", PriceCents: 777, Quantity: 3})
	coupons := []domain.Coupon{{Code: "P10", DiscountType: domain.DiscountPercent, Amount: 10}}

	first := engine.Recalculate(cart, coupons, TaxExclusive)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, engine.Recalculate(cart, coupons, TaxExclusive))
	}
}
