package cart

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"time"

	"cocart-replica/internal/cartkey"
	"cocart-replica/internal/domain"
	"cocart-replica/internal/events"
	"cocart-replica/internal/service/pricing"
)

// Service is the cart state machine. It mutates carts in memory; the
// session layer owns loading, locking and persistence.
type Service struct {
	products     productRepo
	coupons      couponRepo
	reservations reservationRepo
	pricing      *pricing.Engine
	sink         events.Sink
	logger       *log.Logger

	maxLineItems int
	taxMode      pricing.TaxMode
}

type productRepo interface {
	Get(ctx context.Context, id int64) (*domain.Product, error)
	GetVariation(ctx context.Context, variationID int64) (*domain.Product, error)
	ResolveVariation(ctx context.Context, productID int64, attrs map[string]string) (int64, error)
}

type couponRepo interface {
	GetByCode(ctx context.Context, code string) (*domain.Coupon, error)
}

type reservationRepo interface {
	ReservedQty(ctx context.Context, productID int64, excludeCartKey string) (int, error)
}

func New(products productRepo, coupons couponRepo, reservations reservationRepo, engine *pricing.Engine, sink events.Sink, logger *log.Logger, maxLineItems int, taxMode pricing.TaxMode) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if sink == nil {
		sink = events.NopSink{}
	}
	if maxLineItems <= 0 {
		maxLineItems = 100
	}
	return &Service{
		products:     products,
		coupons:      coupons,
		reservations: reservations,
		pricing:      engine,
		sink:         sink,
		logger:       logger,
		maxLineItems: maxLineItems,
		taxMode:      taxMode,
	}
}

// AddItemInput identifies what to add. VariationID may be zero for a
// variable product when Attributes select the variation instead.
type AddItemInput struct {
	ProductID    int64             `json:"id"`
	VariationID  int64             `json:"variation_id"`
	Quantity     int               `json:"quantity"`
	Attributes   map[string]string `json:"variation,omitempty"`
	CartItemData map[string]any    `json:"cart_item_data,omitempty"`
}

// AddItem admits and upserts a line, merging with an existing line when
// the identity tuple matches. The returned item is the resulting line.
func (s *Service) AddItem(ctx context.Context, cart *domain.Cart, in AddItemInput) (*domain.CartItem, error) {
	if in.Quantity <= 0 {
		in.Quantity = 1
	}

	product, err := s.resolveProduct(ctx, in)
	if err != nil {
		return nil, err
	}
	if !product.Purchasable {
		return nil, domain.ErrNotPurchasable
	}

	// Canonicalize on the variation's own attributes so a by-id add and
	// an attribute-addressed add of the same variation share a line.
	if product.variation && len(in.Attributes) == 0 {
		in.Attributes = product.VariationAttrs
	}

	productID := product.CanonicalProductID()
	itemKey := cartkey.ItemKey(productID, product.VariationID(), in.Attributes, in.CartItemData)

	newQty := in.Quantity
	existing := cart.Item(itemKey)
	if existing != nil {
		newQty += existing.Quantity
	} else if len(cart.Items) >= s.maxLineItems {
		return nil, domain.ErrCartFull
	}

	backordered, err := s.admit(ctx, &product.Product, newQty, cart.Key)
	if err != nil {
		return nil, err
	}
	if product.SoldIndividually && newQty > 1 {
		return nil, domain.ErrSoldIndividually
	}

	if existing != nil {
		existing.Quantity = newQty
		existing.Backordered = backordered
	} else {
		cart.Items = append(cart.Items, domain.CartItem{
			ItemKey:             itemKey,
			ProductID:           productID,
			VariationID:         product.VariationID(),
			Quantity:            newQty,
			VariationAttributes: in.Attributes,
			CartItemData:        in.CartItemData,
			Backordered:         backordered,
			Name:                product.Name,
			Slug:                product.Slug,
			PriceCents:          product.PriceCents,
			MinPurchase:         product.MinPurchase,
			MaxPurchase:         product.MaxPurchase,
			SoldIndividual:      product.SoldIndividually,
		})
	}

	s.publish(ctx, events.Event{
		Type:      events.ItemAdded,
		CartKey:   cart.Key,
		ItemKey:   itemKey,
		ProductID: productID,
		Quantity:  newQty,
	})
	if err := s.Recalculate(ctx, cart); err != nil {
		return nil, err
	}
	return cart.Item(itemKey), nil
}

// BatchResult reports the outcome of one entry in a batched add.
type BatchResult struct {
	Item    *domain.CartItem `json:"item,omitempty"`
	Warning string           `json:"warning,omitempty"`
}

// AddItems applies a batch of adds. Failed entries become warnings
// instead of aborting the batch.
func (s *Service) AddItems(ctx context.Context, cart *domain.Cart, inputs []AddItemInput) ([]BatchResult, error) {
	results := make([]BatchResult, 0, len(inputs))
	for _, in := range inputs {
		item, err := s.AddItem(ctx, cart, in)
		if err != nil {
			var apiErr *domain.Error
			if !errors.As(err, &apiErr) {
				return nil, err
			}
			results = append(results, BatchResult{Warning: apiErr.Message})
			continue
		}
		results = append(results, BatchResult{Item: item})
	}
	return results, nil
}

// UpdateVerdict is the diff outcome of an update.
type UpdateVerdict struct {
	Status      string `json:"status"` // increased | decreased | unchanged | removed
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
}

// UpdateItem sets an absolute quantity. Zero delegates to RemoveItem.
func (s *Service) UpdateItem(ctx context.Context, cart *domain.Cart, itemKey string, quantity int) (*UpdateVerdict, error) {
	if strings.TrimSpace(itemKey) == "" {
		return nil, domain.ErrMissingItemKey
	}
	item := cart.Item(itemKey)
	if item == nil {
		return nil, domain.ErrItemNotInCart
	}

	if quantity == 0 {
		removed, err := s.RemoveItem(ctx, cart, itemKey)
		if err != nil {
			return nil, err
		}
		return &UpdateVerdict{Status: "removed", ProductName: removed.Name}, nil
	}
	if quantity < 0 {
		return nil, &domain.Error{Code: "cocart_invalid_quantity", Message: "Quantity must not be negative.", Status: 400}
	}

	product, err := s.productForItem(ctx, item)
	if err != nil {
		return nil, err
	}
	backordered, err := s.admit(ctx, product, quantity, cart.Key)
	if err != nil {
		return nil, err
	}
	if product.SoldIndividually && quantity > 1 {
		return nil, domain.ErrSoldIndividually
	}

	verdict := &UpdateVerdict{ProductName: item.Name, Quantity: quantity}
	switch {
	case quantity > item.Quantity:
		verdict.Status = "increased"
	case quantity < item.Quantity:
		verdict.Status = "decreased"
	default:
		verdict.Status = "unchanged"
	}

	if verdict.Status != "unchanged" {
		item.Quantity = quantity
		item.Backordered = backordered
		s.publish(ctx, events.Event{
			Type:      events.ItemQuantityChanged,
			CartKey:   cart.Key,
			ItemKey:   itemKey,
			ProductID: item.ProductID,
			Quantity:  quantity,
		})
		if err := s.Recalculate(ctx, cart); err != nil {
			return nil, err
		}
	}
	return verdict, nil
}

// RemoveItem moves a line into the removed-items buffer.
func (s *Service) RemoveItem(ctx context.Context, cart *domain.Cart, itemKey string) (*domain.CartItem, error) {
	if strings.TrimSpace(itemKey) == "" {
		return nil, domain.ErrMissingItemKey
	}
	idx := -1
	for i := range cart.Items {
		if cart.Items[i].ItemKey == itemKey {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, domain.ErrItemNotInCart
	}

	item := cart.Items[idx]
	item.RemovedIndex = idx
	cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)

	// A second remove of the same key replaces the buffered copy.
	for i := range cart.RemovedItems {
		if cart.RemovedItems[i].ItemKey == itemKey {
			cart.RemovedItems = append(cart.RemovedItems[:i], cart.RemovedItems[i+1:]...)
			break
		}
	}
	cart.RemovedItems = append(cart.RemovedItems, item)

	s.publish(ctx, events.Event{
		Type:      events.ItemRemoved,
		CartKey:   cart.Key,
		ItemKey:   itemKey,
		ProductID: item.ProductID,
	})
	if err := s.Recalculate(ctx, cart); err != nil {
		return nil, err
	}
	out := item
	return &out, nil
}

// RestoreItem moves a buffered line back into the cart at its original
// position, provided stock still admits it.
func (s *Service) RestoreItem(ctx context.Context, cart *domain.Cart, itemKey string) (*domain.CartItem, error) {
	if strings.TrimSpace(itemKey) == "" {
		return nil, domain.ErrMissingItemKey
	}
	idx := -1
	for i := range cart.RemovedItems {
		if cart.RemovedItems[i].ItemKey == itemKey {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, domain.ErrItemNotRemoved
	}
	item := cart.RemovedItems[idx]

	product, err := s.productForItem(ctx, &item)
	if err != nil {
		return nil, err
	}
	backordered, err := s.admit(ctx, product, item.Quantity, cart.Key)
	if err != nil {
		return nil, err
	}
	if product.SoldIndividually && item.Quantity > 1 {
		return nil, domain.ErrSoldIndividually
	}
	if len(cart.Items) >= s.maxLineItems {
		return nil, domain.ErrCartFull
	}

	cart.RemovedItems = append(cart.RemovedItems[:idx], cart.RemovedItems[idx+1:]...)

	item.Backordered = backordered
	at := item.RemovedIndex
	item.RemovedIndex = 0
	if at < 0 || at > len(cart.Items) {
		at = len(cart.Items)
	}
	cart.Items = append(cart.Items, domain.CartItem{})
	copy(cart.Items[at+1:], cart.Items[at:])
	cart.Items[at] = item

	s.publish(ctx, events.Event{
		Type:      events.ItemAdded,
		CartKey:   cart.Key,
		ItemKey:   itemKey,
		ProductID: item.ProductID,
		Quantity:  item.Quantity,
		Extra:     map[string]any{"restored": true},
	})
	if err := s.Recalculate(ctx, cart); err != nil {
		return nil, err
	}
	return cart.Item(itemKey), nil
}

// Clear empties the cart but preserves its key and lifetime.
func (s *Service) Clear(ctx context.Context, cart *domain.Cart) error {
	cart.Items = nil
	cart.RemovedItems = nil
	cart.AppliedCoupons = nil
	cart.Fees = nil
	cart.ChosenShipping = nil
	return s.Recalculate(ctx, cart)
}

// ApplyCoupon validates eligibility and appends the code. Applying an
// already-applied code is a no-op.
func (s *Service) ApplyCoupon(ctx context.Context, cart *domain.Cart, code string) error {
	code = strings.TrimSpace(code)
	coupon, err := s.coupons.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrCouponNotFound
		}
		return s.mapUpstream(err)
	}
	if cart.HasCoupon(coupon.Code) {
		return nil
	}
	if reason := s.couponIneligible(ctx, cart, coupon); reason != "" {
		return domain.NewCouponIneligible(coupon.Code, reason)
	}

	if coupon.IndividualUse {
		cart.AppliedCoupons = nil
	}
	cart.AppliedCoupons = append(cart.AppliedCoupons, coupon.Code)

	s.publish(ctx, events.Event{
		Type:       events.CouponApplied,
		CartKey:    cart.Key,
		CouponCode: coupon.Code,
	})
	return s.Recalculate(ctx, cart)
}

// RemoveCoupon deletes a code from the cart.
func (s *Service) RemoveCoupon(ctx context.Context, cart *domain.Cart, code string) error {
	code = strings.TrimSpace(code)
	for i, applied := range cart.AppliedCoupons {
		if strings.EqualFold(applied, code) {
			cart.AppliedCoupons = append(cart.AppliedCoupons[:i], cart.AppliedCoupons[i+1:]...)
			return s.Recalculate(ctx, cart)
		}
	}
	return domain.ErrCouponNotFound
}

// SelectShipping records the chosen method for a shipping package.
func (s *Service) SelectShipping(ctx context.Context, cart *domain.Cart, packageIndex int, methodID string) error {
	if _, ok := s.pricing.ShippingRates[methodID]; !ok {
		return &domain.Error{Code: "cocart_invalid_shipping_method", Message: "Shipping method is not available.", Status: 400}
	}
	if cart.ChosenShipping == nil {
		cart.ChosenShipping = make(map[int]string)
	}
	cart.ChosenShipping[packageIndex] = methodID
	return s.Recalculate(ctx, cart)
}

// Recalculate rebuilds totals and the content hash. Every mutation ends
// here; totals are never served from a stale snapshot.
func (s *Service) Recalculate(ctx context.Context, cart *domain.Cart) error {
	coupons := make([]domain.Coupon, 0, len(cart.AppliedCoupons))
	for _, code := range cart.AppliedCoupons {
		coupon, err := s.coupons.GetByCode(ctx, code)
		if err != nil {
			// A coupon deleted after application contributes nothing.
			s.logger.Printf("cart engine: coupon %q no longer resolvable: %v", code, err)
			continue
		}
		coupons = append(coupons, *coupon)
	}

	cart.Totals = s.pricing.Recalculate(cart, coupons, s.taxMode)
	cart.ContentHash = cartkey.ContentHash(cart.Items, cart.AppliedCoupons, cart.Fees)

	s.publish(ctx, events.Event{
		Type:    events.TotalsRecalculated,
		CartKey: cart.Key,
		Extra:   map[string]any{"total": cart.Totals.Total},
	})
	return nil
}

// admit runs stock admission for requested units of product in the
// cart identified by cartKey. The boolean result flags a backorder.
func (s *Service) admit(ctx context.Context, product *domain.Product, requested int, cartKey string) (bool, error) {
	backordered := false
	if product.ManageStock {
		reserved := 0
		if s.reservations != nil {
			var err error
			reserved, err = s.reservations.ReservedQty(ctx, product.ID, cartKey)
			if err != nil {
				return false, s.mapUpstream(err)
			}
		}
		available := product.StockQty - reserved
		if requested > available {
			if !product.BackordersAllowed {
				if available < 0 {
					available = 0
				}
				return false, domain.NewInsufficientStock(available, requested)
			}
			backordered = true
		}
	} else if !product.InStock {
		return false, domain.NewInsufficientStock(0, requested)
	}

	if product.MinPurchase > 0 && requested < product.MinPurchase {
		return false, domain.NewBelowMinPurchase(product.MinPurchase)
	}
	if product.MaxPurchase > 0 && requested > product.MaxPurchase {
		return false, domain.NewAboveMaxPurchase(product.MaxPurchase)
	}
	return backordered, nil
}

// resolveProduct dispatches on the product type tag: simple products
// admit directly, variable products need a variation, variations must
// match their claimed parent, grouped products cannot be added.
func (s *Service) resolveProduct(ctx context.Context, in AddItemInput) (*resolvedProduct, error) {
	product, err := s.products.Get(ctx, in.ProductID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrProductNotFound
		}
		return nil, s.mapUpstream(err)
	}

	switch product.Type {
	case domain.ProductSimple:
		if in.VariationID != 0 || len(in.Attributes) > 0 {
			return nil, domain.ErrInvalidVariation
		}
		return &resolvedProduct{Product: *product}, nil

	case domain.ProductGrouped:
		return nil, domain.ErrNotPurchasable

	case domain.ProductVariation:
		// Clients may address the variation id directly.
		if len(in.Attributes) > 0 && !attributesComplete(product.VariationAttrs, in.Attributes) {
			return nil, domain.ErrInvalidVariation
		}
		return &resolvedProduct{Product: *product, variation: true}, nil

	case domain.ProductVariable:
		variationID := in.VariationID
		if variationID == 0 {
			variationID, err = s.products.ResolveVariation(ctx, in.ProductID, in.Attributes)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrAmbiguousVariation) {
					return nil, domain.ErrInvalidVariation
				}
				return nil, s.mapUpstream(err)
			}
		}
		variation, err := s.products.GetVariation(ctx, variationID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, domain.ErrInvalidVariation
			}
			return nil, s.mapUpstream(err)
		}
		if variation.ParentID != in.ProductID {
			return nil, domain.ErrInvalidVariation
		}
		if len(in.Attributes) > 0 && !attributesComplete(variation.VariationAttrs, in.Attributes) {
			return nil, domain.ErrInvalidVariation
		}
		merged := *variation
		if !merged.SoldIndividually {
			merged.SoldIndividually = product.SoldIndividually
		}
		return &resolvedProduct{Product: merged, variation: true}, nil

	default:
		return nil, domain.ErrNotPurchasable
	}
}

// productForItem re-resolves the catalog entry backing an existing line.
func (s *Service) productForItem(ctx context.Context, item *domain.CartItem) (*domain.Product, error) {
	var (
		product *domain.Product
		err     error
	)
	if item.VariationID != 0 {
		product, err = s.products.GetVariation(ctx, item.VariationID)
	} else {
		product, err = s.products.Get(ctx, item.ProductID)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrProductNotFound
		}
		return nil, s.mapUpstream(err)
	}
	return product, nil
}

// couponIneligible returns the failing predicate's name, or "".
func (s *Service) couponIneligible(ctx context.Context, cart *domain.Cart, coupon *domain.Coupon) string {
	if coupon.Expired(time.Now()) {
		return "expired"
	}
	if coupon.UsageExhausted() {
		return "usage limit reached"
	}
	for _, applied := range cart.AppliedCoupons {
		existing, err := s.coupons.GetByCode(ctx, applied)
		if err == nil && existing.IndividualUse {
			return "an individual-use coupon is already applied"
		}
	}
	if coupon.MinimumSpendCents > 0 {
		var subtotal int64
		for i := range cart.Items {
			subtotal += cart.Items[i].PriceCents * int64(cart.Items[i].Quantity)
		}
		if subtotal < coupon.MinimumSpendCents {
			return "minimum spend not met"
		}
	}
	if len(coupon.ProductIDs) > 0 && !cartContainsProduct(cart, coupon.ProductIDs) {
		return "no eligible products in cart"
	}
	if len(coupon.Categories) > 0 && !s.cartContainsCategory(ctx, cart, coupon.Categories) {
		return "no eligible product categories in cart"
	}
	return ""
}

func (s *Service) cartContainsCategory(ctx context.Context, cart *domain.Cart, categories []string) bool {
	want := make(map[string]bool, len(categories))
	for _, c := range categories {
		want[strings.ToLower(c)] = true
	}
	for i := range cart.Items {
		product, err := s.products.Get(ctx, cart.Items[i].ProductID)
		if err != nil {
			continue
		}
		for _, c := range product.Categories {
			if want[strings.ToLower(c)] {
				return true
			}
		}
	}
	return false
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	event.OccurredAt = time.Now().UTC()
	if err := s.sink.Publish(ctx, event); err != nil {
		s.logger.Printf("cart engine: publish %s for %s: %v", event.Type, event.CartKey, err)
	}
}

func (s *Service) mapUpstream(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrUpstream
	}
	return err
}

// resolvedProduct is the catalog view an add resolved to; for variable
// products it is the variation itself.
type resolvedProduct struct {
	domain.Product
	variation bool
}

// VariationID returns the id of the resolved variation, or zero.
func (p *resolvedProduct) VariationID() int64 {
	if p.variation {
		return p.ID
	}
	return 0
}

// CanonicalProductID is the parent product for variations, the product
// itself otherwise.
func (p *resolvedProduct) CanonicalProductID() int64 {
	if p.variation && p.ParentID != 0 {
		return p.ParentID
	}
	return p.ID
}

func cartContainsProduct(cart *domain.Cart, ids []int64) bool {
	for i := range cart.Items {
		for _, id := range ids {
			if cart.Items[i].ProductID == id || cart.Items[i].VariationID == id {
				return true
			}
		}
	}
	return false
}

// attributesComplete checks the request supplies every attribute the
// variation defines, with matching values.
func attributesComplete(varAttrs, requested map[string]string) bool {
	req := make(map[string]string, len(requested))
	for name, value := range requested {
		req[strings.ToLower(name)] = value
	}
	for name, want := range varAttrs {
		got, ok := req[strings.ToLower(name)]
		if !ok || !strings.EqualFold(got, want) {
			return false
		}
	}
	return true
}
