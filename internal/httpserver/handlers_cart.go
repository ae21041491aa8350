package httpserver

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"cocart-replica/internal/config"
	"cocart-replica/internal/domain"
	cartsvc "cocart-replica/internal/service/cart"
	sessionsvc "cocart-replica/internal/service/session"
)

type handlers struct {
	deps   Deps
	cfg    config.Config
	logger *log.Logger
}

// resolveKey maps the request to a cart key. A valid bearer token wins
// and keys the cart by user id; otherwise the key is read from the
// cart_key query parameter, then the Cart-Key header.
func (h *handlers) resolveKey(c *gin.Context) (string, error) {
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		userID, err := h.deps.Identity.ResolveToken(strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			return "", err
		}
		return sessionsvc.UserKey(userID), nil
	}
	if key := c.Query("cart_key"); key != "" {
		return key, nil
	}
	return c.GetHeader("Cart-Key"), nil
}

func (h *handlers) requestID(c *gin.Context) string {
	return c.GetHeader("X-Request-ID")
}

func (h *handlers) getCart(c *gin.Context, shape responseShape) {
	key, err := h.resolveKey(c)
	if err != nil {
		writeError(c, err)
		return
	}
	cart, err := h.deps.Sessions.View(c.Request.Context(), key)
	if err != nil {
		writeError(c, err)
		return
	}
	writeCart(c, shape, cart, h.cfg.Currency)
}

func (h *handlers) addItem(c *gin.Context, shape responseShape) {
	key, err := h.resolveKey(c)
	if err != nil {
		writeError(c, err)
		return
	}
	p := newParams(c)
	in := cartsvc.AddItemInput{
		ProductID:    p.int64("id"),
		VariationID:  p.int64("variation_id"),
		Quantity:     p.intDefault("quantity", 1),
		Attributes:   p.strMap("variation"),
		CartItemData: p.anyMap("cart_item_data"),
	}
	if in.ProductID == 0 {
		writeError(c, &domain.Error{Code: "cocart_product_id_required", Message: "Product ID is required.", Status: 400})
		return
	}

	var added *domain.CartItem
	cart, replayed, err := h.deps.Sessions.MutateIdempotent(c.Request.Context(), key, h.requestID(c), func(cart *domain.Cart) error {
		var addErr error
		added, addErr = h.deps.Sessions.Engine().AddItem(c.Request.Context(), cart, in)
		return addErr
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if replayed || added == nil {
		writeCart(c, shape, cart, h.cfg.Currency)
		return
	}
	writeItem(c, shape, cart.Key, added)
}

func (h *handlers) addItems(c *gin.Context, shape responseShape) {
	key, err := h.resolveKey(c)
	if err != nil {
		writeError(c, err)
		return
	}
	p := newParams(c)
	entries := p.list("items")
	if len(entries) == 0 {
		writeError(c, &domain.Error{Code: "cocart_items_required", Message: "At least one item is required.", Status: 400})
		return
	}
	inputs := make([]cartsvc.AddItemInput, 0, len(entries))
	for _, entry := range entries {
		var in cartsvc.AddItemInput
		if err := decodeInto(entry, &in); err != nil {
			writeError(c, &domain.Error{Code: "cocart_invalid_item", Message: "Item entry could not be parsed.", Status: 400})
			return
		}
		inputs = append(inputs, in)
	}

	var results []cartsvc.BatchResult
	cart, replayed, err := h.deps.Sessions.MutateIdempotent(c.Request.Context(), key, h.requestID(c), func(cart *domain.Cart) error {
		var batchErr error
		results, batchErr = h.deps.Sessions.Engine().AddItems(c.Request.Context(), cart, inputs)
		return batchErr
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if replayed {
		writeCart(c, shape, cart, h.cfg.Currency)
		return
	}

	out := make([]gin.H, 0, len(results))
	for _, res := range results {
		entry := gin.H{}
		if res.Item != nil {
			if shape == shapeV1 {
				entry["item"] = toItemV1(*res.Item)
			} else {
				entry["item"] = toItemV2(*res.Item)
			}
		}
		if res.Warning != "" {
			entry["warning"] = res.Warning
		}
		out = append(out, entry)
	}
	cartHeaders(c, cart.Key)
	c.JSON(http.StatusOK, out)
}

func (h *handlers) listItems(c *gin.Context, shape responseShape) {
	key, err := h.resolveKey(c)
	if err != nil {
		writeError(c, err)
		return
	}
	cart, err := h.deps.Sessions.View(c.Request.Context(), key)
	if err != nil {
		writeError(c, err)
		return
	}
	cartHeaders(c, cart.Key)
	if shape == shapeV1 {
		c.JSON(http.StatusOK, toCartV1(cart))
		return
	}
	items := make([]itemResponseV2, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, toItemV2(item))
	}
	c.JSON(http.StatusOK, items)
}

func (h *handlers) countItems(c *gin.Context, _ responseShape) {
	key, err := h.resolveKey(c)
	if err != nil {
		writeError(c, err)
		return
	}
	cart, err := h.deps.Sessions.View(c.Request.Context(), key)
	if err != nil {
		writeError(c, err)
		return
	}
	cartHeaders(c, cart.Key)
	c.JSON(http.StatusOK, cart.ItemCount())
}

func (h *handlers) viewItem(c *gin.Context, shape responseShape) {
	key, err := h.resolveKey(c)
	if err != nil {
		writeError(c, err)
		return
	}
	itemKey := strings.TrimSpace(c.Param("item_key"))
	if itemKey == "" {
		writeError(c, domain.ErrMissingItemKey)
		return
	}
	cart, err := h.deps.Sessions.View(c.Request.Context(), key)
	if err != nil {
		writeError(c, err)
		return
	}
	item := cart.Item(itemKey)
	if item == nil {
		writeError(c, domain.ErrItemNotInCart)
		return
	}
	writeItem(c, shape, cart.Key, item)
}

func (h *handlers) updateItem(c *gin.Context, shape responseShape) {
	p := newParams(c)
	h.updateItemKeyed(c, shape, p, p.str("item_key"))
}

func (h *handlers) updateItemByPath(c *gin.Context, shape responseShape) {
	h.updateItemKeyed(c, shape, newParams(c), c.Param("item_key"))
}

func (h *handlers) updateItemKeyed(c *gin.Context, shape responseShape, p *params, itemKey string) {
	key, err := h.resolveKey(c)
	if err != nil {
		writeError(c, err)
		return
	}
	quantity := p.intDefault("quantity", -1)

	var verdict *cartsvc.UpdateVerdict
	cart, replayed, err := h.deps.Sessions.MutateIdempotent(c.Request.Context(), key, h.requestID(c), func(cart *domain.Cart) error {
		var updErr error
		verdict, updErr = h.deps.Sessions.Engine().UpdateItem(c.Request.Context(), cart, itemKey, quantity)
		return updErr
	})
	if err != nil {
		writeError(c, err)
		return
	}
	cartHeaders(c, cart.Key)
	if replayed || verdict == nil {
		writeCart(c, shape, cart, h.cfg.Currency)
		return
	}
	if shape == shapeV1 {
		c.JSON(http.StatusOK, gin.H{
			"status":       verdict.Status,
			"product_name": verdict.ProductName,
			"quantity":     verdict.Quantity,
			"cart":         toCartV1(cart),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       verdict.Status,
		"product_name": verdict.ProductName,
		"quantity":     verdict.Quantity,
		"cart":         toCartV2(cart, h.cfg.Currency),
	})
}

func (h *handlers) removeItem(c *gin.Context, shape responseShape) {
	p := newParams(c)
	h.removeItemKeyed(c, shape, p.str("item_key"))
}

func (h *handlers) removeItemByPath(c *gin.Context, shape responseShape) {
	h.removeItemKeyed(c, shape, c.Param("item_key"))
}

func (h *handlers) removeItemKeyed(c *gin.Context, shape responseShape, itemKey string) {
	key, err := h.resolveKey(c)
	if err != nil {
		writeError(c, err)
		return
	}
	cart, _, err := h.deps.Sessions.MutateIdempotent(c.Request.Context(), key, h.requestID(c), func(cart *domain.Cart) error {
		_, rmErr := h.deps.Sessions.Engine().RemoveItem(c.Request.Context(), cart, itemKey)
		return rmErr
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeCart(c, shape, cart, h.cfg.Currency)
}

func (h *handlers) restoreItem(c *gin.Context, shape responseShape) {
	key, err := h.resolveKey(c)
	if err != nil {
		writeError(c, err)
		return
	}
	p := newParams(c)
	itemKey := p.str("item_key")

	cart, _, err := h.deps.Sessions.MutateIdempotent(c.Request.Context(), key, h.requestID(c), func(cart *domain.Cart) error {
		_, restoreErr := h.deps.Sessions.Engine().RestoreItem(c.Request.Context(), cart, itemKey)
		return restoreErr
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeCart(c, shape, cart, h.cfg.Currency)
}

func (h *handlers) clearCart(c *gin.Context, shape responseShape) {
	key, err := h.resolveKey(c)
	if err != nil {
		writeError(c, err)
		return
	}
	cart, _, err := h.deps.Sessions.MutateIdempotent(c.Request.Context(), key, h.requestID(c), func(cart *domain.Cart) error {
		return h.deps.Sessions.Engine().Clear(c.Request.Context(), cart)
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeCart(c, shape, cart, h.cfg.Currency)
}

func (h *handlers) calculate(c *gin.Context, shape responseShape) {
	key, err := h.resolveKey(c)
	if err != nil {
		writeError(c, err)
		return
	}
	cart, err := h.deps.Sessions.Mutate(c.Request.Context(), key, func(cart *domain.Cart) error {
		return h.deps.Sessions.Engine().Recalculate(c.Request.Context(), cart)
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeCart(c, shape, cart, h.cfg.Currency)
}

func (h *handlers) getTotals(c *gin.Context, _ responseShape) {
	key, err := h.resolveKey(c)
	if err != nil {
		writeError(c, err)
		return
	}
	cart, err := h.deps.Sessions.View(c.Request.Context(), key)
	if err != nil {
		writeError(c, err)
		return
	}
	cartHeaders(c, cart.Key)
	c.JSON(http.StatusOK, cart.Totals)
}

// bulkUpdate patches several lines in one request.
func (h *handlers) bulkUpdate(c *gin.Context, shape responseShape) {
	key, err := h.resolveKey(c)
	if err != nil {
		writeError(c, err)
		return
	}
	p := newParams(c)
	entries := p.list("items")
	if len(entries) == 0 {
		writeError(c, &domain.Error{Code: "cocart_items_required", Message: "At least one item is required.", Status: 400})
		return
	}

	type patch struct {
		ItemKey  string `json:"item_key"`
		Quantity int    `json:"quantity"`
	}
	patches := make([]patch, 0, len(entries))
	for _, entry := range entries {
		var pt patch
		if err := decodeInto(entry, &pt); err != nil {
			writeError(c, &domain.Error{Code: "cocart_invalid_item", Message: "Item entry could not be parsed.", Status: 400})
			return
		}
		patches = append(patches, pt)
	}

	var warnings []string
	cart, _, err := h.deps.Sessions.MutateIdempotent(c.Request.Context(), key, h.requestID(c), func(cart *domain.Cart) error {
		for _, pt := range patches {
			if _, err := h.deps.Sessions.Engine().UpdateItem(c.Request.Context(), cart, pt.ItemKey, pt.Quantity); err != nil {
				apiErr := domain.AsAPIError(err)
				warnings = append(warnings, apiErr.Message)
			}
		}
		return nil
	})
	if err != nil {
		writeError(c, err)
		return
	}
	cartHeaders(c, cart.Key)
	if shape == shapeV1 {
		c.JSON(http.StatusOK, gin.H{"cart": toCartV1(cart), "warnings": warnings})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cart": toCartV2(cart, h.cfg.Currency), "warnings": warnings})
}

func (h *handlers) applyCoupon(c *gin.Context, shape responseShape) {
	key, err := h.resolveKey(c)
	if err != nil {
		writeError(c, err)
		return
	}
	p := newParams(c)
	code := p.str("coupon")
	if code == "" {
		writeError(c, &domain.Error{Code: "cocart_coupon_required", Message: "Coupon code is required.", Status: 400})
		return
	}
	cart, _, err := h.deps.Sessions.MutateIdempotent(c.Request.Context(), key, h.requestID(c), func(cart *domain.Cart) error {
		if cart.IsEmpty() {
			return domain.ErrEmptyCart
		}
		return h.deps.Sessions.Engine().ApplyCoupon(c.Request.Context(), cart, code)
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeCart(c, shape, cart, h.cfg.Currency)
}

func (h *handlers) removeCoupon(c *gin.Context, shape responseShape) {
	key, err := h.resolveKey(c)
	if err != nil {
		writeError(c, err)
		return
	}
	p := newParams(c)
	code := p.str("coupon")
	cart, _, err := h.deps.Sessions.MutateIdempotent(c.Request.Context(), key, h.requestID(c), func(cart *domain.Cart) error {
		return h.deps.Sessions.Engine().RemoveCoupon(c.Request.Context(), cart, code)
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeCart(c, shape, cart, h.cfg.Currency)
}

func (h *handlers) selectShipping(c *gin.Context, shape responseShape) {
	key, err := h.resolveKey(c)
	if err != nil {
		writeError(c, err)
		return
	}
	p := newParams(c)
	methodID := p.str("method")
	packageIndex := p.intDefault("package", 0)
	if methodID == "" {
		writeError(c, &domain.Error{Code: "cocart_shipping_method_required", Message: "Shipping method is required.", Status: 400})
		return
	}
	cart, _, err := h.deps.Sessions.MutateIdempotent(c.Request.Context(), key, h.requestID(c), func(cart *domain.Cart) error {
		if cart.IsEmpty() {
			return domain.ErrEmptyCart
		}
		return h.deps.Sessions.Engine().SelectShipping(c.Request.Context(), cart, packageIndex, methodID)
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeCart(c, shape, cart, h.cfg.Currency)
}
