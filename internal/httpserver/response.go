package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cocart-replica/internal/domain"
)

// responseShape selects the API dialect: v2 is the canonical shape, v1
// the legacy flat one.
type responseShape int

const (
	shapeV2 responseShape = iota
	shapeV1
)

const cartCacheControl = "no-cache, must-revalidate, max-age=0, no-store"

// cartHeaders stamps the identity and freshness headers every cart
// response carries.
func cartHeaders(c *gin.Context, cartKey string) {
	c.Header("Cart-Key", cartKey)
	c.Header("CoCart-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))
	c.Header("Cache-Control", cartCacheControl)
}

func writeError(c *gin.Context, err error) {
	apiErr := domain.AsAPIError(err)
	data := map[string]any{"status": apiErr.Status}
	for k, v := range apiErr.Data {
		data[k] = v
	}
	c.AbortWithStatusJSON(apiErr.Status, gin.H{
		"code":    apiErr.Code,
		"message": apiErr.Message,
		"data":    data,
	})
}

// quantityEnvelope mirrors the v2 item schema: the quantity value plus
// the purchase bounds in force for the product.
type quantityEnvelope struct {
	Value       int `json:"value"`
	MinPurchase int `json:"min_purchase"`
	MaxPurchase int `json:"max_purchase"`
}

type itemTotals struct {
	Subtotal    int64 `json:"subtotal"`
	SubtotalTax int64 `json:"subtotal_tax"`
	Total       int64 `json:"total"`
	Tax         int64 `json:"tax"`
}

type itemResponseV2 struct {
	ItemKey      string            `json:"item_key"`
	ID           int64             `json:"id"`
	Name         string            `json:"name"`
	Slug         string            `json:"slug,omitempty"`
	Price        string            `json:"price"`
	Quantity     quantityEnvelope  `json:"quantity"`
	Totals       itemTotals        `json:"totals"`
	Variation    map[string]string `json:"variation,omitempty"`
	CartItemData map[string]any    `json:"cart_item_data,omitempty"`
	Backordered  bool              `json:"backorders,omitempty"`
}

type cartResponseV2 struct {
	CartKey        string           `json:"cart_key"`
	Currency       string           `json:"currency"`
	Items          []itemResponseV2 `json:"items"`
	ItemsCount     int              `json:"items_count"`
	RemovedItems   []itemResponseV2 `json:"removed_items"`
	Coupons        []string         `json:"coupons"`
	Fees           []domain.Fee     `json:"fees"`
	ChosenShipping map[int]string   `json:"chosen_shipping_methods,omitempty"`
	NeedsShipping  bool             `json:"needs_shipping"`
	Totals         domain.CartTotals `json:"totals"`
}

func toItemV2(item domain.CartItem) itemResponseV2 {
	id := item.ProductID
	if item.VariationID != 0 {
		id = item.VariationID
	}
	return itemResponseV2{
		ItemKey: item.ItemKey,
		ID:      id,
		Name:    item.Name,
		Slug:    item.Slug,
		Price:   centsToPrice(item.PriceCents),
		Quantity: quantityEnvelope{
			Value:       item.Quantity,
			MinPurchase: item.MinPurchase,
			MaxPurchase: item.MaxPurchase,
		},
		Totals: itemTotals{
			Subtotal:    item.LineSubtotal,
			SubtotalTax: item.LineSubtotalTax,
			Total:       item.LineTotal,
			Tax:         item.LineTotalTax,
		},
		Variation:    item.VariationAttributes,
		CartItemData: item.CartItemData,
		Backordered:  item.Backordered,
	}
}

func toCartV2(cart *domain.Cart, currency string) cartResponseV2 {
	items := make([]itemResponseV2, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, toItemV2(item))
	}
	removed := make([]itemResponseV2, 0, len(cart.RemovedItems))
	for _, item := range cart.RemovedItems {
		removed = append(removed, toItemV2(item))
	}
	coupons := cart.AppliedCoupons
	if coupons == nil {
		coupons = []string{}
	}
	fees := cart.Fees
	if fees == nil {
		fees = []domain.Fee{}
	}
	return cartResponseV2{
		CartKey:        cart.Key,
		Currency:       currency,
		Items:          items,
		ItemsCount:     cart.ItemCount(),
		RemovedItems:   removed,
		Coupons:        coupons,
		Fees:           fees,
		ChosenShipping: cart.ChosenShipping,
		NeedsShipping:  len(cart.ChosenShipping) > 0,
		Totals:         cart.Totals,
	}
}

// v1 returned the cart as a flat map of item key to item, quantities
// as bare integers.
type itemResponseV1 struct {
	ItemKey      string            `json:"key"`
	ProductID    int64             `json:"product_id"`
	VariationID  int64             `json:"variation_id"`
	ProductName  string            `json:"product_name"`
	Quantity     int               `json:"quantity"`
	LineSubtotal int64             `json:"line_subtotal"`
	LineTotal    int64             `json:"line_total"`
	Variation    map[string]string `json:"variation,omitempty"`
}

func toItemV1(item domain.CartItem) itemResponseV1 {
	return itemResponseV1{
		ItemKey:      item.ItemKey,
		ProductID:    item.ProductID,
		VariationID:  item.VariationID,
		ProductName:  item.Name,
		Quantity:     item.Quantity,
		LineSubtotal: item.LineSubtotal,
		LineTotal:    item.LineTotal,
		Variation:    item.VariationAttributes,
	}
}

func toCartV1(cart *domain.Cart) map[string]itemResponseV1 {
	out := make(map[string]itemResponseV1, len(cart.Items))
	for _, item := range cart.Items {
		out[item.ItemKey] = toItemV1(item)
	}
	return out
}

// writeCart renders a cart in the requested dialect with cart headers.
func writeCart(c *gin.Context, shape responseShape, cart *domain.Cart, currency string) {
	cartHeaders(c, cart.Key)
	switch shape {
	case shapeV1:
		c.JSON(http.StatusOK, toCartV1(cart))
	default:
		c.JSON(http.StatusOK, toCartV2(cart, currency))
	}
}

func writeItem(c *gin.Context, shape responseShape, cartKey string, item *domain.CartItem) {
	cartHeaders(c, cartKey)
	switch shape {
	case shapeV1:
		c.JSON(http.StatusOK, toItemV1(*item))
	default:
		c.JSON(http.StatusOK, toItemV2(*item))
	}
}

func centsToPrice(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
