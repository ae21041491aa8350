package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cocart-replica/internal/config"
	"cocart-replica/internal/domain"
	couponrepo "cocart-replica/internal/repository/coupon"
	productrepo "cocart-replica/internal/repository/product"
	sessionrepo "cocart-replica/internal/repository/session"
	cartsvc "cocart-replica/internal/service/cart"
	identitysvc "cocart-replica/internal/service/identity"
	"cocart-replica/internal/service/pricing"
	sessionsvc "cocart-replica/internal/service/session"
)

type stubUsers struct {
	user domain.User
}

func (s *stubUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	if email != s.user.Email {
		return nil, domain.ErrNotFound
	}
	out := s.user
	return &out, nil
}

func (s *stubUsers) GetByID(_ context.Context, id int64) (*domain.User, error) {
	if id != s.user.ID {
		return nil, domain.ErrNotFound
	}
	out := s.user
	return &out, nil
}

func testConfig() config.Config {
	return config.Config{
		HTTPAddr:           ":0",
		SessionTTL:         48 * time.Hour,
		CartTTL:            720 * time.Hour,
		MaxLineItems:       100,
		TaxRoundingMode:    config.RoundPerLine,
		TaxRateBasisPoints: 2000,
		JWTSecret:          "test-secret",
		TokenTTL:           time.Hour,
		AdminToken:         "admin-token",
		StoreName:          "Test Store",
		Currency:           "USD",
		AllowOrigins:       []string{"*"},
	}
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	cfg := testConfig()

	catalog := productrepo.NewMemory(
		domain.Product{ID: 1, Type: domain.ProductSimple, Name: "Hoodie", Slug: "hoodie",
			PriceCents: 4500, Purchasable: true, InStock: true, UpdatedAt: time.Now()},
		domain.Product{ID: 2, Type: domain.ProductSimple, Name: "Stickers", Slug: "stickers",
			PriceCents: 500, Purchasable: true, InStock: true, UpdatedAt: time.Now()},
		domain.Product{ID: 3, Type: domain.ProductVariable, Name: "Tee", Slug: "tee",
			PriceCents: 1999, Purchasable: true, InStock: true, UpdatedAt: time.Now()},
		domain.Product{ID: 4, Type: domain.ProductVariation, ParentID: 3, Name: "Tee - Small", Slug: "tee-small",
			PriceCents: 1999, Purchasable: true, InStock: true,
			VariationAttrs: map[string]string{"size": "small"}, UpdatedAt: time.Now()},
	)
	coupons := couponrepo.NewMemory(
		domain.Coupon{Code: "welcome10", DiscountType: domain.DiscountPercent, Amount: 10},
	)

	logger := log.New(io.Discard, "", 0)
	engine := cartsvc.New(catalog, coupons, nil, pricing.New(cfg), nil, logger, cfg.MaxLineItems, pricing.TaxExclusive)
	sessions := sessionsvc.New(sessionrepo.NewMemory(), engine, nil, logger, sessionsvc.Options{
		SessionTTL:       cfg.SessionTTL,
		CartTTL:          cfg.CartTTL,
		PreserveOnLogout: true,
	})

	hash, err := identitysvc.HashPassword("demo-password")
	require.NoError(t, err)
	identity := identitysvc.New(&stubUsers{user: domain.User{
		ID: 7, Email: "demo@example.com", PasswordHash: hash, DisplayName: "Demo",
	}}, cfg.JWTSecret, cfg.TokenTTL)

	router, err := buildRouter(cfg, logger, nil, Deps{
		Sessions: sessions,
		Identity: identity,
		Products: catalog,
	})
	require.NoError(t, err)
	return router
}

func doJSON(router *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

func addToCart(t *testing.T, router *gin.Engine, cartKey string, body map[string]any) (string, map[string]any) {
	t.Helper()
	path := "/cocart/v2/cart/add-item"
	if cartKey != "" {
		path += "?cart_key=" + cartKey
	}
	rec := doJSON(router, http.MethodPost, path, body, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var item map[string]any
	decodeBody(t, rec, &item)
	key := rec.Header().Get("Cart-Key")
	require.NotEmpty(t, key)
	return key, item
}

func TestHealthEndpoints(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(router, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// No database configured in tests.
	rec = doJSON(router, http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAddItemIssuesCartKey(t *testing.T) {
	router := newTestRouter(t)

	key, item := addToCart(t, router, "", map[string]any{"id": 1, "quantity": 2})
	assert.Len(t, key, sessionsvc.CartKeyLength)
	assert.NotEmpty(t, item["item_key"])

	quantity, ok := item["quantity"].(map[string]any)
	require.True(t, ok, "quantity should be an envelope")
	assert.EqualValues(t, 2, quantity["value"])
}

func TestGetCartRoundTrip(t *testing.T) {
	router := newTestRouter(t)
	key, _ := addToCart(t, router, "", map[string]any{"id": 1, "quantity": 2})

	rec := doJSON(router, http.MethodGet, "/cocart/v2/cart?cart_key="+key, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, key, rec.Header().Get("Cart-Key"))
	assert.NotEmpty(t, rec.Header().Get("CoCart-Timestamp"))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")

	var cart cartResponseV2
	decodeBody(t, rec, &cart)
	assert.Equal(t, key, cart.CartKey)
	assert.Equal(t, 2, cart.ItemsCount)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "45.00", cart.Items[0].Price)
}

func TestCartKeyHeaderFallback(t *testing.T) {
	router := newTestRouter(t)
	key, _ := addToCart(t, router, "", map[string]any{"id": 1})

	rec := doJSON(router, http.MethodGet, "/cocart/v2/cart", nil, map[string]string{"Cart-Key": key})
	require.Equal(t, http.StatusOK, rec.Code)

	var cart cartResponseV2
	decodeBody(t, rec, &cart)
	assert.Equal(t, 1, cart.ItemsCount)
}

func TestAddItemFormEncoded(t *testing.T) {
	router := newTestRouter(t)

	form := url.Values{"id": {"1"}, "quantity": {"3"}}
	req := httptest.NewRequest(http.MethodPost, "/cocart/v2/cart/add-item", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var item map[string]any
	decodeBody(t, rec, &item)
	quantity := item["quantity"].(map[string]any)
	assert.EqualValues(t, 3, quantity["value"])
}

func TestAddItemVariationAttributeNameCase(t *testing.T) {
	router := newTestRouter(t)

	_, item := addToCart(t, router, "", map[string]any{
		"id": 3, "variation": map[string]any{"Size": "small"},
	})
	assert.EqualValues(t, 4, item["id"])
}

func TestErrorEnvelope(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(router, http.MethodPost, "/cocart/v2/cart/add-item", map[string]any{"id": 999}, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Data    map[string]any `json:"data"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, "cocart_product_does_not_exist", body.Code)
	assert.NotEmpty(t, body.Message)
	assert.EqualValues(t, http.StatusNotFound, body.Data["status"])
}

func TestItemsCountIsBareNumber(t *testing.T) {
	router := newTestRouter(t)
	key, _ := addToCart(t, router, "", map[string]any{"id": 1, "quantity": 2})

	rec := doJSON(router, http.MethodGet, "/cocart/v2/cart/items/count?cart_key="+key, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", strings.TrimSpace(rec.Body.String()))
}

func TestVariationAddByAttributes(t *testing.T) {
	router := newTestRouter(t)

	_, item := addToCart(t, router, "", map[string]any{
		"id": 3, "quantity": 1, "variation": map[string]string{"size": "small"},
	})
	assert.EqualValues(t, 4, item["id"])
	variation := item["variation"].(map[string]any)
	assert.Equal(t, "small", variation["size"])
}

func TestUpdateItemVerdict(t *testing.T) {
	router := newTestRouter(t)
	key, item := addToCart(t, router, "", map[string]any{"id": 1, "quantity": 2})

	rec := doJSON(router, http.MethodPost, "/cocart/v2/cart/update-item?cart_key="+key,
		map[string]any{"item_key": item["item_key"], "quantity": 5}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status   string         `json:"status"`
		Quantity int            `json:"quantity"`
		Cart     cartResponseV2 `json:"cart"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, "increased", body.Status)
	assert.Equal(t, 5, body.Quantity)
	assert.Equal(t, 5, body.Cart.ItemsCount)
}

func TestRemoveThenRestoreItem(t *testing.T) {
	router := newTestRouter(t)
	key, item := addToCart(t, router, "", map[string]any{"id": 1, "quantity": 2})
	itemKey := item["item_key"].(string)

	rec := doJSON(router, http.MethodDelete, "/cocart/v2/cart/item/"+itemKey+"?cart_key="+key, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cart cartResponseV2
	decodeBody(t, rec, &cart)
	assert.Empty(t, cart.Items)
	require.Len(t, cart.RemovedItems, 1)

	rec = doJSON(router, http.MethodPost, "/cocart/v2/cart/restore-item?cart_key="+key,
		map[string]any{"item_key": itemKey}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &cart)
	require.Len(t, cart.Items, 1)
	assert.Empty(t, cart.RemovedItems)
	assert.Equal(t, 2, cart.ItemsCount)
}

func TestApplyCouponOnEmptyCart(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(router, http.MethodPost, "/cocart/v2/cart/apply-coupon",
		map[string]any{"coupon": "welcome10"}, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body struct {
		Code string `json:"code"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, "cocart_cart_empty", body.Code)
}

func TestApplyCouponAndTotals(t *testing.T) {
	router := newTestRouter(t)
	key, _ := addToCart(t, router, "", map[string]any{"id": 1, "quantity": 2})

	rec := doJSON(router, http.MethodPost, "/cocart/v2/cart/apply-coupon?cart_key="+key,
		map[string]any{"coupon": "welcome10"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cart cartResponseV2
	decodeBody(t, rec, &cart)
	assert.Equal(t, []string{"welcome10"}, cart.Coupons)

	rec = doJSON(router, http.MethodGet, "/cocart/v2/cart/totals?cart_key="+key, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var totals domain.CartTotals
	decodeBody(t, rec, &totals)
	assert.Equal(t, int64(9000), totals.Subtotal)
	assert.Equal(t, int64(900), totals.DiscountTotal)
	assert.Equal(t, int64(1620), totals.TotalTax)
	assert.Equal(t, int64(9720), totals.Total)
}

func TestV1FlatCartShape(t *testing.T) {
	router := newTestRouter(t)
	key, item := addToCart(t, router, "", map[string]any{"id": 1, "quantity": 2})
	itemKey := item["item_key"].(string)

	rec := doJSON(router, http.MethodGet, "/cocart/v1/cart?cart_key="+key, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var flat map[string]itemResponseV1
	decodeBody(t, rec, &flat)
	require.Contains(t, flat, itemKey)
	assert.Equal(t, 2, flat[itemKey].Quantity)
	assert.Equal(t, int64(1), flat[itemKey].ProductID)
}

func TestRequestIDReplay(t *testing.T) {
	router := newTestRouter(t)
	headers := map[string]string{"X-Request-ID": "req-1"}

	rec := doJSON(router, http.MethodPost, "/cocart/v2/cart/add-item", map[string]any{"id": 1, "quantity": 2}, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	key := rec.Header().Get("Cart-Key")

	rec = doJSON(router, http.MethodPost, "/cocart/v2/cart/add-item?cart_key="+key,
		map[string]any{"id": 1, "quantity": 2}, headers)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(router, http.MethodGet, "/cocart/v2/cart/items/count?cart_key="+key, nil, nil)
	assert.Equal(t, "2", strings.TrimSpace(rec.Body.String()))
}

func TestLoginMovesGuestCart(t *testing.T) {
	router := newTestRouter(t)
	guestKey, _ := addToCart(t, router, "", map[string]any{"id": 1, "quantity": 2})

	rec := doJSON(router, http.MethodPost, "/cocart/v2/login",
		map[string]any{"email": "demo@example.com", "password": "demo-password"},
		map[string]string{"Cart-Key": guestKey})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Token string         `json:"token"`
		Cart  cartResponseV2 `json:"cart"`
	}
	decodeBody(t, rec, &body)
	require.NotEmpty(t, body.Token)
	assert.Equal(t, "7", rec.Header().Get("Cart-Key"))
	assert.Equal(t, 2, body.Cart.ItemsCount)

	rec = doJSON(router, http.MethodGet, "/cocart/v2/cart", nil,
		map[string]string{"Authorization": "Bearer " + body.Token})
	require.Equal(t, http.StatusOK, rec.Code)
	var cart cartResponseV2
	decodeBody(t, rec, &cart)
	assert.Equal(t, 2, cart.ItemsCount)
}

func TestAuthenticatedCartKeyStable(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(router, http.MethodPost, "/cocart/v2/login",
		map[string]any{"email": "demo@example.com", "password": "demo-password"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "7", rec.Header().Get("Cart-Key"))

	var body struct {
		Token string `json:"token"`
	}
	decodeBody(t, rec, &body)
	require.NotEmpty(t, body.Token)

	// A GET before anything is stored must still answer with the
	// user's own key, not a freshly minted guest token.
	rec = doJSON(router, http.MethodGet, "/cocart/v2/cart", nil,
		map[string]string{"Authorization": "Bearer " + body.Token})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "7", rec.Header().Get("Cart-Key"))
}

func TestLoginBadCredentials(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(router, http.MethodPost, "/cocart/v2/login",
		map[string]any{"email": "demo@example.com", "password": "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutIssuesFreshKey(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(router, http.MethodPost, "/cocart/v2/logout", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		CartKey string `json:"cart_key"`
	}
	decodeBody(t, rec, &body)
	assert.Len(t, body.CartKey, sessionsvc.CartKeyLength)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(router, http.MethodGet, "/cocart/v2/sessions", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	key, _ := addToCart(t, router, "", map[string]any{"id": 1})
	auth := map[string]string{"Authorization": "Bearer admin-token"}

	rec = doJSON(router, http.MethodGet, "/cocart/v2/sessions", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Sessions []domain.CartRecord `json:"sessions"`
		BySource map[string]int      `json:"by_source"`
	}
	decodeBody(t, rec, &listing)
	require.Len(t, listing.Sessions, 1)
	assert.Equal(t, key, listing.Sessions[0].Key)
	assert.Equal(t, map[string]int{domain.SourceCoCart: 1}, listing.BySource)

	rec = doJSON(router, http.MethodGet, "/cocart/v2/session/"+key, nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(router, http.MethodDelete, "/cocart/v2/session/"+key, nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(router, http.MethodGet, "/cocart/v2/cart/items/count?cart_key="+key, nil, nil)
	assert.Equal(t, "0", strings.TrimSpace(rec.Body.String()))
}

func TestStoreMetadata(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(router, http.MethodGet, "/cocart/v2/store", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	decodeBody(t, rec, &body)
	assert.Equal(t, "Test Store", body["store_name"])
	assert.Equal(t, "USD", body["currency"])
}

func TestProductsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(router, http.MethodGet, "/cocart/v2/products", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Last-Modified"))

	var products []domain.Product
	decodeBody(t, rec, &products)
	assert.Len(t, products, 3) // variations are not listed standalone

	rec = doJSON(router, http.MethodGet, "/cocart/v2/products/3", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		Product    domain.Product   `json:"product"`
		Variations []domain.Product `json:"variations"`
	}
	decodeBody(t, rec, &detail)
	assert.Equal(t, domain.ProductVariable, detail.Product.Type)
	require.Len(t, detail.Variations, 1)
	assert.EqualValues(t, 4, detail.Variations[0].ID)
}
