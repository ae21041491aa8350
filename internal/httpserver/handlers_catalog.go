package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"cocart-replica/internal/domain"
)

func (h *handlers) storeMetadata(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"store_name": h.cfg.StoreName,
		"currency":   h.cfg.Currency,
		"routes": gin.H{
			"cart":     "/cocart/v2/cart",
			"products": "/cocart/v2/products",
			"login":    "/cocart/v2/login",
		},
	})
}

func (h *handlers) listProducts(c *gin.Context) {
	limit := 100
	if raw := c.Query("per_page"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	products, err := h.deps.Products.List(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	var latest time.Time
	for _, p := range products {
		if p.UpdatedAt.After(latest) {
			latest = p.UpdatedAt
		}
	}
	if !latest.IsZero() {
		c.Header("Last-Modified", latest.UTC().Format(http.TimeFormat))
	}
	c.JSON(http.StatusOK, products)
}

func (h *handlers) getProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, domain.ErrProductNotFound)
		return
	}
	product, err := h.deps.Products.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Last-Modified", product.UpdatedAt.UTC().Format(http.TimeFormat))

	if product.Type != domain.ProductVariable || len(product.VariationIDs) == 0 {
		c.JSON(http.StatusOK, product)
		return
	}
	variations := make([]*domain.Product, 0, len(product.VariationIDs))
	for _, vid := range product.VariationIDs {
		variation, err := h.deps.Products.GetVariation(c.Request.Context(), vid)
		if err != nil {
			continue
		}
		variations = append(variations, variation)
	}
	c.JSON(http.StatusOK, gin.H{
		"product":    product,
		"variations": variations,
	})
}
