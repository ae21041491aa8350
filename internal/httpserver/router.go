package httpserver

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"cocart-replica/internal/config"
)

// buildRouter wires routes for the API. v2 is the native surface; v1
// is a translation shim over the same handlers.
func buildRouter(cfg config.Config, logger *log.Logger, db *pgxpool.Pool, deps Deps) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.LoggerWithWriter(logger.Writer()), gin.Recovery())
	router.Use(cors.New(corsConfig(cfg)))

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(db))

	h := &handlers{
		deps:   deps,
		cfg:    cfg,
		logger: logger,
	}

	v2 := router.Group("/cocart/v2")
	registerCartRoutes(v2, h, shapeV2)
	v2.GET("/store", h.storeMetadata)
	v2.GET("/products", h.listProducts)
	v2.GET("/products/:id", h.getProduct)

	admin := v2.Group("", h.requireAdmin)
	admin.GET("/sessions", h.adminListSessions)
	admin.GET("/session/:key", h.adminGetSession)
	admin.DELETE("/session/:key", h.adminDeleteSession)

	// v1 keeps the legacy flat shapes but shares every handler.
	v1 := router.Group("/cocart/v1")
	registerCartRoutes(v1, h, shapeV1)
	v1.GET("/products", h.listProducts)
	v1.GET("/products/:id", h.getProduct)

	return router, nil
}

// registerCartRoutes mounts the cart surface under one API version.
// shape picks the response dialect.
func registerCartRoutes(g *gin.RouterGroup, h *handlers, shape responseShape) {
	with := func(fn func(*gin.Context, responseShape)) gin.HandlerFunc {
		return func(c *gin.Context) { fn(c, shape) }
	}

	g.GET("/cart", with(h.getCart))
	g.POST("/cart/add-item", with(h.addItem))
	g.POST("/cart/add-items", with(h.addItems))
	g.GET("/cart/items", with(h.listItems))
	g.GET("/cart/items/count", with(h.countItems))
	g.GET("/cart/item/:item_key", with(h.viewItem))
	g.POST("/cart/item/:item_key", with(h.updateItemByPath))
	g.DELETE("/cart/item/:item_key", with(h.removeItemByPath))
	g.POST("/cart/update-item", with(h.updateItem))
	g.POST("/cart/remove-item", with(h.removeItem))
	g.POST("/cart/restore-item", with(h.restoreItem))
	g.POST("/cart/clear", with(h.clearCart))
	g.POST("/cart/calculate", with(h.calculate))
	g.GET("/cart/totals", with(h.getTotals))
	g.POST("/cart/update", with(h.bulkUpdate))
	g.POST("/cart/apply-coupon", with(h.applyCoupon))
	g.POST("/cart/remove-coupon", with(h.removeCoupon))
	g.POST("/cart/select-shipping", with(h.selectShipping))
	g.POST("/login", with(h.login))
	g.POST("/logout", with(h.logout))
}

func corsConfig(cfg config.Config) cors.Config {
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Cart-Key", "Authorization", "X-Request-ID")
	corsCfg.ExposeHeaders = []string{"Cart-Key", "CoCart-Timestamp"}
	if len(cfg.AllowOrigins) == 1 && cfg.AllowOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowOrigins
	}
	return corsCfg
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func readyHandler(db *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "reason": "db not configured"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "reason": "db not reachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}
