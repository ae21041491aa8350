package httpserver

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"cocart-replica/internal/domain"
)

// requireAdmin gates the session administration routes behind a static
// bearer token. With no token configured the routes are closed.
func (h *handlers) requireAdmin(c *gin.Context) {
	auth := c.GetHeader("Authorization")
	token := strings.TrimPrefix(auth, "Bearer ")
	if h.cfg.AdminToken == "" || token == "" || token != h.cfg.AdminToken {
		writeError(c, domain.ErrUnauthorized)
		c.Abort()
		return
	}
	c.Next()
}

func (h *handlers) adminListSessions(c *gin.Context) {
	limit := 100
	if raw := c.Query("per_page"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	records, err := h.deps.Sessions.AdminList(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	bySource := map[string]int{}
	for _, rec := range records {
		bySource[rec.Source]++
	}
	c.JSON(http.StatusOK, gin.H{
		"sessions":  records,
		"by_source": bySource,
	})
}

func (h *handlers) adminGetSession(c *gin.Context) {
	key := c.Param("key")
	cart, rec, err := h.deps.Sessions.AdminGet(c.Request.Context(), key)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session": rec,
		"cart":    toCartV2(cart, h.cfg.Currency),
	})
}

func (h *handlers) adminDeleteSession(c *gin.Context) {
	key := c.Param("key")
	if err := h.deps.Sessions.Delete(c.Request.Context(), key); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": key})
}
