package httpserver

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"cocart-replica/internal/domain"
	sessionsvc "cocart-replica/internal/service/session"
)

// login authenticates the caller and moves any guest cart under the
// user's key. The guest key is taken from the usual transport fields,
// never from a bearer token.
func (h *handlers) login(c *gin.Context, shape responseShape) {
	p := newParams(c)
	email := p.str("email")
	if email == "" {
		email = p.str("username")
	}
	password := p.str("password")
	if email == "" || password == "" {
		writeError(c, &domain.Error{Code: "cocart_credentials_required", Message: "Email and password are required.", Status: 400})
		return
	}

	user, token, err := h.deps.Identity.Authenticate(c.Request.Context(), email, password)
	if err != nil {
		writeError(c, err)
		return
	}

	guestKey := c.Query("cart_key")
	if guestKey == "" {
		guestKey = c.GetHeader("Cart-Key")
	}
	result, err := h.deps.Sessions.Login(c.Request.Context(), guestKey, user.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	cartHeaders(c, result.Cart.Key)
	body := gin.H{
		"token":        token,
		"user_id":      user.ID,
		"email":        user.Email,
		"display_name": user.DisplayName,
		"warnings":     result.Warnings,
	}
	if shape == shapeV1 {
		body["cart"] = toCartV1(result.Cart)
	} else {
		body["cart"] = toCartV2(result.Cart, h.cfg.Currency)
	}
	c.JSON(http.StatusOK, body)
}

// logout detaches the session from the user identity and hands back a
// fresh guest key. Without a valid token it still issues a new key so
// the client can always reset its session.
func (h *handlers) logout(c *gin.Context, _ responseShape) {
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		userID, err := h.deps.Identity.ResolveToken(strings.TrimPrefix(auth, "Bearer "))
		if err == nil {
			guestKey, err := h.deps.Sessions.Logout(c.Request.Context(), userID)
			if err != nil {
				writeError(c, err)
				return
			}
			cartHeaders(c, guestKey)
			c.JSON(http.StatusOK, gin.H{"cart_key": guestKey})
			return
		}
	}
	guestKey := sessionsvc.GenerateKey()
	cartHeaders(c, guestKey)
	c.JSON(http.StatusOK, gin.H{"cart_key": guestKey})
}
