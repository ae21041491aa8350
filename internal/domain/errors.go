package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a unique-key collision, e.g. renaming a cart
	// onto a key that already holds a non-empty cart.
	ErrConflict = errors.New("conflict")
)

// Error is an API-visible failure with a stable code and HTTP status.
// It serializes to the response envelope {code, message, data:{status}}.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Data    map[string]any `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

var (
	ErrProductNotFound    = &Error{Code: "cocart_product_does_not_exist", Message: "Product does not exist.", Status: 404}
	ErrNotPurchasable     = &Error{Code: "cocart_cannot_be_purchased", Message: "Product cannot be purchased.", Status: 403}
	ErrInvalidVariation   = &Error{Code: "cocart_invalid_variation", Message: "Attributes do not resolve to a valid variation.", Status: 400}
	ErrSoldIndividually   = &Error{Code: "cocart_product_sold_individually", Message: "Product is sold individually and is already in the cart.", Status: 403}
	ErrItemNotInCart      = &Error{Code: "cocart_item_not_in_cart", Message: "Item specified does not exist in cart.", Status: 404}
	ErrItemNotRemoved     = &Error{Code: "cocart_item_not_removed", Message: "Item specified was not removed from cart.", Status: 404}
	ErrCouponNotFound     = &Error{Code: "cocart_coupon_does_not_exist", Message: "Coupon does not exist.", Status: 400}
	ErrMissingItemKey     = &Error{Code: "cocart_cart_item_key_required", Message: "Cart item key is required.", Status: 404}
	ErrEmptyCart          = &Error{Code: "cocart_cart_empty", Message: "Cart is empty.", Status: 404}
	ErrCartFull           = &Error{Code: "cocart_cart_full", Message: "Cart has reached the maximum number of line items.", Status: 413}
	ErrStorage            = &Error{Code: "cocart_session_storage_unavailable", Message: "Cart could not be saved.", Status: 503}
	ErrUpstream           = &Error{Code: "cocart_upstream_unavailable", Message: "Upstream service timed out.", Status: 504}
	ErrUnauthorized       = &Error{Code: "cocart_authentication_required", Message: "Authentication is required.", Status: 401}
	ErrAmbiguousVariation = &Error{Code: "cocart_ambiguous_variation", Message: "Attributes match more than one variation.", Status: 400}
)

// NewInsufficientStock reports a failed stock admission with how much
// remains available against what was requested.
func NewInsufficientStock(available, requested int) *Error {
	return &Error{
		Code:    "cocart_not_enough_in_stock",
		Message: fmt.Sprintf("Not enough stock. Available: %d, requested: %d.", available, requested),
		Status:  403,
		Data:    map[string]any{"available": available, "requested": requested},
	}
}

// NewBelowMinPurchase reports a quantity under the product's minimum.
func NewBelowMinPurchase(min int) *Error {
	return &Error{
		Code:    "cocart_quantity_below_minimum",
		Message: fmt.Sprintf("Quantity is below the minimum purchase amount of %d.", min),
		Status:  403,
		Data:    map[string]any{"min_purchase": min},
	}
}

// NewAboveMaxPurchase reports a quantity over the product's maximum.
func NewAboveMaxPurchase(max int) *Error {
	return &Error{
		Code:    "cocart_quantity_above_maximum",
		Message: fmt.Sprintf("Quantity is above the maximum purchase amount of %d.", max),
		Status:  403,
		Data:    map[string]any{"max_purchase": max},
	}
}

// NewCouponIneligible reports a coupon that exists but fails an
// eligibility predicate; reason names the failing predicate.
func NewCouponIneligible(code, reason string) *Error {
	return &Error{
		Code:    "cocart_coupon_not_applicable",
		Message: fmt.Sprintf("Coupon %q cannot be applied: %s.", code, reason),
		Status:  403,
		Data:    map[string]any{"reason": reason},
	}
}

// AsAPIError maps err onto an API-visible *Error, defaulting unknown
// failures to a generic 500.
func AsAPIError(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if errors.Is(err, ErrNotFound) {
		return &Error{Code: "cocart_not_found", Message: "Resource not found.", Status: 404}
	}
	return &Error{Code: "cocart_unknown_server_error", Message: "Internal server error.", Status: 500}
}
