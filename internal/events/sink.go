// Package events carries cart lifecycle notifications to interested
// observers (log, message broker). The cart engine publishes; sinks
// must not block mutations on delivery failures.
package events

import (
	"context"
	"time"
)

// Event types emitted by the cart engine.
const (
	ItemAdded           = "ItemAdded"
	ItemRemoved         = "ItemRemoved"
	ItemQuantityChanged = "ItemQuantityChanged"
	CouponApplied       = "CouponApplied"
	TotalsRecalculated  = "TotalsRecalculated"
)

// Event is one cart mutation notification.
type Event struct {
	Type       string         `json:"type"`
	CartKey    string         `json:"cart_key"`
	ItemKey    string         `json:"item_key,omitempty"`
	ProductID  int64          `json:"product_id,omitempty"`
	Quantity   int            `json:"quantity,omitempty"`
	CouponCode string         `json:"coupon_code,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Sink receives cart events. Implementations own their delivery
// semantics; errors are logged by callers, never surfaced to clients.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// NopSink drops every event.
type NopSink struct{}

func (NopSink) Publish(context.Context, Event) error { return nil }
