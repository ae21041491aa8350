package events

import (
	"context"
	"io"
	"log"
)

// LogSink writes events to the application logger. It is the default
// sink when no broker is configured.
type LogSink struct {
	logger *log.Logger
}

func NewLogSink(logger *log.Logger) *LogSink {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(_ context.Context, event Event) error {
	s.logger.Printf("event type=%s cart_key=%s item_key=%s product_id=%d qty=%d coupon=%s",
		event.Type, event.CartKey, event.ItemKey, event.ProductID, event.Quantity, event.CouponCode)
	return nil
}
