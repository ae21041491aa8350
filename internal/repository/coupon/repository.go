package coupon

import (
	"context"

	"cocart-replica/internal/domain"
)

type Repository interface {
	GetByCode(ctx context.Context, code string) (*domain.Coupon, error)
}
