package user

import (
	"context"

	"cocart-replica/internal/domain"
)

type Repository interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}
