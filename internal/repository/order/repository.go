package order

import (
	"context"

	"storefront/internal/domain"
)

type CreateOrderInput struct {
	OrderNumber   string
	CustomerType  string
	PaymentMethod string
	Items         []domain.OrderItem
}

type ListFilter struct {
	CustomerType  string
	PaymentMethod string
	Limit         int
	Offset        int
}

type Repository interface {
	// Create persists the order header and all items in one transaction.
	// A duplicate order number returns domain.ErrConflict.
	Create(ctx context.Context, in CreateOrderInput) (*domain.Order, error)
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	List(ctx context.Context, f ListFilter) ([]domain.Order, error)
}
