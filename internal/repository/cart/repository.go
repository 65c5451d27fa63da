package cart

import (
	"context"

	"github.com/shopspring/decimal"

	"storefront/internal/domain"
)

type CreateCartInput struct {
	UserID   *int64
	GuestKey *string
	Currency string
}

// Repository is the cart store of record. All mutations are scoped to one
// cart and serialize at the storage layer; concurrent mutations on different
// carts do not contend.
type Repository interface {
	// Create inserts a new active cart. It returns domain.ErrConflict when
	// the owner already has an active cart (the partial unique index fires).
	Create(ctx context.Context, in CreateCartInput) (*domain.Cart, error)
	GetByID(ctx context.Context, id int64) (*domain.Cart, error)
	GetActiveByUser(ctx context.Context, userID int64) (*domain.Cart, error)
	GetActiveByGuest(ctx context.Context, guestKey string) (*domain.Cart, error)

	// AddItem accumulates quantity onto an existing line (clamped at
	// domain.MaxLineQuantity) or inserts a new one. A nil unitPrice keeps the
	// previously recorded price.
	AddItem(ctx context.Context, cartID, productID int64, quantity int, unitPrice *decimal.Decimal) error
	// SetItem replaces the line quantity instead of accumulating.
	SetItem(ctx context.Context, cartID, productID int64, quantity int, unitPrice *decimal.Decimal) error
	// RemoveItem deletes the line if present; absence is not an error.
	RemoveItem(ctx context.Context, cartID, productID int64) error
	// ClearItems deletes all lines for the cart; idempotent.
	ClearItems(ctx context.Context, cartID int64) error

	// SetStatus moves the cart lifecycle; it only touches active carts and
	// returns domain.ErrNotFound otherwise.
	SetStatus(ctx context.Context, cartID int64, status string) error
}
