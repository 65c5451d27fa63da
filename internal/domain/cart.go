package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Cart lifecycle states. There is no transition out of StatusCancelled.
const (
	StatusActive    = "active"
	StatusCancelled = "cancelled"
)

// MaxLineQuantity caps a single line item; accumulation clamps here.
const MaxLineQuantity = 9999

type Cart struct {
	ID        int64      `json:"id"`
	UserID    *int64     `json:"userId,omitempty"`
	GuestKey  *string    `json:"guestKey,omitempty"`
	Currency  string     `json:"currency"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	Items     []CartItem `json:"items"`
}

type CartItem struct {
	CartID    int64           `json:"cartId"`
	ProductID int64           `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// Active reports whether the cart can still be mutated.
func (c *Cart) Active() bool {
	return c.Status == StatusActive
}

// Identity names a cart owner: an authenticated user, an anonymous guest,
// or both when a guest key is still around after login. Either field may be
// nil; a usable identity has at least one set.
type Identity struct {
	UserID   *int64
	GuestKey *string
}

func (id Identity) Empty() bool {
	return id.UserID == nil && id.GuestKey == nil
}
