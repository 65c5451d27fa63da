package mirror

import (
	"context"

	"github.com/shopspring/decimal"

	cartsvc "storefront/internal/service/cart"
	"storefront/internal/service/identity"
)

// ServiceAPI adapts the in-process identity resolver and cart service to the
// sync protocol. Browser clients speak the same protocol over HTTP.
type ServiceAPI struct {
	Resolver *identity.Resolver
	Carts    *cartsvc.Service
}

func (a *ServiceAPI) EnsureCart(ctx context.Context, guestKey string) (int64, string, error) {
	id := identity.Parse("", guestKey)
	cart, err := a.Resolver.EnsureActive(ctx, id, "")
	if err != nil {
		return 0, "", err
	}
	key := ""
	if cart.GuestKey != nil {
		key = *cart.GuestKey
	}
	return cart.ID, key, nil
}

func (a *ServiceAPI) AddItem(ctx context.Context, cartID, productID int64, qty int, price *decimal.Decimal) error {
	_, err := a.Carts.Add(ctx, cartID, productID, float64(qty), priceArg(price))
	return err
}

func (a *ServiceAPI) SetItem(ctx context.Context, cartID, productID int64, qty int, price *decimal.Decimal) error {
	_, err := a.Carts.Set(ctx, cartID, productID, float64(qty), priceArg(price))
	return err
}

func (a *ServiceAPI) RemoveItem(ctx context.Context, cartID, productID int64) error {
	_, err := a.Carts.Remove(ctx, cartID, productID)
	return err
}

func (a *ServiceAPI) ClearItems(ctx context.Context, cartID int64) error {
	_, err := a.Carts.Clear(ctx, cartID)
	return err
}

// priceArg keeps an unknown price out of the request so the store preserves
// whatever it already recorded for the line. A known zero still transmits;
// free items are a valid price, not an absent one.
func priceArg(price *decimal.Decimal) *float64 {
	if price == nil {
		return nil
	}
	f, _ := price.Float64()
	return &f
}

var _ CartAPI = (*ServiceAPI)(nil)
