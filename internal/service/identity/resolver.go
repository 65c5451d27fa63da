package identity

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"storefront/internal/domain"
	cartrepo "storefront/internal/repository/cart"
)

// Resolver maps a client identity (user id and/or guest key) to its single
// active cart, creating one when absent.
type Resolver struct {
	repo            cartRepo
	defaultCurrency string
}

type cartRepo interface {
	Create(ctx context.Context, in cartrepo.CreateCartInput) (*domain.Cart, error)
	GetActiveByUser(ctx context.Context, userID int64) (*domain.Cart, error)
	GetActiveByGuest(ctx context.Context, guestKey string) (*domain.Cart, error)
}

func New(repo cartrepo.Repository, defaultCurrency string) *Resolver {
	return &Resolver{repo: repo, defaultCurrency: defaultCurrency}
}

// Parse builds an Identity from raw request values. Malformed values are
// dropped rather than trusted: a user id must be a positive integer and a
// guest key a syntactically valid UUID.
func Parse(rawUserID, rawGuestKey string) domain.Identity {
	var id domain.Identity
	if v := strings.TrimSpace(rawUserID); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			id.UserID = &n
		}
	}
	if v := strings.TrimSpace(rawGuestKey); v != "" {
		if key, err := uuid.Parse(v); err == nil {
			s := key.String()
			id.GuestKey = &s
		}
	}
	return id
}

// FindActive returns the active cart for the identity, preferring a
// user-matched cart over a guest-matched one. No cart is domain.ErrNotFound.
func (r *Resolver) FindActive(ctx context.Context, id domain.Identity) (*domain.Cart, error) {
	if id.Empty() {
		return nil, domain.Invalid("identity", "requires a user id or guest key")
	}
	if id.UserID != nil {
		cart, err := r.repo.GetActiveByUser(ctx, *id.UserID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	if id.GuestKey != nil {
		return r.repo.GetActiveByGuest(ctx, *id.GuestKey)
	}
	return nil, domain.ErrNotFound
}

// EnsureActive returns the identity's active cart, creating one when none
// exists. An empty identity gets a freshly generated guest key so an
// anonymous first visit can bootstrap. Two concurrent calls for the same new
// owner cannot both create: the storage uniqueness rejects the loser, which
// then re-reads the winner's cart.
func (r *Resolver) EnsureActive(ctx context.Context, id domain.Identity, currency string) (*domain.Cart, error) {
	if id.Empty() {
		key := uuid.NewString()
		id.GuestKey = &key
	}

	cart, err := r.FindActive(ctx, id)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = r.defaultCurrency
	}

	cart, err = r.repo.Create(ctx, cartrepo.CreateCartInput{
		UserID:   id.UserID,
		GuestKey: id.GuestKey,
		Currency: currency,
	})
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, domain.ErrConflict) {
		return nil, err
	}
	// Lost the create race; the other writer's cart is the active one now.
	return r.FindActive(ctx, id)
}
