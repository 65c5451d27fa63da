package cart

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"storefront/internal/domain"
	"storefront/internal/metrics"
	cartrepo "storefront/internal/repository/cart"
)

// Service is the cart mutation API. Every mutation validates eagerly, fails
// closed before touching storage, and returns the reloaded authoritative
// cart rather than trusting the caller's view.
type Service struct {
	repo    mutationRepo
	metrics *metrics.Metrics
}

type mutationRepo interface {
	GetByID(ctx context.Context, id int64) (*domain.Cart, error)
	AddItem(ctx context.Context, cartID, productID int64, quantity int, unitPrice *decimal.Decimal) error
	SetItem(ctx context.Context, cartID, productID int64, quantity int, unitPrice *decimal.Decimal) error
	RemoveItem(ctx context.Context, cartID, productID int64) error
	ClearItems(ctx context.Context, cartID int64) error
	SetStatus(ctx context.Context, cartID int64, status string) error
}

func New(repo cartrepo.Repository, m *metrics.Metrics) *Service {
	return &Service{repo: repo, metrics: m}
}

func (s *Service) Get(ctx context.Context, cartID int64) (*domain.Cart, error) {
	if err := checkID("cart_id", cartID); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, cartID)
}

// Add accumulates quantity onto the product's line, creating it if absent.
func (s *Service) Add(ctx context.Context, cartID, productID int64, quantity float64, unitPrice *float64) (cart *domain.Cart, err error) {
	defer s.record(ctx, "add", time.Now(), &err)

	qty, price, err := checkLine(cartID, productID, quantity, unitPrice)
	if err != nil {
		return nil, err
	}
	if err := s.repo.AddItem(ctx, cartID, productID, qty, price); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, cartID)
}

// Set replaces the line quantity instead of accumulating.
func (s *Service) Set(ctx context.Context, cartID, productID int64, quantity float64, unitPrice *float64) (cart *domain.Cart, err error) {
	defer s.record(ctx, "set", time.Now(), &err)

	qty, price, err := checkLine(cartID, productID, quantity, unitPrice)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetItem(ctx, cartID, productID, qty, price); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, cartID)
}

// Remove deletes the product's line. A missing line is not an error; the
// unchanged cart comes back.
func (s *Service) Remove(ctx context.Context, cartID, productID int64) (cart *domain.Cart, err error) {
	defer s.record(ctx, "remove", time.Now(), &err)

	if err := checkID("cart_id", cartID); err != nil {
		return nil, err
	}
	if err := checkID("product_id", productID); err != nil {
		return nil, err
	}
	if err := s.repo.RemoveItem(ctx, cartID, productID); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, cartID)
}

// Clear deletes every line for the cart; idempotent.
func (s *Service) Clear(ctx context.Context, cartID int64) (cart *domain.Cart, err error) {
	defer s.record(ctx, "clear", time.Now(), &err)

	if err := checkID("cart_id", cartID); err != nil {
		return nil, err
	}
	if err := s.repo.ClearItems(ctx, cartID); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, cartID)
}

// Cancel soft-deletes the cart. Subsequent active-cart lookups for the owner
// no longer see it, and it cannot be mutated again.
func (s *Service) Cancel(ctx context.Context, cartID int64) (err error) {
	defer s.record(ctx, "cancel", time.Now(), &err)

	if err := checkID("cart_id", cartID); err != nil {
		return err
	}
	return s.repo.SetStatus(ctx, cartID, domain.StatusCancelled)
}

func (s *Service) record(ctx context.Context, action string, start time.Time, err *error) {
	s.metrics.RecordMutation(ctx, action, start, *err == nil)
}

func checkLine(cartID, productID int64, quantity float64, unitPrice *float64) (int, *decimal.Decimal, error) {
	if err := checkID("cart_id", cartID); err != nil {
		return 0, nil, err
	}
	if err := checkID("product_id", productID); err != nil {
		return 0, nil, err
	}
	qty, err := checkQuantity(quantity)
	if err != nil {
		return 0, nil, err
	}
	price, err := checkUnitPrice(unitPrice)
	if err != nil {
		return 0, nil, err
	}
	return qty, price, nil
}

func checkID(field string, id int64) error {
	if id <= 0 {
		return domain.Invalid(field, "must be a positive integer")
	}
	return nil
}

func checkQuantity(q float64) (int, error) {
	if math.IsNaN(q) || math.IsInf(q, 0) {
		return 0, domain.Invalid("quantity", "must be a finite number")
	}
	if q != math.Trunc(q) {
		return 0, domain.Invalid("quantity", "must be a whole number")
	}
	if q <= 0 {
		return 0, domain.Invalid("quantity", "must be positive")
	}
	if q > domain.MaxLineQuantity {
		// Overflow clamps silently; accumulation in the store clamps the
		// same way.
		return domain.MaxLineQuantity, nil
	}
	return int(q), nil
}

func checkUnitPrice(p *float64) (*decimal.Decimal, error) {
	if p == nil {
		return nil, nil
	}
	if math.IsNaN(*p) || math.IsInf(*p, 0) {
		return nil, domain.Invalid("unit_price", "must be a finite number")
	}
	if *p < 0 {
		return nil, domain.Invalid("unit_price", "must not be negative")
	}
	price := decimal.NewFromFloat(*p)
	return &price, nil
}
