package order

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"storefront/internal/domain"
	"storefront/internal/metrics"
	orderrepo "storefront/internal/repository/order"
)

// Service assembles immutable orders from submitted item snapshots. Price and
// quantity are captured at submission time; nothing is re-derived from any
// cart afterwards.
type Service struct {
	repo    orderrepo.Repository
	metrics *metrics.Metrics
	now     func() time.Time
}

type ItemInput struct {
	ProductID int64    `json:"product_id"`
	Quantity  float64  `json:"quantity"`
	UnitPrice *float64 `json:"unit_price"`
}

type CreateInput struct {
	CustomerType  string      `json:"customer_type"`
	PaymentMethod string      `json:"payment_method"`
	Items         []ItemInput `json:"items"`
}

func New(repo orderrepo.Repository, m *metrics.Metrics) *Service {
	return &Service{repo: repo, metrics: m, now: time.Now}
}

// Create validates the submission, snapshots it, and persists header plus
// items atomically under a fresh order number.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Order, error) {
	if len(in.Items) == 0 {
		return nil, domain.Invalid("items", "must not be empty")
	}

	items := make([]domain.OrderItem, 0, len(in.Items))
	seen := make(map[int64]bool, len(in.Items))
	for _, it := range in.Items {
		item, err := checkItem(it)
		if err != nil {
			return nil, err
		}
		if seen[item.ProductID] {
			return nil, domain.Invalid("items", fmt.Sprintf("contains product %d more than once", item.ProductID))
		}
		seen[item.ProductID] = true
		items = append(items, item)
	}

	input := orderrepo.CreateOrderInput{
		OrderNumber:   s.newOrderNumber(),
		CustomerType:  strings.TrimSpace(in.CustomerType),
		PaymentMethod: strings.TrimSpace(in.PaymentMethod),
		Items:         items,
	}

	order, err := s.repo.Create(ctx, input)
	if errors.Is(err, domain.ErrConflict) {
		// Order number collision. One retry with fresh entropy; the unique
		// index stays the backstop.
		input.OrderNumber = s.newOrderNumber()
		order, err = s.repo.Create(ctx, input)
	}
	if err != nil {
		return nil, err
	}

	s.metrics.RecordOrder(ctx, len(order.Items))
	return order, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*domain.Order, error) {
	if id <= 0 {
		return nil, domain.Invalid("id", "must be a positive integer")
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f orderrepo.ListFilter) ([]domain.Order, error) {
	return s.repo.List(ctx, f)
}

// newOrderNumber builds a human-presentable unique number, e.g.
// ORD-20260830-9F2C41AB.
func (s *Service) newOrderNumber() string {
	id := uuid.New()
	return fmt.Sprintf("ORD-%s-%08X", s.now().UTC().Format("20060102"), id.ID())
}

func checkItem(in ItemInput) (domain.OrderItem, error) {
	if in.ProductID <= 0 {
		return domain.OrderItem{}, domain.Invalid("product_id", "must be a positive integer")
	}
	if math.IsNaN(in.Quantity) || math.IsInf(in.Quantity, 0) {
		return domain.OrderItem{}, domain.Invalid("quantity", "must be a finite number")
	}
	if in.Quantity != math.Trunc(in.Quantity) {
		return domain.OrderItem{}, domain.Invalid("quantity", "must be a whole number")
	}
	if in.Quantity <= 0 || in.Quantity > domain.MaxLineQuantity {
		return domain.OrderItem{}, domain.Invalid("quantity", fmt.Sprintf("must be between 1 and %d", domain.MaxLineQuantity))
	}

	price := decimal.Zero
	if in.UnitPrice != nil {
		if math.IsNaN(*in.UnitPrice) || math.IsInf(*in.UnitPrice, 0) {
			return domain.OrderItem{}, domain.Invalid("unit_price", "must be a finite number")
		}
		if *in.UnitPrice < 0 {
			return domain.OrderItem{}, domain.Invalid("unit_price", "must not be negative")
		}
		price = decimal.NewFromFloat(*in.UnitPrice)
	}

	return domain.OrderItem{
		ProductID: in.ProductID,
		Quantity:  int(in.Quantity),
		UnitPrice: price,
	}, nil
}
