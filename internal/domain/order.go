package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is a point-in-time snapshot of purchased items. It never references
// a live cart; mutating or cancelling the source cart afterwards has no
// effect on it.
type Order struct {
	ID            int64       `json:"id"`
	OrderNumber   string      `json:"orderNumber"`
	CustomerType  string      `json:"customerType"`
	PaymentMethod string      `json:"paymentMethod"`
	CreatedAt     time.Time   `json:"createdAt"`
	Items         []OrderItem `json:"items"`
}

type OrderItem struct {
	ProductID int64           `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// Total sums quantity times unit price over all items.
func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}
