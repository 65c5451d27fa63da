package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"storefront/internal/domain"
)

const uniqueViolation = "23505"

type postgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) Repository {
	return &postgresRepo{pool: pool}
}

func (r *postgresRepo) Create(ctx context.Context, in CreateOrderInput) (*domain.Order, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	order := domain.Order{
		OrderNumber:   in.OrderNumber,
		CustomerType:  in.CustomerType,
		PaymentMethod: in.PaymentMethod,
	}
	err = tx.QueryRow(ctx, `
INSERT INTO orders (order_number, customer_type, payment_method)
VALUES ($1, $2, $3)
RETURNING id, created_at
`, in.OrderNumber, in.CustomerType, in.PaymentMethod).Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, domain.ErrConflict
		}
		return nil, fmt.Errorf("insert order: %w", err)
	}

	for _, item := range in.Items {
		if _, err := tx.Exec(ctx, `
INSERT INTO order_items (order_id, product_id, quantity, unit_price)
VALUES ($1, $2, $3, $4)
`, order.ID, item.ProductID, item.Quantity, item.UnitPrice); err != nil {
			return nil, fmt.Errorf("insert order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit order: %w", err)
	}
	return &order, nil
}

func (r *postgresRepo) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	var order domain.Order
	err := r.pool.QueryRow(ctx, `
SELECT id, order_number, customer_type, payment_method, created_at
FROM orders
WHERE id = $1
`, id).Scan(&order.ID, &order.OrderNumber, &order.CustomerType, &order.PaymentMethod, &order.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("fetch order: %w", err)
	}

	items, err := r.fetchItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return &order, nil
}

func (r *postgresRepo) List(ctx context.Context, f ListFilter) ([]domain.Order, error) {
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	const q = `
SELECT id, order_number, customer_type, payment_method, created_at
FROM orders
WHERE ($1 = '' OR customer_type = $1)
  AND ($2 = '' OR payment_method = $2)
ORDER BY created_at DESC, id DESC
LIMIT $3 OFFSET $4
`
	rows, err := r.pool.Query(ctx, q, f.CustomerType, f.PaymentMethod, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, limit)
	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.OrderNumber, &order.CustomerType, &order.PaymentMethod, &order.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		items, err := r.fetchItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

func (r *postgresRepo) fetchItems(ctx context.Context, orderID int64) ([]domain.OrderItem, error) {
	rows, err := r.pool.Query(ctx, `
SELECT product_id, quantity, unit_price
FROM order_items
WHERE order_id = $1
ORDER BY product_id ASC
`, orderID)
	if err != nil {
		return nil, fmt.Errorf("fetch order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
