package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"storefront/internal/domain"
)

const cartColumns = `id, user_id, guest_key::text, currency, status, created_at, updated_at`

type postgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) Repository {
	return &postgresRepo{pool: pool}
}

func (r *postgresRepo) Create(ctx context.Context, in CreateCartInput) (*domain.Cart, error) {
	// ON CONFLICT DO NOTHING covers both partial unique indexes (user and
	// guest); a raced duplicate surfaces as ErrConflict for the resolver to
	// absorb by re-reading.
	const q = `
INSERT INTO carts (user_id, guest_key, currency, status)
VALUES ($1, $2, $3, 'active')
ON CONFLICT DO NOTHING
RETURNING ` + cartColumns + `
`
	cart, err := r.scanCart(r.pool.QueryRow(ctx, q, in.UserID, in.GuestKey, in.Currency))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrConflict
		}
		return nil, fmt.Errorf("insert cart: %w", err)
	}
	return cart, nil
}

func (r *postgresRepo) GetByID(ctx context.Context, id int64) (*domain.Cart, error) {
	const q = `SELECT ` + cartColumns + ` FROM carts WHERE id = $1`
	return r.fetchCart(ctx, q, id)
}

func (r *postgresRepo) GetActiveByUser(ctx context.Context, userID int64) (*domain.Cart, error) {
	const q = `SELECT ` + cartColumns + ` FROM carts WHERE user_id = $1 AND status = 'active'`
	return r.fetchCart(ctx, q, userID)
}

func (r *postgresRepo) GetActiveByGuest(ctx context.Context, guestKey string) (*domain.Cart, error) {
	const q = `SELECT ` + cartColumns + ` FROM carts WHERE guest_key = $1 AND status = 'active'`
	return r.fetchCart(ctx, q, guestKey)
}

func (r *postgresRepo) AddItem(ctx context.Context, cartID, productID int64, quantity int, unitPrice *decimal.Decimal) error {
	// Accumulation happens inside the upsert so concurrent adds against the
	// same line cannot lose updates; the clamp keeps the CHECK constraint
	// from firing on overflow.
	const q = `
INSERT INTO cart_items (cart_id, product_id, quantity, unit_price)
VALUES ($1, $2, LEAST($3, 9999), COALESCE($4, 0))
ON CONFLICT (cart_id, product_id) DO UPDATE
SET quantity = LEAST(9999, cart_items.quantity + EXCLUDED.quantity),
    unit_price = COALESCE($4, cart_items.unit_price)
`
	return r.mutateItems(ctx, cartID, q, cartID, productID, quantity, unitPrice)
}

func (r *postgresRepo) SetItem(ctx context.Context, cartID, productID int64, quantity int, unitPrice *decimal.Decimal) error {
	const q = `
INSERT INTO cart_items (cart_id, product_id, quantity, unit_price)
VALUES ($1, $2, LEAST($3, 9999), COALESCE($4, 0))
ON CONFLICT (cart_id, product_id) DO UPDATE
SET quantity = LEAST(9999, EXCLUDED.quantity),
    unit_price = COALESCE($4, cart_items.unit_price)
`
	return r.mutateItems(ctx, cartID, q, cartID, productID, quantity, unitPrice)
}

func (r *postgresRepo) RemoveItem(ctx context.Context, cartID, productID int64) error {
	const q = `DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`
	return r.mutateItems(ctx, cartID, q, cartID, productID)
}

func (r *postgresRepo) ClearItems(ctx context.Context, cartID int64) error {
	const q = `DELETE FROM cart_items WHERE cart_id = $1`
	return r.mutateItems(ctx, cartID, q, cartID)
}

func (r *postgresRepo) SetStatus(ctx context.Context, cartID int64, status string) error {
	const q = `
UPDATE carts
SET status = $1, updated_at = now()
WHERE id = $2 AND status = 'active'
`
	cmd, err := r.pool.Exec(ctx, q, status, cartID)
	if err != nil {
		return fmt.Errorf("set cart status: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// mutateItems runs one line-item statement inside a transaction that first
// locks and touches the owning cart row. The touch doubles as the liveness
// check: a missing or cancelled cart matches no row and the mutation rolls
// back with ErrNotFound, so cancelled carts stay immutable even under races.
func (r *postgresRepo) mutateItems(ctx context.Context, cartID int64, q string, args ...interface{}) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, `UPDATE carts SET updated_at = now() WHERE id = $1 AND status = 'active'`, cartID)
	if err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	if _, err := tx.Exec(ctx, q, args...); err != nil {
		return fmt.Errorf("mutate cart items: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *postgresRepo) fetchCart(ctx context.Context, q string, args ...interface{}) (*domain.Cart, error) {
	cart, err := r.scanCart(r.pool.QueryRow(ctx, q, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("fetch cart: %w", err)
	}

	const linesQuery = `
SELECT cart_id, product_id, quantity, unit_price
FROM cart_items
WHERE cart_id = $1
ORDER BY product_id ASC
`
	rows, err := r.pool.Query(ctx, linesQuery, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.CartID, &item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		cart.Items = append(cart.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return cart, nil
}

func (r *postgresRepo) scanCart(row pgx.Row) (*domain.Cart, error) {
	var cart domain.Cart
	if err := row.Scan(
		&cart.ID,
		&cart.UserID,
		&cart.GuestKey,
		&cart.Currency,
		&cart.Status,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &cart, nil
}
