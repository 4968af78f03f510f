package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storefront-go/storefront/internal/domain/order"
)

const (
	orderColumns = `id, user_id, status, subtotal, total, created_at`

	getOrderByIDSQL    = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	getOrderForUserSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND user_id = $2`

	insertOrderSQL = `INSERT INTO orders (id, user_id, status, subtotal, total)
		VALUES ($1, $2, $3, $4, $5)`
	updateOrderSQL = `UPDATE orders SET user_id = $2, status = $3, subtotal = $4, total = $5
		WHERE id = $1`

	insertOrderItemSQL = `INSERT INTO order_items (id, order_id, product_id, quantity, unit_price, subtotal)
		VALUES ($1, $2, $3, $4, $5, $6)`

	orderItemsSQL = `SELECT id, product_id, quantity, unit_price, subtotal
		FROM order_items WHERE order_id = $1 ORDER BY id`
	orderDiscountsSQL = `SELECT id, order_id, coupon_id, discount
		FROM coupon_order WHERE order_id = $1 ORDER BY id`

	// Cascade deletes restore one quantity unit per redemption so the
	// bookkeeping stays symmetric for coupons used on the deleted order.
	restoreCouponQuantitiesSQL = `UPDATE coupons c SET quantity = c.quantity + sub.cnt
		FROM (SELECT coupon_id, COUNT(*) AS cnt FROM coupon_order WHERE order_id = $1 GROUP BY coupon_id) sub
		WHERE c.id = sub.coupon_id`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// GetByID loads an order with its items and discounts.
// Returns order.ErrNotFound when no such order exists.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByIDSQL, id)
}

// GetForUser loads an order only if it belongs to the given user.
func (r *OrderRepository) GetForUser(ctx context.Context, id, userID string) (*order.Order, error) {
	return r.getOne(ctx, getOrderForUserSQL, id, userID)
}

func (r *OrderRepository) getOne(ctx context.Context, sql string, args ...any) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying order: %w", err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("scanning order: %w", err)
	}

	if err := r.loadChildren(ctx, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// List returns a page of orders (newest first) and the total count matched
// by the filter. Items and discounts are loaded for each returned order.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) ([]order.Order, int, error) {
	where := `WHERE ($1 = '' OR id LIKE $1 || '%') AND ($2 = '' OR user_id = $2)`

	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders `+where+` ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		f.Number, f.UserID, f.Limit, f.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}

	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, fmt.Errorf("scanning orders: %w", err)
	}

	for i := range orders {
		if err := r.loadChildren(ctx, &orders[i]); err != nil {
			return nil, 0, err
		}
	}

	var total int
	err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders `+where, f.Number, f.UserID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}
	return orders, total, nil
}

// Create persists the order and its items in one transaction. Totals are
// expected to be recalculated by the caller beforehand.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, insertOrderSQL, o.ID, o.UserID, o.Status, o.Subtotal, o.Total)
	if err != nil {
		return fmt.Errorf("inserting order %q: %w", o.ID, err)
	}

	if err := insertItems(ctx, tx, o); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Update rewrites the order row and replaces its line items in one
// transaction.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, updateOrderSQL, o.ID, o.UserID, o.Status, o.Subtotal, o.Total)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, o.ID); err != nil {
		return fmt.Errorf("clearing order items: %w", err)
	}
	if err := insertItems(ctx, tx, o); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Delete removes the order with its items and discounts. Each removed
// discount restores one unit of the corresponding coupon's quantity, in the
// same transaction as the delete.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, restoreCouponQuantitiesSQL, id); err != nil {
		return fmt.Errorf("restoring coupon quantities: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *OrderRepository) loadChildren(ctx context.Context, o *order.Order) error {
	rows, err := r.pool.Query(ctx, orderItemsSQL, o.ID)
	if err != nil {
		return fmt.Errorf("loading order items: %w", err)
	}
	o.Items, err = pgx.CollectRows(rows, scanOrderItem)
	if err != nil {
		return fmt.Errorf("scanning order items: %w", err)
	}

	rows, err = r.pool.Query(ctx, orderDiscountsSQL, o.ID)
	if err != nil {
		return fmt.Errorf("loading order discounts: %w", err)
	}
	o.Discounts, err = pgx.CollectRows(rows, scanDiscount)
	if err != nil {
		return fmt.Errorf("scanning order discounts: %w", err)
	}
	return nil
}

func insertItems(ctx context.Context, tx pgx.Tx, o *order.Order) error {
	for _, it := range o.Items {
		_, err := tx.Exec(ctx, insertOrderItemSQL,
			it.ID, o.ID, it.ProductID, it.Quantity, it.UnitPrice, it.Subtotal,
		)
		if err != nil {
			return fmt.Errorf("inserting order item %q: %w", it.ID, err)
		}
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(&o.ID, &o.UserID, &status, &o.Subtotal, &o.Total, &o.CreatedAt)
	o.Status = order.Status(status)
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var it order.Item
	err := row.Scan(&it.ID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.Subtotal)
	return it, err
}

func scanDiscount(row pgx.CollectableRow) (order.Discount, error) {
	var d order.Discount
	err := row.Scan(&d.ID, &d.OrderID, &d.CouponID, &d.Amount)
	return d, err
}
