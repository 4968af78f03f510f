package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storefront-go/storefront/internal/domain/discount"
	"github.com/storefront-go/storefront/internal/domain/order"
)

const (
	countDiscountsSQL = `SELECT COUNT(*) FROM coupon_order WHERE order_id = $1`

	findDiscountPairSQL = `SELECT id, order_id, coupon_id, discount
		FROM coupon_order WHERE order_id = $1 AND coupon_id = $2`

	// Conditional decrement: affects zero rows once the quantity hits zero,
	// which serializes concurrent redemptions on the coupon row.
	decrementCouponSQL = `UPDATE coupons SET quantity = quantity - 1
		WHERE id = $1 AND quantity > 0`
	incrementCouponSQL = `UPDATE coupons SET quantity = quantity + 1 WHERE id = $1`

	insertDiscountSQL = `INSERT INTO coupon_order (id, order_id, coupon_id, discount)
		VALUES ($1, $2, $3, $4) ON CONFLICT (order_id, coupon_id) DO NOTHING`

	deleteDiscountSQL = `DELETE FROM coupon_order WHERE id = $1 RETURNING order_id, coupon_id`

	retotalOrderSQL = `UPDATE orders SET total = GREATEST(subtotal -
		(SELECT COALESCE(SUM(discount), 0) FROM coupon_order WHERE order_id = $1), 0)
		WHERE id = $1`
)

var _ discount.Store = (*DiscountStore)(nil)

// DiscountStore implements discount.Store backed by PostgreSQL. Apply and
// Remove each run as a single transaction so the discount row, the coupon
// quantity, and the order total always change together.
type DiscountStore struct {
	pool *pgxpool.Pool
}

// NewDiscountStore returns a DiscountStore that uses the given pool.
func NewDiscountStore(pool *pgxpool.Pool) *DiscountStore {
	return &DiscountStore{pool: pool}
}

// CountByOrder returns the number of discounts applied to the order.
func (s *DiscountStore) CountByOrder(ctx context.Context, orderID string) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, countDiscountsSQL, orderID).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting order discounts: %w", err)
	}
	return count, nil
}

// Apply redeems the coupon against the order: it decrements the coupon
// quantity by one, inserts the discount row, and recomputes the order total,
// all in one transaction. A repeated apply for the same (order, coupon) pair
// returns the existing discount without a second decrement. Returns
// discount.ErrCouponExhausted when the quantity is already zero.
func (s *DiscountStore) Apply(ctx context.Context, d *order.Discount) (*order.Discount, error) {
	if existing, err := s.findPair(ctx, d.OrderID, d.CouponID); err == nil {
		return existing, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, decrementCouponSQL, d.CouponID)
	if err != nil {
		return nil, fmt.Errorf("decrementing coupon %q: %w", d.CouponID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, discount.ErrCouponExhausted
	}

	tag, err = tx.Exec(ctx, insertDiscountSQL, d.ID, d.OrderID, d.CouponID, d.Amount)
	if err != nil {
		return nil, fmt.Errorf("inserting discount: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// A concurrent apply won the insert race. Abandon our decrement and
		// return the record that made it in.
		if err := tx.Rollback(ctx); err != nil {
			return nil, fmt.Errorf("rollback after conflict: %w", err)
		}
		existing, err := s.findPair(ctx, d.OrderID, d.CouponID)
		if err != nil {
			return nil, fmt.Errorf("loading conflicting discount: %w", err)
		}
		return existing, nil
	}

	if _, err := tx.Exec(ctx, retotalOrderSQL, d.OrderID); err != nil {
		return nil, fmt.Errorf("recomputing order total: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return d, nil
}

// Remove deletes the discount, restores one unit of its coupon's quantity,
// and recomputes the order total in one transaction. Returns
// discount.ErrNotFound for unknown ids.
func (s *DiscountStore) Remove(ctx context.Context, discountID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var orderID, couponID string
	err = tx.QueryRow(ctx, deleteDiscountSQL, discountID).Scan(&orderID, &couponID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return discount.ErrNotFound
		}
		return fmt.Errorf("deleting discount %q: %w", discountID, err)
	}

	if _, err := tx.Exec(ctx, incrementCouponSQL, couponID); err != nil {
		return fmt.Errorf("incrementing coupon %q: %w", couponID, err)
	}

	if _, err := tx.Exec(ctx, retotalOrderSQL, orderID); err != nil {
		return fmt.Errorf("recomputing order total: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *DiscountStore) findPair(ctx context.Context, orderID, couponID string) (*order.Discount, error) {
	var d order.Discount
	err := s.pool.QueryRow(ctx, findDiscountPairSQL, orderID, couponID).
		Scan(&d.ID, &d.OrderID, &d.CouponID, &d.Amount)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
