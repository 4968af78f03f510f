package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/storefront-go/storefront/internal/domain/coupon"
)

const (
	couponColumns = `id, code, type, discount, quantity, recursive, can_use_for,
		valid_from, valid_until, created_at`

	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = UPPER($1)`
	getCouponByIDSQL   = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`
	listCouponsSQL     = `SELECT ` + couponColumns + ` FROM coupons ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	countCouponsSQL    = `SELECT COUNT(*) FROM coupons`

	insertCouponSQL = `INSERT INTO coupons
		(id, code, type, discount, quantity, recursive, can_use_for, valid_from, valid_until)
		VALUES ($1, UPPER($2), $3, $4, $5, $6, $7, $8, $9)`

	updateCouponSQL = `UPDATE coupons SET code = UPPER($2), type = $3, discount = $4,
		quantity = $5, recursive = $6, can_use_for = $7, valid_from = $8, valid_until = $9
		WHERE id = $1`

	couponUserIDsSQL    = `SELECT user_id FROM coupon_user WHERE coupon_id = $1`
	couponProductIDsSQL = `SELECT product_id FROM coupon_product WHERE coupon_id = $1`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by code (case-insensitive) with its
// eligibility relations loaded. Returns coupon.ErrNotFound when no such
// coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.getOne(ctx, getCouponByCodeSQL, code)
}

// GetByID loads a coupon by id with its eligibility relations.
func (r *CouponRepository) GetByID(ctx context.Context, id string) (*coupon.Coupon, error) {
	return r.getOne(ctx, getCouponByIDSQL, id)
}

func (r *CouponRepository) getOne(ctx context.Context, sql, arg string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("querying coupon: %w", err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("scanning coupon: %w", err)
	}

	if err := r.loadRelations(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// List returns a page of coupons (without relations) and the total count.
func (r *CouponRepository) List(ctx context.Context, limit, offset int) ([]coupon.Coupon, int, error) {
	rows, err := r.pool.Query(ctx, listCouponsSQL, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing coupons: %w", err)
	}

	coupons, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, 0, fmt.Errorf("scanning coupons: %w", err)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countCouponsSQL).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting coupons: %w", err)
	}
	return coupons, total, nil
}

// Create inserts the coupon and syncs its eligibility relations in one
// transaction. The scope is derived here, once, from the relation sets.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	c.Scope = coupon.DeriveScope(len(c.UserIDs) > 0, len(c.ProductIDs) > 0)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, insertCouponSQL,
		c.ID, c.Code, c.Type, c.Discount, c.Quantity, c.Recursive, c.Scope,
		c.ValidFrom, c.ValidUntil,
	)
	if err != nil {
		return fmt.Errorf("inserting coupon %q: %w", c.Code, err)
	}

	if err := syncCouponRelations(ctx, tx, c); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Update rewrites the coupon row and its relations in one transaction,
// re-deriving the scope from the new relation sets.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	c.Scope = coupon.DeriveScope(len(c.UserIDs) > 0, len(c.ProductIDs) > 0)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, updateCouponSQL,
		c.ID, c.Code, c.Type, c.Discount, c.Quantity, c.Recursive, c.Scope,
		c.ValidFrom, c.ValidUntil,
	)
	if err != nil {
		return fmt.Errorf("updating coupon %q: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM coupon_user WHERE coupon_id = $1`, c.ID); err != nil {
		return fmt.Errorf("clearing coupon users: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM coupon_product WHERE coupon_id = $1`, c.ID); err != nil {
		return fmt.Errorf("clearing coupon products: %w", err)
	}

	if err := syncCouponRelations(ctx, tx, c); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Delete removes the coupon together with its relations and redemption
// history. Relations are detached explicitly so the redemption rows do not
// block the delete.
func (r *CouponRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM coupon_order WHERE coupon_id = $1`, id); err != nil {
		return fmt.Errorf("detaching coupon redemptions: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM coupons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting coupon %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *CouponRepository) loadRelations(ctx context.Context, c *coupon.Coupon) error {
	rows, err := r.pool.Query(ctx, couponUserIDsSQL, c.ID)
	if err != nil {
		return fmt.Errorf("loading coupon users: %w", err)
	}
	c.UserIDs, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("scanning coupon users: %w", err)
	}

	rows, err = r.pool.Query(ctx, couponProductIDsSQL, c.ID)
	if err != nil {
		return fmt.Errorf("loading coupon products: %w", err)
	}
	c.ProductIDs, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("scanning coupon products: %w", err)
	}
	return nil
}

func syncCouponRelations(ctx context.Context, tx pgx.Tx, c *coupon.Coupon) error {
	for _, userID := range c.UserIDs {
		_, err := tx.Exec(ctx,
			`INSERT INTO coupon_user (coupon_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			c.ID, userID,
		)
		if err != nil {
			return fmt.Errorf("linking coupon user %q: %w", userID, err)
		}
	}
	for _, productID := range c.ProductIDs {
		_, err := tx.Exec(ctx,
			`INSERT INTO coupon_product (coupon_id, product_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			c.ID, productID,
		)
		if err != nil {
			return fmt.Errorf("linking coupon product %q: %w", productID, err)
		}
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c          coupon.Coupon
		typ        string
		scope      string
		discount   decimal.Decimal
		validFrom  *time.Time
		validUntil *time.Time
	)
	err := row.Scan(
		&c.ID, &c.Code, &typ, &discount, &c.Quantity, &c.Recursive, &scope,
		&validFrom, &validUntil, &c.CreatedAt,
	)
	c.Type = coupon.Type(typ)
	c.Scope = coupon.Scope(scope)
	c.Discount = discount
	c.ValidFrom = validFrom
	c.ValidUntil = validUntil
	return c, err
}
