// Package discount owns coupon applicability rules, discount amount
// computation, and coupon quantity bookkeeping.
package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/storefront-go/storefront/internal/domain/coupon"
	"github.com/storefront-go/storefront/internal/domain/order"
)

var (
	// ErrNotFound is returned when removing a discount that does not exist.
	ErrNotFound = errors.New("discount not found")
	// ErrCouponExhausted is returned by the store when the conditional
	// quantity decrement affects no rows, i.e. a concurrent redemption
	// consumed the last remaining unit.
	ErrCouponExhausted = errors.New("coupon exhausted")
)

var hundred = decimal.NewFromInt(100)

// Result is the caller-visible outcome of an apply attempt. Ineligibility is
// a normal, expected outcome, not an error.
type Result struct {
	Success bool
	Message string
}

// User-facing outcome messages.
const (
	msgApplied   = "coupon applied successfully"
	msgRejected  = "coupon cannot be applied to this order"
	msgExhausted = "coupon is no longer available"
)

// Store persists discounts transactionally. Apply and Remove each run as one
// atomic unit of work: the discount row change and the coupon quantity
// adjustment either both happen or neither does.
type Store interface {
	// CountByOrder returns the number of discounts already applied to an order.
	CountByOrder(ctx context.Context, orderID string) (int, error)
	// Apply inserts the discount and decrements the coupon quantity by one.
	// When a discount for the same (order, coupon) pair already exists, the
	// existing record is returned unchanged and no decrement happens.
	// Returns ErrCouponExhausted when the quantity has hit zero.
	Apply(ctx context.Context, d *order.Discount) (*order.Discount, error)
	// Remove deletes the discount and increments its coupon quantity by one.
	// Returns ErrNotFound when no such discount exists.
	Remove(ctx context.Context, discountID string) error
}

// Engine decides whether a coupon may be applied to an order, computes the
// discount amount, and drives the transactional store.
type Engine struct {
	store Store
	now   func() time.Time
}

// NewEngine creates an Engine backed by the given transactional store.
func NewEngine(store Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// CanApply reports whether the coupon is structurally eligible for the order,
// independent of how many discounts the order already carries. It does not
// mutate state.
func (e *Engine) CanApply(o *order.Order, c *coupon.Coupon) bool {
	if c.Quantity <= 0 {
		return false
	}
	if !c.ValidAt(e.now()) {
		return false
	}
	if c.Scope.IncludesProduct() && !orderHasEligibleProduct(o, c) {
		return false
	}
	if c.Scope.IncludesClient() && !c.EligibleUser(o.UserID) {
		return false
	}
	return true
}

// CanStack enforces the single-discount-unless-recursive rule: an order
// carries at most one non-recursive discount, while recursive coupons may
// stack arbitrarily.
func (e *Engine) CanStack(existingDiscounts int, c *coupon.Coupon) bool {
	return existingDiscounts < 1 || c.Recursive
}

// Apply attempts to redeem the coupon against the order. Failed eligibility
// or stacking checks, and a coupon exhausted by a concurrent redemption, are
// reported through the Result; only storage faults return an error. Applying
// the same (order, coupon) pair twice returns the existing discount without
// consuming another redemption.
func (e *Engine) Apply(ctx context.Context, o *order.Order, c *coupon.Coupon) (*order.Discount, Result, error) {
	count, err := e.store.CountByOrder(ctx, o.ID)
	if err != nil {
		return nil, Result{}, errors.Wrap(err, "count order discounts")
	}

	if !e.CanStack(count, c) || !e.CanApply(o, c) {
		return nil, Result{Message: msgRejected}, nil
	}

	d := &order.Discount{
		ID:       uuid.New().String(),
		OrderID:  o.ID,
		CouponID: c.ID,
		Amount:   Compute(o, c),
	}

	applied, err := e.store.Apply(ctx, d)
	if err != nil {
		if errors.Is(err, ErrCouponExhausted) {
			return nil, Result{Message: msgExhausted}, nil
		}
		return nil, Result{}, errors.Wrap(err, "apply discount")
	}

	return applied, Result{Success: true, Message: msgApplied}, nil
}

// Remove deletes a previously applied discount, restoring one unit of the
// coupon's remaining quantity. Returns ErrNotFound for unknown ids.
func (e *Engine) Remove(ctx context.Context, discountID string) error {
	if err := e.store.Remove(ctx, discountID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return errors.Wrap(err, "remove discount")
	}
	return nil
}

// Compute calculates the discount amount for the coupon against the order.
// Product-scoped coupons (including product_client) discount only the
// eligible line items; client and unrestricted coupons discount the order
// subtotal. The returned amount keeps full precision; callers round when
// surfacing it.
func Compute(o *order.Order, c *coupon.Coupon) decimal.Decimal {
	if c.Scope.IncludesProduct() {
		return computePerItem(o, c)
	}
	return computeOnSubtotal(o, c)
}

func computePerItem(o *order.Order, c *coupon.Coupon) decimal.Decimal {
	amount := decimal.Zero
	for _, item := range o.Items {
		if !c.EligibleProduct(item.ProductID) {
			continue
		}
		switch c.Type {
		case coupon.TypePercent:
			amount = amount.Add(item.Subtotal.Div(hundred).Mul(c.Discount))
		case coupon.TypeCurrency:
			qty := decimal.NewFromInt(int64(item.Quantity))
			amount = amount.Add(c.Discount.Mul(qty))
		case coupon.TypeFree:
			amount = amount.Add(item.Subtotal)
		}
	}
	return amount
}

func computeOnSubtotal(o *order.Order, c *coupon.Coupon) decimal.Decimal {
	switch c.Type {
	case coupon.TypePercent:
		return o.Subtotal.Div(hundred).Mul(c.Discount)
	case coupon.TypeCurrency:
		return c.Discount
	case coupon.TypeFree:
		return o.Subtotal
	}
	return decimal.Zero
}

func orderHasEligibleProduct(o *order.Order, c *coupon.Coupon) bool {
	for _, item := range o.Items {
		if c.EligibleProduct(item.ProductID) {
			return true
		}
	}
	return false
}
