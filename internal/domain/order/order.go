package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for order lookups.
var (
	ErrNotFound = errors.New("order not found")
)

// Status tracks an order through its lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusFinished  Status = "finished"
	StatusCancelled Status = "cancelled"
)

// ValidStatus reports whether s is one of the known order statuses.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusPaid, StatusShipped, StatusFinished, StatusCancelled:
		return true
	}
	return false
}

// Item is a single order line: a product at a fixed unit price.
// Subtotal is always Quantity * UnitPrice.
type Item struct {
	ID        string
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
}

// Discount is one applied coupon redemption on an order. The amount is
// computed once, at creation time, and never recomputed afterwards.
type Discount struct {
	ID       string
	OrderID  string
	CouponID string
	Amount   decimal.Decimal
}

// Order is a customer order with its line items and applied discounts.
//
// Invariant: Total == Subtotal - sum(Discounts[i].Amount), floored at zero,
// recomputed whenever the discount set changes.
type Order struct {
	ID        string
	UserID    string
	Status    Status
	Items     []Item
	Discounts []Discount
	Subtotal  decimal.Decimal
	Total     decimal.Decimal
	CreatedAt time.Time
}

// QtyItems returns the total quantity across all line items.
func (o *Order) QtyItems() int {
	total := 0
	for _, it := range o.Items {
		total += it.Quantity
	}
	return total
}

// Recalculate recomputes item subtotals, the order subtotal, and the total
// from the current items and discounts.
func (o *Order) Recalculate() {
	subtotal := decimal.Zero
	for i := range o.Items {
		qty := decimal.NewFromInt(int64(o.Items[i].Quantity))
		o.Items[i].Subtotal = o.Items[i].UnitPrice.Mul(qty)
		subtotal = subtotal.Add(o.Items[i].Subtotal)
	}
	o.Subtotal = subtotal

	discounted := decimal.Zero
	for _, d := range o.Discounts {
		discounted = discounted.Add(d.Amount)
	}

	total := subtotal.Sub(discounted)
	if total.IsNegative() {
		total = decimal.Zero
	}
	o.Total = total
}

// ListFilter narrows and pages order listings.
type ListFilter struct {
	// Number, when non-empty, matches orders whose id starts with it.
	// Prefix matching lets a truncated order number locate the full record.
	Number string
	// UserID restricts results to a single client when non-empty.
	UserID string
	Limit  int
	Offset int
}

// Repository defines persistence operations for orders. Delete cascades to
// the order's items and discounts, restoring each discounted coupon's
// remaining quantity in the same transaction.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Order, error)
	// GetForUser loads an order only if it belongs to the given user.
	GetForUser(ctx context.Context, id, userID string) (*Order, error)
	List(ctx context.Context, f ListFilter) ([]Order, int, error)
	Create(ctx context.Context, o *Order) error
	Update(ctx context.Context, o *Order) error
	Delete(ctx context.Context, id string) error
}
