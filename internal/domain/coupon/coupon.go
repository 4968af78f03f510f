package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a coupon code or id does not resolve.
var ErrNotFound = errors.New("coupon not found")

// Type enumerates the supported discount strategies.
type Type string

const (
	// TypePercent discounts a percentage of the eligible subtotal.
	TypePercent Type = "percent"
	// TypeCurrency discounts a flat monetary amount.
	TypeCurrency Type = "currency"
	// TypeFree makes the eligible items (or the whole order) free.
	TypeFree Type = "free"
)

// Scope restricts which orders a coupon may be applied to. It is derived
// once, at coupon create/update time, from the eligible-user and
// eligible-product relations; it is never inferred ad hoc elsewhere.
type Scope string

const (
	// ScopeAll places no restriction: any client, any order.
	ScopeAll Scope = "all"
	// ScopeClient restricts the coupon to specific users.
	ScopeClient Scope = "client"
	// ScopeProduct restricts the coupon to orders containing specific products.
	ScopeProduct Scope = "product"
	// ScopeProductClient restricts to specific users buying specific products.
	ScopeProductClient Scope = "product_client"
)

// DeriveScope computes the coupon scope from whether the eligible-user and
// eligible-product relations are non-empty.
func DeriveScope(hasUsers, hasProducts bool) Scope {
	switch {
	case hasUsers && hasProducts:
		return ScopeProductClient
	case hasProducts:
		return ScopeProduct
	case hasUsers:
		return ScopeClient
	default:
		return ScopeAll
	}
}

// IncludesProduct reports whether the scope restricts eligibility by product.
func (s Scope) IncludesProduct() bool {
	return s == ScopeProduct || s == ScopeProductClient
}

// IncludesClient reports whether the scope restricts eligibility by user.
func (s Scope) IncludesClient() bool {
	return s == ScopeClient || s == ScopeProductClient
}

// ValidType reports whether t is one of the known discount types.
func ValidType(t Type) bool {
	switch t {
	case TypePercent, TypeCurrency, TypeFree:
		return true
	}
	return false
}

// NormalizeCode canonicalizes a coupon code for storage and lookup.
// Codes are compared case-insensitively and stored uppercased.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Coupon is a redeemable discount definition. Quantity is the number of
// remaining redemptions and never goes negative.
type Coupon struct {
	ID         string
	Code       string
	Type       Type
	Discount   decimal.Decimal
	Quantity   int
	Recursive  bool
	Scope      Scope
	ValidFrom  *time.Time
	ValidUntil *time.Time

	// UserIDs and ProductIDs hold the eligibility relations. They are only
	// meaningful when the scope includes the corresponding dimension.
	UserIDs    []string
	ProductIDs []string

	CreatedAt time.Time
}

// EligibleUser reports whether the given user is in the coupon's
// eligible-user set.
func (c *Coupon) EligibleUser(userID string) bool {
	for _, id := range c.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// EligibleProduct reports whether the given product is in the coupon's
// eligible-product set.
func (c *Coupon) EligibleProduct(productID string) bool {
	for _, id := range c.ProductIDs {
		if id == productID {
			return true
		}
	}
	return false
}

// ValidAt reports whether t falls inside the coupon's validity window.
// Unset bounds are open.
func (c *Coupon) ValidAt(t time.Time) bool {
	if c.ValidFrom != nil && t.Before(*c.ValidFrom) {
		return false
	}
	if c.ValidUntil != nil && t.After(*c.ValidUntil) {
		return false
	}
	return true
}

// Repository defines persistence operations for coupons. Create and Update
// sync the eligibility relations and persist the derived scope in a single
// transaction.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	GetByID(ctx context.Context, id string) (*Coupon, error)
	List(ctx context.Context, limit, offset int) ([]Coupon, int, error)
	Create(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) error
	Delete(ctx context.Context, id string) error
}
