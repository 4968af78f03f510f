package handler

import (
	"time"

	"github.com/storefront-go/storefront/internal/domain/coupon"
	"github.com/storefront-go/storefront/internal/domain/order"
	"github.com/storefront-go/storefront/internal/domain/product"
	"github.com/storefront-go/storefront/internal/domain/user"
)

// View types shape the JSON responses. Monetary values are surfaced rounded
// to 2 decimal places; storage keeps full precision.

type userView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type productView struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
	Image       string  `json:"image,omitempty"`
}

type itemView struct {
	ID        string  `json:"id"`
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Subtotal  float64 `json:"subtotal"`
}

type discountView struct {
	ID       string  `json:"id"`
	CouponID string  `json:"coupon_id"`
	Amount   float64 `json:"amount"`
}

type couponView struct {
	ID         string     `json:"id"`
	Code       string     `json:"code"`
	Type       string     `json:"type"`
	Discount   float64    `json:"discount"`
	Quantity   int        `json:"quantity"`
	Recursive  bool       `json:"recursive"`
	CanUseFor  string     `json:"can_use_for"`
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
	UserIDs    []string   `json:"users,omitempty"`
	ProductIDs []string   `json:"products,omitempty"`
}

type orderView struct {
	ID        string         `json:"id"`
	Status    string         `json:"status"`
	Subtotal  float64        `json:"subtotal"`
	Total     float64        `json:"total"`
	QtyItems  int            `json:"qty_items"`
	CreatedAt time.Time      `json:"created_at"`
	User      *userView      `json:"user,omitempty"`
	Items     []itemView     `json:"items"`
	Discounts []discountView `json:"discounts"`
	Coupons   []couponView   `json:"coupons,omitempty"`
}

func toUserView(u *user.User) *userView {
	if u == nil {
		return nil
	}
	return &userView{ID: u.ID, Name: u.Name, Email: u.Email}
}

func toProductView(p product.Product) productView {
	return productView{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.Round(2).InexactFloat64(),
		Image:       p.Image,
	}
}

func toCouponView(c *coupon.Coupon) couponView {
	return couponView{
		ID:         c.ID,
		Code:       c.Code,
		Type:       string(c.Type),
		Discount:   c.Discount.Round(2).InexactFloat64(),
		Quantity:   c.Quantity,
		Recursive:  c.Recursive,
		CanUseFor:  string(c.Scope),
		ValidFrom:  c.ValidFrom,
		ValidUntil: c.ValidUntil,
		UserIDs:    c.UserIDs,
		ProductIDs: c.ProductIDs,
	}
}

func toOrderView(o *order.Order, u *user.User) orderView {
	items := make([]itemView, len(o.Items))
	for i, it := range o.Items {
		items[i] = itemView{
			ID:        it.ID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.Round(2).InexactFloat64(),
			Subtotal:  it.Subtotal.Round(2).InexactFloat64(),
		}
	}

	discounts := make([]discountView, len(o.Discounts))
	for i, d := range o.Discounts {
		discounts[i] = discountView{
			ID:       d.ID,
			CouponID: d.CouponID,
			Amount:   d.Amount.Round(2).InexactFloat64(),
		}
	}

	return orderView{
		ID:        o.ID,
		Status:    string(o.Status),
		Subtotal:  o.Subtotal.Round(2).InexactFloat64(),
		Total:     o.Total.Round(2).InexactFloat64(),
		QtyItems:  o.QtyItems(),
		CreatedAt: o.CreatedAt,
		User:      toUserView(u),
		Items:     items,
		Discounts: discounts,
	}
}
