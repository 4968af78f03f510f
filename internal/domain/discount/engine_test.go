package discount

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront-go/storefront/internal/domain/coupon"
	"github.com/storefront-go/storefront/internal/domain/order"
)

// --- Mock implementations ---

// mockStore keeps applied discounts in memory and mirrors the transactional
// store's quantity bookkeeping.
type mockStore struct {
	discounts map[string]*order.Discount // by discount id
	byPair    map[string]*order.Discount // by orderID+couponID
	quantity  map[string]int             // remaining units by coupon id

	countErr error
	applyErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		discounts: make(map[string]*order.Discount),
		byPair:    make(map[string]*order.Discount),
		quantity:  make(map[string]int),
	}
}

func (m *mockStore) CountByOrder(_ context.Context, orderID string) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	count := 0
	for _, d := range m.discounts {
		if d.OrderID == orderID {
			count++
		}
	}
	return count, nil
}

func (m *mockStore) Apply(_ context.Context, d *order.Discount) (*order.Discount, error) {
	if m.applyErr != nil {
		return nil, m.applyErr
	}
	if existing, ok := m.byPair[d.OrderID+"/"+d.CouponID]; ok {
		return existing, nil
	}
	if m.quantity[d.CouponID] <= 0 {
		return nil, ErrCouponExhausted
	}
	m.quantity[d.CouponID]--
	m.discounts[d.ID] = d
	m.byPair[d.OrderID+"/"+d.CouponID] = d
	return d, nil
}

func (m *mockStore) Remove(_ context.Context, discountID string) error {
	d, ok := m.discounts[discountID]
	if !ok {
		return ErrNotFound
	}
	delete(m.discounts, discountID)
	delete(m.byPair, d.OrderID+"/"+d.CouponID)
	m.quantity[d.CouponID]++
	return nil
}

// --- Helpers ---

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newTestOrder(items ...order.Item) *order.Order {
	o := &order.Order{
		ID:     "order-1",
		UserID: "user-1",
		Status: order.StatusPending,
		Items:  items,
	}
	o.Recalculate()
	return o
}

func item(productID string, qty int, unitPrice string) order.Item {
	return order.Item{
		ID:        "item-" + productID,
		ProductID: productID,
		Quantity:  qty,
		UnitPrice: d(unitPrice),
	}
}

func newTestCoupon(typ coupon.Type, discount string, quantity int) *coupon.Coupon {
	return &coupon.Coupon{
		ID:       "coupon-1",
		Code:     "TESTCODE",
		Type:     typ,
		Discount: d(discount),
		Quantity: quantity,
		Scope:    coupon.ScopeAll,
	}
}

func newEngineWithStore(store *mockStore) *Engine {
	e := NewEngine(store)
	e.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return e
}

// --- Eligibility ---

func TestCanApply_ZeroQuantity(t *testing.T) {
	e := newEngineWithStore(newMockStore())
	o := newTestOrder(item("p1", 1, "10"))
	c := newTestCoupon(coupon.TypePercent, "10", 0)

	assert.False(t, e.CanApply(o, c))
}

func TestCanApply_ValidityWindow(t *testing.T) {
	e := newEngineWithStore(newMockStore())
	o := newTestOrder(item("p1", 1, "10"))

	past := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	future := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		from  *time.Time
		until *time.Time
		want  bool
	}{
		{"open window", nil, nil, true},
		{"inside window", &past, &future, true},
		{"not yet valid", &future, nil, false},
		{"expired", nil, &past, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCoupon(coupon.TypePercent, "10", 5)
			c.ValidFrom = tt.from
			c.ValidUntil = tt.until
			assert.Equal(t, tt.want, e.CanApply(o, c))
		})
	}
}

func TestCanApply_ProductScope(t *testing.T) {
	e := newEngineWithStore(newMockStore())

	c := newTestCoupon(coupon.TypePercent, "10", 5)
	c.Scope = coupon.ScopeProduct
	c.ProductIDs = []string{"p1"}

	withProduct := newTestOrder(item("p1", 1, "10"), item("p2", 1, "10"))
	withoutProduct := newTestOrder(item("p2", 1, "10"))

	assert.True(t, e.CanApply(withProduct, c))
	assert.False(t, e.CanApply(withoutProduct, c))
}

func TestCanApply_ClientScope(t *testing.T) {
	e := newEngineWithStore(newMockStore())

	c := newTestCoupon(coupon.TypePercent, "10", 5)
	c.Scope = coupon.ScopeClient
	c.UserIDs = []string{"user-1"}

	mine := newTestOrder(item("p1", 1, "10"))
	theirs := newTestOrder(item("p1", 1, "10"))
	theirs.UserID = "user-2"

	assert.True(t, e.CanApply(mine, c))
	assert.False(t, e.CanApply(theirs, c))
}

func TestCanApply_ProductClientScope(t *testing.T) {
	e := newEngineWithStore(newMockStore())

	c := newTestCoupon(coupon.TypePercent, "10", 5)
	c.Scope = coupon.ScopeProductClient
	c.UserIDs = []string{"user-1"}
	c.ProductIDs = []string{"p1"}

	both := newTestOrder(item("p1", 1, "10"))
	wrongProduct := newTestOrder(item("p2", 1, "10"))
	wrongUser := newTestOrder(item("p1", 1, "10"))
	wrongUser.UserID = "user-2"

	assert.True(t, e.CanApply(both, c))
	assert.False(t, e.CanApply(wrongProduct, c))
	assert.False(t, e.CanApply(wrongUser, c))
}

func TestCanStack(t *testing.T) {
	e := newEngineWithStore(newMockStore())

	plain := newTestCoupon(coupon.TypePercent, "10", 5)
	recursive := newTestCoupon(coupon.TypePercent, "10", 5)
	recursive.Recursive = true

	assert.True(t, e.CanStack(0, plain))
	assert.False(t, e.CanStack(1, plain))
	assert.True(t, e.CanStack(0, recursive))
	assert.True(t, e.CanStack(3, recursive))
}

// --- Computation ---

func TestCompute(t *testing.T) {
	tests := []struct {
		name   string
		order  *order.Order
		coupon func() *coupon.Coupon
		want   string
	}{
		{
			name:  "percent on subtotal",
			order: newTestOrder(item("p1", 2, "100")),
			coupon: func() *coupon.Coupon {
				return newTestCoupon(coupon.TypePercent, "10", 5)
			},
			want: "20",
		},
		{
			name:  "currency flat on whole order",
			order: newTestOrder(item("p1", 3, "100")),
			coupon: func() *coupon.Coupon {
				return newTestCoupon(coupon.TypeCurrency, "5", 5)
			},
			want: "5",
		},
		{
			name:  "free covers full subtotal",
			order: newTestOrder(item("p1", 1, "150")),
			coupon: func() *coupon.Coupon {
				return newTestCoupon(coupon.TypeFree, "0", 5)
			},
			want: "150",
		},
		{
			name:  "percent on eligible items only",
			order: newTestOrder(item("p1", 1, "100"), item("p2", 1, "50")),
			coupon: func() *coupon.Coupon {
				c := newTestCoupon(coupon.TypePercent, "10", 5)
				c.Scope = coupon.ScopeProduct
				c.ProductIDs = []string{"p1"}
				return c
			},
			want: "10",
		},
		{
			name:  "currency per unit of eligible items",
			order: newTestOrder(item("p1", 3, "100"), item("p2", 2, "50")),
			coupon: func() *coupon.Coupon {
				c := newTestCoupon(coupon.TypeCurrency, "5", 5)
				c.Scope = coupon.ScopeProduct
				c.ProductIDs = []string{"p1"}
				return c
			},
			want: "15",
		},
		{
			name:  "free covers eligible item subtotals",
			order: newTestOrder(item("p1", 2, "40"), item("p2", 1, "100")),
			coupon: func() *coupon.Coupon {
				c := newTestCoupon(coupon.TypeFree, "0", 5)
				c.Scope = coupon.ScopeProduct
				c.ProductIDs = []string{"p1"}
				return c
			},
			want: "80",
		},
		{
			name:  "product_client computes per item like product",
			order: newTestOrder(item("p1", 2, "100")),
			coupon: func() *coupon.Coupon {
				c := newTestCoupon(coupon.TypePercent, "10", 5)
				c.Scope = coupon.ScopeProductClient
				c.UserIDs = []string{"user-1"}
				c.ProductIDs = []string{"p1"}
				return c
			},
			want: "20",
		},
		{
			name:  "client scope computes on subtotal",
			order: newTestOrder(item("p1", 2, "100")),
			coupon: func() *coupon.Coupon {
				c := newTestCoupon(coupon.TypePercent, "10", 5)
				c.Scope = coupon.ScopeClient
				c.UserIDs = []string{"user-1"}
				return c
			},
			want: "20",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(tt.order, tt.coupon())
			assert.True(t, d(tt.want).Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

// --- Apply / Remove ---

func TestApply_Success(t *testing.T) {
	store := newMockStore()
	store.quantity["coupon-1"] = 3
	e := newEngineWithStore(store)

	o := newTestOrder(item("p1", 2, "100"))
	c := newTestCoupon(coupon.TypePercent, "10", 3)

	applied, res, err := e.Apply(context.Background(), o, c)
	require.NoError(t, err)
	require.NotNil(t, applied)

	assert.True(t, res.Success)
	assert.Equal(t, "coupon applied successfully", res.Message)
	assert.True(t, d("20").Equal(applied.Amount))
	assert.Equal(t, 2, store.quantity["coupon-1"])
}

func TestApply_RejectedNotApplicable(t *testing.T) {
	store := newMockStore()
	e := newEngineWithStore(store)

	o := newTestOrder(item("p1", 1, "10"))
	c := newTestCoupon(coupon.TypePercent, "10", 0)

	applied, res, err := e.Apply(context.Background(), o, c)
	require.NoError(t, err)

	assert.Nil(t, applied)
	assert.False(t, res.Success)
	assert.Equal(t, "coupon cannot be applied to this order", res.Message)
	assert.Empty(t, store.discounts)
}

func TestApply_RejectedSecondNonRecursive(t *testing.T) {
	store := newMockStore()
	store.quantity["coupon-1"] = 5
	store.quantity["coupon-2"] = 5
	e := newEngineWithStore(store)

	o := newTestOrder(item("p1", 1, "100"))

	first := newTestCoupon(coupon.TypePercent, "10", 5)
	_, res, err := e.Apply(context.Background(), o, first)
	require.NoError(t, err)
	require.True(t, res.Success)

	second := newTestCoupon(coupon.TypePercent, "20", 5)
	second.ID = "coupon-2"
	second.Code = "OTHERCODE"

	applied, res, err := e.Apply(context.Background(), o, second)
	require.NoError(t, err)

	assert.Nil(t, applied)
	assert.False(t, res.Success)
	assert.Len(t, store.discounts, 1)
}

func TestApply_RecursiveStacks(t *testing.T) {
	store := newMockStore()
	store.quantity["coupon-1"] = 5
	store.quantity["coupon-2"] = 5
	e := newEngineWithStore(store)

	o := newTestOrder(item("p1", 1, "100"))

	first := newTestCoupon(coupon.TypePercent, "10", 5)
	_, res, err := e.Apply(context.Background(), o, first)
	require.NoError(t, err)
	require.True(t, res.Success)

	second := newTestCoupon(coupon.TypeCurrency, "5", 5)
	second.ID = "coupon-2"
	second.Code = "STACKME"
	second.Recursive = true

	applied, res, err := e.Apply(context.Background(), o, second)
	require.NoError(t, err)

	require.NotNil(t, applied)
	assert.True(t, res.Success)
	assert.Len(t, store.discounts, 2)
}

func TestApply_IdempotentPerPair(t *testing.T) {
	store := newMockStore()
	store.quantity["coupon-1"] = 5
	e := newEngineWithStore(store)

	o := newTestOrder(item("p1", 1, "100"))
	c := newTestCoupon(coupon.TypePercent, "10", 5)
	c.Recursive = true

	first, res, err := e.Apply(context.Background(), o, c)
	require.NoError(t, err)
	require.True(t, res.Success)

	// Pretend the loaded order now carries the discount.
	o.Discounts = []order.Discount{*first}

	second, res, err := e.Apply(context.Background(), o, c)
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 4, store.quantity["coupon-1"], "repeated apply must not consume another unit")
}

func TestApply_Exhausted(t *testing.T) {
	store := newMockStore()
	store.quantity["coupon-1"] = 0
	e := newEngineWithStore(store)

	o := newTestOrder(item("p1", 1, "100"))
	// Engine-side quantity check passes; the store detects exhaustion the way
	// a concurrent redemption of the last unit would.
	c := newTestCoupon(coupon.TypePercent, "10", 1)

	applied, res, err := e.Apply(context.Background(), o, c)
	require.NoError(t, err)

	assert.Nil(t, applied)
	assert.False(t, res.Success)
	assert.Equal(t, "coupon is no longer available", res.Message)
}

func TestApply_StoreError(t *testing.T) {
	store := newMockStore()
	store.countErr = errors.New("db down")
	e := newEngineWithStore(store)

	o := newTestOrder(item("p1", 1, "100"))
	c := newTestCoupon(coupon.TypePercent, "10", 5)

	_, _, err := e.Apply(context.Background(), o, c)
	require.Error(t, err)
}

func TestRemove_RestoresQuantity(t *testing.T) {
	store := newMockStore()
	store.quantity["coupon-1"] = 5
	e := newEngineWithStore(store)

	o := newTestOrder(item("p1", 1, "100"))
	c := newTestCoupon(coupon.TypePercent, "10", 5)

	applied, res, err := e.Apply(context.Background(), o, c)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, 4, store.quantity["coupon-1"])

	require.NoError(t, e.Remove(context.Background(), applied.ID))
	assert.Equal(t, 5, store.quantity["coupon-1"], "remove must restore the redeemed unit")
	assert.Empty(t, store.discounts)
}

func TestRemove_NotFound(t *testing.T) {
	e := newEngineWithStore(newMockStore())

	err := e.Remove(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}
