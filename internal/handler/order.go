package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/storefront-go/storefront/internal/domain/auth"
	"github.com/storefront-go/storefront/internal/domain/coupon"
	"github.com/storefront-go/storefront/internal/domain/discount"
	"github.com/storefront-go/storefront/internal/domain/order"
	"github.com/storefront-go/storefront/internal/domain/user"
	"github.com/storefront-go/storefront/internal/notify"
)

type orderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type createOrderRequest struct {
	// UserID may only be set by admin keys; client keys order for themselves.
	UserID string             `json:"user_id,omitempty"`
	Status string             `json:"status,omitempty"`
	Items  []orderItemRequest `json:"items"`
}

type applyDiscountRequest struct {
	Code string `json:"code"`
}

type removeDiscountRequest struct {
	DiscountID string `json:"discount_id"`
}

// applyDiscountResponse pairs the refreshed order with the apply outcome.
type applyDiscountResponse struct {
	Order orderView `json:"order"`
	Info  infoView  `json:"info"`
}

type infoView struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// ListOrders returns a page of orders, optionally filtered by number.
// Client keys only see their own orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	p := parsePagination(r)
	f := order.ListFilter{
		Number: r.URL.Query().Get("number"),
		Limit:  p.Limit,
		Offset: p.Offset,
	}
	if key, ok := KeyFromContext(r.Context()); ok && !key.HasScope(auth.ScopeAdmin) {
		f.UserID = key.UserID
	}

	orders, total, err := h.orders.List(r.Context(), f)
	if err != nil {
		h.lg.Error("list orders", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	views := make([]orderView, len(orders))
	for i := range orders {
		views[i] = toOrderView(&orders[i], nil)
	}
	setTotalCount(w, total)
	respondJSON(w, http.StatusOK, views)
}

// GetOrder returns a single order with items, user, and discounts.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.loadOrder(r, chi.URLParam(r, "id"))
	if err != nil {
		h.respondOrderError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderView(o, h.lookupUser(r, o.UserID)))
}

// CreateOrder places a new order from line items, pricing them from the
// catalogue, and broadcasts an order.created event after commit.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Items) == 0 {
		respondError(w, http.StatusBadRequest, "items required")
		return
	}

	key, _ := KeyFromContext(r.Context())
	userID := ""
	if key != nil {
		userID = key.UserID
	}
	if req.UserID != "" && key != nil && key.HasScope(auth.ScopeAdmin) {
		userID = req.UserID
	}
	if userID == "" {
		respondError(w, http.StatusBadRequest, "user required")
		return
	}

	items, err := h.priceItems(r, req.Items)
	if err != nil {
		h.respondItemError(w, err)
		return
	}

	status := order.StatusPending
	if req.Status != "" {
		if !order.ValidStatus(order.Status(req.Status)) {
			respondError(w, http.StatusBadRequest, "status must be one of pending, paid, shipped, finished, cancelled")
			return
		}
		status = order.Status(req.Status)
	}

	o := &order.Order{
		ID:     uuid.New().String(),
		UserID: userID,
		Status: status,
		Items:  items,
	}
	o.Recalculate()

	if err := h.orders.Create(r.Context(), o); err != nil {
		h.lg.Error("create order", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "could not create order")
		return
	}

	h.events.Publish(notify.OrderCreated(o))
	respondJSON(w, http.StatusCreated, toOrderView(o, h.lookupUser(r, o.UserID)))
}

// UpdateOrder replaces an order's line items and status (admin only).
func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.orders.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondOrderError(w, err)
		return
	}

	if req.UserID != "" {
		o.UserID = req.UserID
	}
	if req.Status != "" {
		if !order.ValidStatus(order.Status(req.Status)) {
			respondError(w, http.StatusBadRequest, "status must be one of pending, paid, shipped, finished, cancelled")
			return
		}
		o.Status = order.Status(req.Status)
	}
	if len(req.Items) > 0 {
		items, err := h.priceItems(r, req.Items)
		if err != nil {
			h.respondItemError(w, err)
			return
		}
		o.Items = items
	}
	o.Recalculate()

	if err := h.orders.Update(r.Context(), o); err != nil {
		h.respondOrderError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderView(o, h.lookupUser(r, o.UserID)))
}

// DeleteOrder removes an order and its discounts, restoring coupon
// quantities (admin only).
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondOrderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApplyDiscount applies a coupon (looked up by code, case-insensitively) to
// an order. Ineligibility is reported in the info envelope, not as an HTTP
// error; the order is always returned.
func (h *Handler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	var req applyDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	code := coupon.NormalizeCode(req.Code)
	if code == "" {
		respondError(w, http.StatusBadRequest, "code required")
		return
	}

	c, err := h.coupons.FindByCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			respondError(w, http.StatusNotFound, "coupon not found")
			return
		}
		h.lg.Error("find coupon", zap.String("code", code), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	o, err := h.loadOrder(r, chi.URLParam(r, "id"))
	if err != nil {
		h.respondOrderError(w, err)
		return
	}

	_, result, err := h.engine.Apply(r.Context(), o, c)
	if err != nil {
		h.lg.Error("apply discount",
			zap.String("order_id", o.ID),
			zap.String("coupon", c.Code),
			zap.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "could not apply the discount")
		return
	}

	// Reload so the response reflects the recomputed total and discount set.
	fresh, err := h.orders.GetByID(r.Context(), o.ID)
	if err != nil {
		h.lg.Error("reload order", zap.String("order_id", o.ID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	view := toOrderView(fresh, h.lookupUser(r, fresh.UserID))
	view.Coupons = h.lookupCoupons(r, fresh.Discounts)
	respondJSON(w, http.StatusOK, applyDiscountResponse{
		Order: view,
		Info:  infoView{Message: result.Message, Success: result.Success},
	})
}

// RemoveDiscount deletes a discount from an order, restoring one unit of the
// coupon's remaining quantity. Responds 204 on success.
func (h *Handler) RemoveDiscount(w http.ResponseWriter, r *http.Request) {
	var req removeDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DiscountID == "" {
		respondError(w, http.StatusBadRequest, "discount_id required")
		return
	}

	o, err := h.loadOrder(r, chi.URLParam(r, "id"))
	if err != nil {
		h.respondOrderError(w, err)
		return
	}

	if !orderHasDiscount(o, req.DiscountID) {
		respondError(w, http.StatusNotFound, "discount not found")
		return
	}

	if err := h.engine.Remove(r.Context(), req.DiscountID); err != nil {
		if errors.Is(err, discount.ErrNotFound) {
			respondError(w, http.StatusNotFound, "discount not found")
			return
		}
		h.lg.Error("remove discount", zap.String("discount_id", req.DiscountID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "could not remove the discount")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// loadOrder fetches the order, restricting client keys to their own orders.
func (h *Handler) loadOrder(r *http.Request, id string) (*order.Order, error) {
	if key, ok := KeyFromContext(r.Context()); ok && !key.HasScope(auth.ScopeAdmin) {
		return h.orders.GetForUser(r.Context(), id, key.UserID)
	}
	return h.orders.GetByID(r.Context(), id)
}

// priceItems validates quantities and prices line items from the catalogue
// in a single batch fetch.
func (h *Handler) priceItems(r *http.Request, reqs []orderItemRequest) ([]order.Item, error) {
	ids := make([]string, len(reqs))
	for i, it := range reqs {
		if it.Quantity <= 0 {
			return nil, &invalidQuantityError{ProductID: it.ProductID}
		}
		ids[i] = it.ProductID
	}

	fetched, err := h.products.GetByIDs(r.Context(), ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	prices := make(map[string]decimal.Decimal, len(fetched))
	for _, p := range fetched {
		prices[p.ID] = p.Price
	}

	items := make([]order.Item, len(reqs))
	for i, it := range reqs {
		price, ok := prices[it.ProductID]
		if !ok {
			return nil, &productNotFoundError{ProductID: it.ProductID}
		}
		items[i] = order.Item{
			ID:        uuid.New().String(),
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: price,
		}
	}
	return items, nil
}

func (h *Handler) lookupUser(r *http.Request, userID string) *user.User {
	u, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			h.lg.Warn("lookup user", zap.String("user_id", userID), zap.Error(err))
		}
		return nil
	}
	return u
}

func (h *Handler) lookupCoupons(r *http.Request, discounts []order.Discount) []couponView {
	views := make([]couponView, 0, len(discounts))
	for _, d := range discounts {
		c, err := h.coupons.GetByID(r.Context(), d.CouponID)
		if err != nil {
			h.lg.Warn("lookup coupon", zap.String("coupon_id", d.CouponID), zap.Error(err))
			continue
		}
		views = append(views, toCouponView(c))
	}
	return views
}

func (h *Handler) respondOrderError(w http.ResponseWriter, err error) {
	if errors.Is(err, order.ErrNotFound) {
		respondError(w, http.StatusNotFound, "order not found")
		return
	}
	h.lg.Error("order storage", zap.Error(err))
	respondError(w, http.StatusInternalServerError, "internal error")
}

func (h *Handler) respondItemError(w http.ResponseWriter, err error) {
	var (
		iqErr  *invalidQuantityError
		pnfErr *productNotFoundError
	)
	switch {
	case errors.As(err, &iqErr):
		respondError(w, http.StatusUnprocessableEntity, iqErr.Error())
	case errors.As(err, &pnfErr):
		respondError(w, http.StatusUnprocessableEntity, pnfErr.Error())
	default:
		h.lg.Error("price items", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func orderHasDiscount(o *order.Order, discountID string) bool {
	for _, d := range o.Discounts {
		if d.ID == discountID {
			return true
		}
	}
	return false
}
