package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/storefront-go/storefront/internal/domain/coupon"
)

type couponRequest struct {
	Code       string     `json:"code"`
	Type       string     `json:"type"`
	Discount   float64    `json:"discount"`
	Quantity   int        `json:"quantity"`
	Recursive  bool       `json:"recursive"`
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
	// Users and Products are the eligibility relations; the coupon scope is
	// derived from their non-emptiness, never set directly.
	Users    []string `json:"users,omitempty"`
	Products []string `json:"products,omitempty"`
}

func (req *couponRequest) validate() string {
	if coupon.NormalizeCode(req.Code) == "" {
		return "code required"
	}
	if !coupon.ValidType(coupon.Type(req.Type)) {
		return "type must be one of percent, currency, free"
	}
	if req.Discount < 0 {
		return "discount must not be negative"
	}
	if req.Quantity < 0 {
		return "quantity must not be negative"
	}
	return ""
}

func (req *couponRequest) apply(c *coupon.Coupon) {
	c.Code = coupon.NormalizeCode(req.Code)
	c.Type = coupon.Type(req.Type)
	c.Discount = decimal.NewFromFloat(req.Discount)
	c.Quantity = req.Quantity
	c.Recursive = req.Recursive
	c.ValidFrom = req.ValidFrom
	c.ValidUntil = req.ValidUntil
	c.UserIDs = req.Users
	c.ProductIDs = req.Products
}

// ListCoupons returns a page of coupon definitions.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	p := parsePagination(r)
	coupons, total, err := h.coupons.List(r.Context(), p.Limit, p.Offset)
	if err != nil {
		h.lg.Error("list coupons", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	views := make([]couponView, len(coupons))
	for i := range coupons {
		views[i] = toCouponView(&coupons[i])
	}
	setTotalCount(w, total)
	respondJSON(w, http.StatusOK, views)
}

// GetCoupon returns a coupon with its eligibility relations.
func (h *Handler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.coupons.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondCouponError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toCouponView(c))
}

// CreateCoupon stores a new coupon, syncing its user/product relations and
// deriving the scope in one transaction.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	c := &coupon.Coupon{ID: uuid.New().String()}
	req.apply(c)

	if err := h.coupons.Create(r.Context(), c); err != nil {
		h.lg.Error("create coupon", zap.String("code", c.Code), zap.Error(err))
		respondError(w, http.StatusBadRequest, "could not create coupon")
		return
	}
	respondJSON(w, http.StatusCreated, toCouponView(c))
}

// UpdateCoupon rewrites a coupon and its relations, re-deriving the scope.
func (h *Handler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	c, err := h.coupons.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondCouponError(w, err)
		return
	}
	req.apply(c)

	if err := h.coupons.Update(r.Context(), c); err != nil {
		h.respondCouponError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toCouponView(c))
}

// DeleteCoupon removes a coupon and detaches its relations.
func (h *Handler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.coupons.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondCouponError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondCouponError(w http.ResponseWriter, err error) {
	if errors.Is(err, coupon.ErrNotFound) {
		respondError(w, http.StatusNotFound, "coupon not found")
		return
	}
	h.lg.Error("coupon storage", zap.Error(err))
	respondError(w, http.StatusInternalServerError, "internal error")
}
