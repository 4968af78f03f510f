// Package handler exposes the storefront HTTP API.
package handler

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/storefront-go/storefront/internal/domain/coupon"
	"github.com/storefront-go/storefront/internal/domain/discount"
	"github.com/storefront-go/storefront/internal/domain/order"
	"github.com/storefront-go/storefront/internal/domain/product"
	"github.com/storefront-go/storefront/internal/domain/user"
	"github.com/storefront-go/storefront/internal/notify"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// Handler implements the HTTP API, delegating business logic to the domain
// repositories and the discount engine.
type Handler struct {
	orders   order.Repository
	coupons  coupon.Repository
	products product.Repository
	users    user.Repository
	engine   *discount.Engine
	events   notify.Publisher
	lg       *zap.Logger
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	orders order.Repository,
	coupons coupon.Repository,
	products product.Repository,
	users user.Repository,
	engine *discount.Engine,
	events notify.Publisher,
	lg *zap.Logger,
) *Handler {
	return &Handler{
		orders:   orders,
		coupons:  coupons,
		products: products,
		users:    users,
		engine:   engine,
		events:   events,
		lg:       lg,
	}
}

// pagination holds the resolved page window for list endpoints.
type pagination struct {
	Limit  int
	Offset int
}

// parsePagination reads page/per_page query parameters with sane bounds.
func parsePagination(r *http.Request) pagination {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return pagination{Limit: perPage, Offset: (page - 1) * perPage}
}
