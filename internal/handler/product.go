package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/storefront-go/storefront/internal/domain/product"
)

// ListProducts returns a page of the product catalogue.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	p := parsePagination(r)
	products, total, err := h.products.List(r.Context(), p.Limit, p.Offset)
	if err != nil {
		h.lg.Error("list products", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	views := make([]productView, len(products))
	for i, item := range products {
		views[i] = toProductView(item)
	}
	setTotalCount(w, total)
	respondJSON(w, http.StatusOK, views)
}

// GetProduct returns a single catalogue entry.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			respondError(w, http.StatusNotFound, "product not found")
			return
		}
		h.lg.Error("get product", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, toProductView(*p))
}
