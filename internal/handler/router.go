package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/storefront-go/storefront/internal/domain/auth"
)

// Routes builds the API router. The catalogue is public; order routes
// require an API key; administration additionally requires the admin scope.
// The websocket notification endpoint is mounted separately by the caller.
func (h *Handler) Routes(apikey *APIKeyAuth) *chi.Mux {
	r := chi.NewRouter()

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", h.ListProducts)
		r.Get("/products/{id}", h.GetProduct)

		r.Group(func(r chi.Router) {
			r.Use(apikey.Middleware)

			r.Get("/orders", h.ListOrders)
			r.Post("/orders", h.CreateOrder)
			r.Get("/orders/{id}", h.GetOrder)
			r.Post("/orders/{id}/discount", h.ApplyDiscount)
			r.Delete("/orders/{id}/discount", h.RemoveDiscount)

			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireScope(auth.ScopeAdmin))

				r.Get("/coupons", h.ListCoupons)
				r.Post("/coupons", h.CreateCoupon)
				r.Get("/coupons/{id}", h.GetCoupon)
				r.Put("/coupons/{id}", h.UpdateCoupon)
				r.Delete("/coupons/{id}", h.DeleteCoupon)

				r.Put("/orders/{id}", h.UpdateOrder)
				r.Delete("/orders/{id}", h.DeleteOrder)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}
