package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/shipsync-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса shipsync.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Post("/webhook/orders/create", h.OrderCreateWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Get("/combine-check", h.CombineCheck)
		r.Post("/confirm-combine", h.ConfirmCombine)
	})

	r.Get("/widget.js", h.Widget)
	r.Get("/admin/combined-orders", h.AdminCombinedOrders)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
