// Package handler exposes POS sessions over HTTP.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/salon-pos/internal/domain/session"
)

// maxBodyBytes caps request bodies; POS commands are tiny.
const maxBodyBytes = 64 << 10

// Handler serves the session API.
type Handler struct {
	sessions *session.Manager
}

// New returns a Handler backed by the session manager.
func New(sessions *session.Manager) *Handler {
	return &Handler{sessions: sessions}
}

// Register mounts the API routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.openSession)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getSession)
			r.Delete("/", h.closeSession)
			r.Get("/lines", h.listLines)
			r.Get("/summary", h.getSummary)

			r.Post("/items", h.addItem)
			r.Route("/lines/{index}", func(r chi.Router) {
				r.Delete("/", h.removeLine)
				r.Put("/quantity", h.setQuantity)
				r.Post("/increment", h.increment)
				r.Post("/decrement", h.decrement)
				r.Put("/employee", h.assignEmployee)
				r.Put("/note", h.setNote)
				r.Post("/select", h.selectLine)
			})

			r.Put("/discount", h.setDiscount)
			r.Delete("/discount", h.clearDiscount)
			r.Put("/service-charge", h.setServiceCharge)
			r.Put("/customer", h.setCustomer)
			r.Put("/employee", h.setEmployee)
			r.Put("/order-type", h.setOrderType)

			r.Post("/undo", h.undo)
			r.Post("/redo", h.redo)
			r.Post("/clear", h.clear)
			r.Post("/promotions/refresh", h.refreshPromotions)
			r.Post("/settings/reload", h.reloadSettings)
			r.Post("/submit", h.submit)
		})
	})
}

// Router returns a chi router serving the API under /api.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Route("/api", h.Register)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}
