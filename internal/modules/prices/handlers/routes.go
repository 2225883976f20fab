package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers price cache routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/prices", func(r chi.Router) {
		r.Get("/coverage", h.HandleGetCoverage)
		r.Post("/refresh", h.HandleRefresh)
	})
}
