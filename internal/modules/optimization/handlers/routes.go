package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers optimization routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/optimize", h.HandleOptimize)
	r.Post("/frontier", h.HandleFrontier)
	r.Get("/assets", h.HandleAssets)
}
