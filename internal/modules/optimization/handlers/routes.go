package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all optimization routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/optimization", func(r chi.Router) {
		r.Post("/min-mad", h.HandleOptimizeMinMAD)
		r.Post("/cardinality", h.HandleOptimizeCardinality)
		r.Post("/ratio", h.HandleOptimizeRatio)
		r.Post("/all", h.HandleOptimizeAll)
	})
}
