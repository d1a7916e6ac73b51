package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all returns-set routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/returns", func(r chi.Router) {
		r.Get("/", h.HandleListSets)
		r.Post("/", h.HandleCreateSet)
		r.Get("/{id}", h.HandleGetSet)
		r.Delete("/{id}", h.HandleDeleteSet)
	})
}
