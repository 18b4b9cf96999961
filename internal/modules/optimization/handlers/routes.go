package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all optimization routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/optimization", func(r chi.Router) {
		r.Get("/runs", h.HandleListRuns)    // Recent runs
		r.Get("/runs/{id}", h.HandleGetRun) // One run with weights
		r.Post("/run", h.HandleRun)         // Execute the pipeline now
	})
}
