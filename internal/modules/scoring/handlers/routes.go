package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all scoring routes
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/scoring", func(r chi.Router) {
		r.Post("/score", h.HandleScore)               // Score a posted universe
		r.Post("/score/what-if", h.HandleWhatIfScore) // Score with custom weights

		r.Get("/weights/current", h.HandleGetCurrentWeights)
	})
}
