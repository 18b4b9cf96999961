package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all portfolio routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolio", func(r chi.Router) {
		r.Get("/scores", h.HandleGetScores) // Scored loans of the latest run
		r.Get("/tiers", h.HandleGetTiers)   // Exposure summary by tier
		r.Get("/chart", h.HandleGetChart)   // Exposure chart series
	})
}
