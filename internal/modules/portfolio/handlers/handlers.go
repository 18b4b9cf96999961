// Package handlers provides HTTP handlers for the scored portfolio of the latest run.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aristath/greenfin/internal/domain"
	"github.com/aristath/greenfin/internal/modules/reporting"
	"github.com/aristath/greenfin/internal/modules/runs"
	"github.com/rs/zerolog"
)

// RunSource provides the latest run and its score snapshot
type RunSource interface {
	Latest(ctx context.Context) (*runs.Run, error)
	Scores(ctx context.Context, runID string) ([]domain.ScoredAsset, error)
}

// Handler handles portfolio HTTP requests
type Handler struct {
	runs RunSource
	log  zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(runs RunSource, log zerolog.Logger) *Handler {
	return &Handler{
		runs: runs,
		log:  log.With().Str("handler", "portfolio").Logger(),
	}
}

// ScoresResponse lists the scored loans of a run, best score first
type ScoresResponse struct {
	RunID  string               `json:"run_id"`
	Count  int                  `json:"count"`
	Assets []domain.ScoredAsset `json:"assets"`
}

// HandleGetScores returns the scored assets of the latest run.
// Optional ?tier=A..D filters to one tier.
func (h *Handler) HandleGetScores(w http.ResponseWriter, r *http.Request) {
	run, scored, ok := h.latestScores(w, r)
	if !ok {
		return
	}

	if raw := r.URL.Query().Get("tier"); raw != "" {
		tier := domain.Tier(strings.ToUpper(raw))
		if tier.Rank() < 0 {
			h.writeError(w, http.StatusBadRequest, "unknown tier: "+raw)
			return
		}
		filtered := make([]domain.ScoredAsset, 0, len(scored))
		for _, s := range scored {
			if s.Tier == tier {
				filtered = append(filtered, s)
			}
		}
		scored = filtered
	}

	h.writeJSON(w, http.StatusOK, ScoresResponse{RunID: run.ID, Count: len(scored), Assets: scored})
}

// HandleGetTiers returns the exposure summary by tier of the latest run
func (h *Handler) HandleGetTiers(w http.ResponseWriter, r *http.Request) {
	run, scored, ok := h.latestScores(w, r)
	if !ok {
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":  run.ID,
		"summary": reporting.Summarize(scored),
	})
}

// HandleGetChart returns the exposure-by-tier chart series of the latest run
func (h *Handler) HandleGetChart(w http.ResponseWriter, r *http.Request) {
	_, scored, ok := h.latestScores(w, r)
	if !ok {
		return
	}

	h.writeJSON(w, http.StatusOK, reporting.BuildChart(reporting.Summarize(scored)))
}

// latestScores writes the error response itself and reports false on failure
func (h *Handler) latestScores(w http.ResponseWriter, r *http.Request) (*runs.Run, []domain.ScoredAsset, bool) {
	run, err := h.runs.Latest(r.Context())
	if errors.Is(err, runs.ErrRunNotFound) {
		h.writeError(w, http.StatusNotFound, "no pipeline run recorded yet")
		return nil, nil, false
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load latest run")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return nil, nil, false
	}

	scored, err := h.runs.Scores(r.Context(), run.ID)
	if err != nil {
		h.log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to load run scores")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return nil, nil, false
	}

	return run, scored, true
}

// Helper methods

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
