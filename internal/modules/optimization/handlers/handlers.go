// Package handlers provides HTTP handlers for optimization runs.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/aristath/greenfin/internal/modules/decoupling"
	"github.com/aristath/greenfin/internal/modules/optimization"
	"github.com/aristath/greenfin/internal/modules/pipeline"
	"github.com/aristath/greenfin/internal/modules/runs"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// maxListLimit caps ?limit on the run list
const maxListLimit = 200

// RunStore reads recorded runs
type RunStore interface {
	List(ctx context.Context, limit int) ([]runs.Run, error)
	Get(ctx context.Context, id string) (*runs.Run, error)
}

// Runner executes the pipeline
type Runner interface {
	Run(ctx context.Context) (*pipeline.Outcome, error)
}

// Handler handles optimization HTTP requests
type Handler struct {
	runs   RunStore
	runner Runner
	log    zerolog.Logger
}

// NewHandler creates a new optimization handler
func NewHandler(runs RunStore, runner Runner, log zerolog.Logger) *Handler {
	return &Handler{
		runs:   runs,
		runner: runner,
		log:    log.With().Str("handler", "optimization").Logger(),
	}
}

// HandleListRuns returns recent runs, newest first
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	list, err := h.runs.List(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  list,
		"count": len(list),
	})
}

// HandleGetRun returns one run by id
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := h.runs.Get(r.Context(), id)
	if errors.Is(err, runs.ErrRunNotFound) {
		h.writeError(w, http.StatusNotFound, "run not found: "+id)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("run_id", id).Msg("Failed to get run")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, run)
}

// HandleRun executes the pipeline now and returns its outcome
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.runner.Run(r.Context())
	if err != nil {
		status := runErrorStatus(err)
		if status == http.StatusInternalServerError {
			h.log.Error().Err(err).Msg("Pipeline run failed")
		} else {
			h.log.Warn().Err(err).Msg("Pipeline run rejected")
		}
		h.writeError(w, status, err.Error())
		return
	}

	h.writeJSON(w, http.StatusCreated, outcome)
}

// runErrorStatus maps pipeline failures to HTTP statuses
func runErrorStatus(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, optimization.ErrEmptyUniverse),
		errors.Is(err, optimization.ErrZeroVolatility),
		errors.Is(err, optimization.ErrNonFiniteInput),
		errors.Is(err, optimization.ErrNotConverged),
		errors.Is(err, decoupling.ErrDegenerateSubset):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
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
