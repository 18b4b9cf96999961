// Package handlers provides HTTP handlers for on-demand scoring.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/aristath/greenfin/internal/domain"
	"github.com/aristath/greenfin/internal/modules/scoring"
	"github.com/rs/zerolog"
)

// maxRequestBytes bounds the size of a posted asset list
const maxRequestBytes = 4 << 20

// Handlers scores posted assets without touching the run history
type Handlers struct {
	calculator *scoring.Calculator
	log        zerolog.Logger
}

// NewHandlers creates scoring handlers around the configured calculator
func NewHandlers(calculator *scoring.Calculator, log zerolog.Logger) *Handlers {
	return &Handlers{
		calculator: calculator,
		log:        log.With().Str("handler", "scoring").Logger(),
	}
}

// ScoreRequest is a complete asset universe to score. The emissions component
// is relative to the population, so partial universes score differently.
type ScoreRequest struct {
	Assets []domain.Asset `json:"assets"`
}

// ScoreResponse holds scored assets, best first, with the parameters used
type ScoreResponse struct {
	Weights    scoring.Weights      `json:"weights"`
	Thresholds scoring.Thresholds   `json:"thresholds"`
	Count      int                  `json:"count"`
	Assets     []domain.ScoredAsset `json:"assets"`
}

// WhatIfRequest scores assets with custom weights. Thresholds are optional.
type WhatIfRequest struct {
	Assets     []domain.Asset      `json:"assets"`
	Weights    scoring.Weights     `json:"weights"`
	Thresholds *scoring.Thresholds `json:"thresholds,omitempty"`
}

// TierChange compares one asset under the configured and custom parameters
type TierChange struct {
	LoanID      string      `json:"loan_id"`
	BaseScore   float64     `json:"base_score"`
	BaseTier    domain.Tier `json:"base_tier"`
	WhatIfScore float64     `json:"what_if_score"`
	WhatIfTier  domain.Tier `json:"what_if_tier"`
}

// WhatIfResponse is the custom scoring plus the assets whose tier moved
type WhatIfResponse struct {
	ScoreResponse
	TierChanges []TierChange `json:"tier_changes"`
}

// HandleScore handles POST /api/scoring/score
func (h *Handlers) HandleScore(w http.ResponseWriter, r *http.Request) {
	var req ScoreRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Assets) == 0 {
		h.writeError(w, http.StatusBadRequest, "assets are required")
		return
	}

	scored := h.calculator.Score(req.Assets)
	h.writeJSON(w, http.StatusOK, ScoreResponse{
		Weights:    h.calculator.Weights(),
		Thresholds: h.calculator.Thresholds(),
		Count:      len(scored),
		Assets:     scored,
	})
}

// HandleWhatIfScore handles POST /api/scoring/score/what-if
func (h *Handlers) HandleWhatIfScore(w http.ResponseWriter, r *http.Request) {
	var req WhatIfRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Assets) == 0 {
		h.writeError(w, http.StatusBadRequest, "assets are required")
		return
	}
	if err := req.Weights.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	thresholds := h.calculator.Thresholds()
	if req.Thresholds != nil {
		if err := req.Thresholds.Validate(); err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		thresholds = *req.Thresholds
	}

	custom := scoring.NewCalculator(req.Weights, thresholds)
	scored := custom.Score(req.Assets)

	base := make(map[string]domain.ScoredAsset, len(req.Assets))
	for _, s := range h.calculator.Score(req.Assets) {
		base[s.LoanID] = s
	}

	changes := make([]TierChange, 0)
	for _, s := range scored {
		b := base[s.LoanID]
		if b.Tier == s.Tier {
			continue
		}
		changes = append(changes, TierChange{
			LoanID:      s.LoanID,
			BaseScore:   b.Score,
			BaseTier:    b.Tier,
			WhatIfScore: s.Score,
			WhatIfTier:  s.Tier,
		})
	}

	h.log.Debug().Int("assets", len(scored)).Int("tier_changes", len(changes)).Msg("What-if scoring")

	h.writeJSON(w, http.StatusOK, WhatIfResponse{
		ScoreResponse: ScoreResponse{
			Weights:    req.Weights,
			Thresholds: thresholds,
			Count:      len(scored),
			Assets:     scored,
		},
		TierChanges: changes,
	})
}

// HandleGetCurrentWeights handles GET /api/scoring/weights/current
func (h *Handlers) HandleGetCurrentWeights(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"weights":    h.calculator.Weights(),
		"thresholds": h.calculator.Thresholds(),
	})
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.log.Warn().Err(err).Msg("Failed to decode scoring request")
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
