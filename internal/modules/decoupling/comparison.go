// Package decoupling compares the optimal full portfolio against the optimal
// portfolio that excludes the divestment tier.
package decoupling

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/aristath/greenfin/internal/domain"
	"github.com/aristath/greenfin/internal/modules/optimization"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// ErrDegenerateSubset is returned when fewer than two assets remain after exclusion.
var ErrDegenerateSubset = errors.New("decoupled portfolio has fewer than two assets")

// MinDecoupledAssets is the smallest subset the comparison will optimize
const MinDecoupledAssets = 2

// Verdict is the outcome of the comparison
type Verdict string

const (
	VerdictPass Verdict = "pass"
	VerdictFail Verdict = "fail"
)

// improvementEpsilon is the smallest |full Sharpe| for which a relative improvement is reported
const improvementEpsilon = 1e-12

// Comparison holds both optimizer results and the verdict.
// ImprovementPct is nil when the verdict is fail or the full Sharpe is too close to zero.
type Comparison struct {
	Full           *optimization.Result `json:"full"`
	Decoupled      *optimization.Result `json:"decoupled"`
	ExcludedTier   domain.Tier          `json:"excluded_tier"`
	ExcludedIDs    []string             `json:"excluded_ids"`
	Verdict        Verdict              `json:"verdict"`
	ImprovementPct *float64             `json:"improvement_pct,omitempty"`
}

// Optimizer is the max-Sharpe solver used for both runs
type Optimizer interface {
	MaxSharpe(assetIDs []string, meanReturns []float64, cov mat.Symmetric) (*optimization.Result, error)
}

// Service runs the full vs decoupled comparison
type Service struct {
	optimizer Optimizer
	log       zerolog.Logger
}

// NewService creates a new comparison service
func NewService(optimizer Optimizer, log zerolog.Logger) *Service {
	return &Service{
		optimizer: optimizer,
		log:       log.With().Str("service", "decoupling").Logger(),
	}
}

// Compare optimizes the full universe and the universe without excludedIDs.
// The decoupled inputs are the rows and columns of the full inputs for the kept assets.
// Solver failures are returned as errors and never reported as a fail verdict.
func (s *Service) Compare(ctx context.Context, inputs *optimization.Inputs, excludedTier domain.Tier, excludedIDs []string) (*Comparison, error) {
	if inputs == nil || len(inputs.AssetIDs) == 0 {
		return nil, optimization.ErrEmptyUniverse
	}

	excluded := make(map[string]bool, len(excludedIDs))
	for _, id := range excludedIDs {
		excluded[id] = true
	}
	kept := make([]string, 0, len(inputs.AssetIDs))
	for _, id := range inputs.AssetIDs {
		if !excluded[id] {
			kept = append(kept, id)
		}
	}
	if len(kept) < MinDecoupledAssets {
		return nil, fmt.Errorf("%w: %d of %d assets remain", ErrDegenerateSubset, len(kept), len(inputs.AssetIDs))
	}

	decoupledInputs, err := inputs.Subset(kept)
	if err != nil {
		return nil, fmt.Errorf("failed to build decoupled inputs: %w", err)
	}

	var full, decoupled *optimization.Result
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := s.optimizer.MaxSharpe(inputs.AssetIDs, inputs.MeanReturns, inputs.Covariance)
		if err != nil {
			return fmt.Errorf("full portfolio optimization failed: %w", err)
		}
		full = res
		return nil
	})
	g.Go(func() error {
		res, err := s.optimizer.MaxSharpe(decoupledInputs.AssetIDs, decoupledInputs.MeanReturns, decoupledInputs.Covariance)
		if err != nil {
			return fmt.Errorf("decoupled portfolio optimization failed: %w", err)
		}
		decoupled = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	comparison := Evaluate(full, decoupled)
	comparison.ExcludedTier = excludedTier
	comparison.ExcludedIDs = append([]string{}, excludedIDs...)

	event := s.log.Info().
		Int("full_assets", len(full.AssetIDs)).
		Int("decoupled_assets", len(decoupled.AssetIDs)).
		Float64("full_sharpe", full.Sharpe).
		Float64("decoupled_sharpe", decoupled.Sharpe).
		Str("verdict", string(comparison.Verdict))
	if comparison.ImprovementPct != nil {
		event = event.Float64("improvement_pct", *comparison.ImprovementPct)
	}
	event.Msg("Decoupling comparison complete")

	return comparison, nil
}

// Evaluate derives the verdict from two results.
// Pass requires a strictly higher decoupled Sharpe; ties fail.
// The improvement divides by |full Sharpe|, so a rise from a negative full Sharpe reads as positive.
func Evaluate(full, decoupled *optimization.Result) *Comparison {
	comparison := &Comparison{
		Full:      full,
		Decoupled: decoupled,
		Verdict:   VerdictFail,
	}
	if decoupled.Sharpe > full.Sharpe {
		comparison.Verdict = VerdictPass
		if math.Abs(full.Sharpe) >= improvementEpsilon {
			pct := (decoupled.Sharpe - full.Sharpe) / math.Abs(full.Sharpe) * 100
			comparison.ImprovementPct = &pct
		}
	}
	return comparison
}

// Passed reports whether decoupling improved the Sharpe ratio
func (c *Comparison) Passed() bool {
	return c.Verdict == VerdictPass
}
