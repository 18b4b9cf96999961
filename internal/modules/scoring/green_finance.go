package scoring

import (
	"sort"

	"github.com/aristath/greenfin/internal/domain"
	"github.com/aristath/greenfin/pkg/formulas"
)

// EmissionsClipQuantile bounds outlier influence before emissions are ranked
const EmissionsClipQuantile = 0.95

// Calculator computes composite Green Finance Scores.
// It is stateless; the emissions component depends on the whole population, so
// every call must be given the complete asset universe of the run.
type Calculator struct {
	weights    Weights
	thresholds Thresholds
}

// NewCalculator creates a calculator with the given weights and tier thresholds
func NewCalculator(weights Weights, thresholds Thresholds) *Calculator {
	return &Calculator{
		weights:    weights,
		thresholds: thresholds,
	}
}

// NewDefaultCalculator creates a calculator with the 0.50/0.20/0.30 weights and 80/60/40 tiers
func NewDefaultCalculator() *Calculator {
	return NewCalculator(DefaultWeights(), DefaultThresholds())
}

// Weights returns the metric weights in use
func (c *Calculator) Weights() Weights {
	return c.weights
}

// Thresholds returns the tier boundaries in use
func (c *Calculator) Thresholds() Thresholds {
	return c.thresholds
}

// NormalizeESG maps a 0-100 ESG score to 0-1
func NormalizeESG(esg float64) float64 {
	return esg / 100.0
}

// NormalizeGovernance inverts a 1-5 governance risk: 1 -> 1.0 (best), 5 -> 0.0 (worst)
func NormalizeGovernance(risk float64) float64 {
	return (5 - risk) / 4.0
}

// NormalizeEmissions clips intensities at the population 95th percentile, ranks them
// as percentiles (ties averaged) and inverts, so lower emissions score higher.
func NormalizeEmissions(intensities []float64) []float64 {
	if len(intensities) == 0 {
		return nil
	}
	limit := formulas.Quantile(intensities, EmissionsClipQuantile)
	ranks := formulas.PercentileRanks(formulas.ClipUpper(intensities, limit))

	normalized := make([]float64, len(ranks))
	for i, r := range ranks {
		normalized[i] = 1 - r
	}
	return normalized
}

// Score computes the composite score and tier of every asset.
// The result is sorted by score, highest first; ties keep loan id order.
func (c *Calculator) Score(assets []domain.Asset) []domain.ScoredAsset {
	if len(assets) == 0 {
		return nil
	}

	intensities := make([]float64, len(assets))
	for i, a := range assets {
		intensities[i] = a.EmissionsIntensity
	}
	emissionNorms := NormalizeEmissions(intensities)

	scored := make([]domain.ScoredAsset, len(assets))
	for i, a := range assets {
		esgNorm := NormalizeESG(a.ESGScore)
		govNorm := NormalizeGovernance(a.GovernanceRisk)

		score := 100 * (esgNorm*c.weights.ESG +
			govNorm*c.weights.Governance +
			emissionNorms[i]*c.weights.Emissions)

		scored[i] = domain.ScoredAsset{
			Asset:          a,
			ESGNorm:        esgNorm,
			GovernanceNorm: govNorm,
			EmissionNorm:   emissionNorms[i],
			Score:          score,
			Tier:           c.thresholds.Classify(score),
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].LoanID < scored[j].LoanID
	})

	return scored
}

// Partition splits scored assets into those kept in the decoupled portfolio and
// those in the excluded tier, preserving order.
func Partition(scored []domain.ScoredAsset, excluded domain.Tier) (kept, dropped []domain.ScoredAsset) {
	for _, s := range scored {
		if s.Tier == excluded {
			dropped = append(dropped, s)
		} else {
			kept = append(kept, s)
		}
	}
	return kept, dropped
}
