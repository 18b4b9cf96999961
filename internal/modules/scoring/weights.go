// Package scoring computes the Green Finance Score and risk tier of each loan.
package scoring

import (
	"fmt"
	"math"
)

// Weights are the contributions of each normalized metric to the composite score.
type Weights struct {
	ESG        float64 `yaml:"esg" json:"esg"`
	Governance float64 `yaml:"governance" json:"governance"`
	Emissions  float64 `yaml:"emissions" json:"emissions"`
}

// DefaultWeights: strong emphasis on overall ESG, then emissions, then governance
func DefaultWeights() Weights {
	return Weights{
		ESG:        0.50,
		Governance: 0.20,
		Emissions:  0.30,
	}
}

// Validate checks the weights are non-negative and sum to 1
func (w Weights) Validate() error {
	if w.ESG < 0 || w.Governance < 0 || w.Emissions < 0 {
		return fmt.Errorf("scoring weights must be non-negative: %+v", w)
	}
	if sum := w.ESG + w.Governance + w.Emissions; math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("scoring weights must sum to 1, got %.6f", sum)
	}
	return nil
}

// Thresholds are the inclusive lower score bounds of tiers A, B and C.
// Anything below Watchlist is tier D.
type Thresholds struct {
	Leader    float64 `yaml:"leader" json:"leader"`
	Aligned   float64 `yaml:"aligned" json:"aligned"`
	Watchlist float64 `yaml:"watchlist" json:"watchlist"`
}

// DefaultThresholds returns the 80/60/40 tier boundaries
func DefaultThresholds() Thresholds {
	return Thresholds{
		Leader:    80,
		Aligned:   60,
		Watchlist: 40,
	}
}

// Validate checks the thresholds are strictly descending
func (t Thresholds) Validate() error {
	if !(t.Leader > t.Aligned && t.Aligned > t.Watchlist) {
		return fmt.Errorf("tier thresholds must be strictly descending: %+v", t)
	}
	return nil
}
