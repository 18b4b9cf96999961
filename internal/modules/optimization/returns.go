package optimization

import (
	"fmt"

	"github.com/aristath/greenfin/internal/modules/simulation"
	"github.com/aristath/greenfin/pkg/formulas"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// Inputs are the daily mean vector and covariance matrix for an ordered set of assets.
type Inputs struct {
	AssetIDs    []string
	MeanReturns []float64
	Covariance  *mat.SymDense
}

// ReturnsEstimator estimates optimizer inputs from a return matrix.
type ReturnsEstimator struct {
	log zerolog.Logger
}

// NewReturnsEstimator creates a new returns estimator
func NewReturnsEstimator(log zerolog.Logger) *ReturnsEstimator {
	return &ReturnsEstimator{
		log: log.With().Str("component", "returns_estimator").Logger(),
	}
}

// Estimate computes sample column means and the sample covariance of the daily returns.
func (re *ReturnsEstimator) Estimate(returns *simulation.ReturnMatrix) (*Inputs, error) {
	if returns == nil || len(returns.AssetIDs) == 0 {
		return nil, ErrEmptyUniverse
	}
	if returns.Days() < 2 {
		return nil, fmt.Errorf("need at least 2 days of returns, got %d", returns.Days())
	}

	inputs := &Inputs{
		AssetIDs:    append([]string(nil), returns.AssetIDs...),
		MeanReturns: formulas.ColumnMeans(returns.Returns),
		Covariance:  formulas.CovarianceMatrix(returns.Returns),
	}

	re.log.Debug().
		Int("assets", len(inputs.AssetIDs)).
		Int("days", returns.Days()).
		Msg("Estimated mean returns and covariance")

	return inputs, nil
}

// Subset returns the inputs restricted to ids, keeping the order given.
// Rows and columns of excluded assets are removed from the covariance matrix.
func (in *Inputs) Subset(ids []string) (*Inputs, error) {
	index := make(map[string]int, len(in.AssetIDs))
	for i, id := range in.AssetIDs {
		index[id] = i
	}

	positions := make([]int, len(ids))
	for k, id := range ids {
		i, ok := index[id]
		if !ok {
			return nil, fmt.Errorf("unknown asset id %q", id)
		}
		positions[k] = i
	}

	means := make([]float64, len(ids))
	for k, i := range positions {
		means[k] = in.MeanReturns[i]
	}

	var cov *mat.SymDense
	if len(ids) > 0 {
		cov = mat.NewSymDense(len(ids), nil)
		for a, i := range positions {
			for b := a; b < len(positions); b++ {
				cov.SetSym(a, b, in.Covariance.At(i, positions[b]))
			}
		}
	}

	return &Inputs{
		AssetIDs:    append([]string(nil), ids...),
		MeanReturns: means,
		Covariance:  cov,
	}, nil
}
