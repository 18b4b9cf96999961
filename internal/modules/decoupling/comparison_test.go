package decoupling

import (
	"context"
	"errors"
	"testing"

	"github.com/aristath/greenfin/internal/domain"
	"github.com/aristath/greenfin/internal/modules/optimization"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// failingOptimizer fails for universes of a given size
type failingOptimizer struct {
	inner  Optimizer
	failOn int
}

func (f *failingOptimizer) MaxSharpe(ids []string, mu []float64, cov mat.Symmetric) (*optimization.Result, error) {
	if len(ids) == f.failOn {
		return nil, optimization.ErrNotConverged
	}
	return f.inner.MaxSharpe(ids, mu, cov)
}

func threeAssetInputs() *optimization.Inputs {
	// L3 has a poor return and high variance, so dropping it helps
	return &optimization.Inputs{
		AssetIDs:    []string{"L1", "L2", "L3"},
		MeanReturns: []float64{0.0008, 0.0006, -0.0004},
		Covariance: mat.NewSymDense(3, []float64{
			1e-4, 0, 0,
			0, 1.2e-4, 0,
			0, 0, 4e-4,
		}),
	}
}

func newOptimizer() *optimization.MVOptimizer {
	return optimization.NewMVOptimizer(optimization.DefaultSettings(), zerolog.Nop())
}

func TestService_Compare(t *testing.T) {
	service := NewService(newOptimizer(), zerolog.Nop())

	comparison, err := service.Compare(context.Background(), threeAssetInputs(), domain.TierDivestment, []string{"L3"})
	require.NoError(t, err)

	assert.Equal(t, []string{"L1", "L2", "L3"}, comparison.Full.AssetIDs)
	assert.Equal(t, []string{"L1", "L2"}, comparison.Decoupled.AssetIDs)
	assert.Equal(t, domain.TierDivestment, comparison.ExcludedTier)
	assert.Equal(t, []string{"L3"}, comparison.ExcludedIDs)

	sum := 0.0
	for _, w := range comparison.Decoupled.Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-6)

	// The full optimum can put (near) zero weight on L3, so the Sharpe ratios agree
	// closely; the verdict must be consistent with them either way.
	if comparison.Decoupled.Sharpe > comparison.Full.Sharpe {
		assert.True(t, comparison.Passed())
	} else {
		assert.Equal(t, VerdictFail, comparison.Verdict)
		assert.Nil(t, comparison.ImprovementPct)
	}
}

func TestService_Compare_DegenerateSubset(t *testing.T) {
	service := NewService(newOptimizer(), zerolog.Nop())

	_, err := service.Compare(context.Background(), threeAssetInputs(), domain.TierDivestment, []string{"L2", "L3"})
	assert.ErrorIs(t, err, ErrDegenerateSubset)

	_, err = service.Compare(context.Background(), &optimization.Inputs{}, domain.TierDivestment, nil)
	assert.ErrorIs(t, err, optimization.ErrEmptyUniverse)
}

func TestService_Compare_SolverFailureIsNotAVerdict(t *testing.T) {
	service := NewService(&failingOptimizer{inner: newOptimizer(), failOn: 2}, zerolog.Nop())

	comparison, err := service.Compare(context.Background(), threeAssetInputs(), domain.TierDivestment, []string{"L3"})
	assert.Nil(t, comparison)
	require.Error(t, err)
	assert.True(t, errors.Is(err, optimization.ErrNotConverged))
}

func TestService_Compare_NoExclusions(t *testing.T) {
	service := NewService(newOptimizer(), zerolog.Nop())

	comparison, err := service.Compare(context.Background(), threeAssetInputs(), domain.TierDivestment, nil)
	require.NoError(t, err)
	assert.InDelta(t, comparison.Full.Sharpe, comparison.Decoupled.Sharpe, 1e-9)
	assert.Equal(t, VerdictFail, comparison.Verdict)
}

func TestEvaluate(t *testing.T) {
	t.Run("pass with improvement", func(t *testing.T) {
		c := Evaluate(&optimization.Result{Sharpe: 1.0}, &optimization.Result{Sharpe: 1.25})
		assert.Equal(t, VerdictPass, c.Verdict)
		require.NotNil(t, c.ImprovementPct)
		assert.InDelta(t, 25.0, *c.ImprovementPct, 1e-9)
	})

	t.Run("negative full sharpe uses magnitude", func(t *testing.T) {
		c := Evaluate(&optimization.Result{Sharpe: -0.5}, &optimization.Result{Sharpe: 0.5})
		assert.Equal(t, VerdictPass, c.Verdict)
		require.NotNil(t, c.ImprovementPct)
		assert.InDelta(t, 200.0, *c.ImprovementPct, 1e-9)
	})

	t.Run("zero full sharpe has no percentage", func(t *testing.T) {
		c := Evaluate(&optimization.Result{Sharpe: 0}, &optimization.Result{Sharpe: 0.4})
		assert.Equal(t, VerdictPass, c.Verdict)
		assert.Nil(t, c.ImprovementPct)
	})

	t.Run("tie fails", func(t *testing.T) {
		c := Evaluate(&optimization.Result{Sharpe: 0.8}, &optimization.Result{Sharpe: 0.8})
		assert.Equal(t, VerdictFail, c.Verdict)
		assert.Nil(t, c.ImprovementPct)
	})

	t.Run("worse fails", func(t *testing.T) {
		c := Evaluate(&optimization.Result{Sharpe: 0.8}, &optimization.Result{Sharpe: 0.6})
		assert.False(t, c.Passed())
		assert.Nil(t, c.ImprovementPct)
	})
}
