package optimization

import (
	"fmt"
	"math"
	"testing"

	"github.com/aristath/greenfin/internal/modules/simulation"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func newTestOptimizer() *MVOptimizer {
	return NewMVOptimizer(DefaultSettings(), zerolog.Nop())
}

func assertValidWeights(t *testing.T, weights []float64) {
	t.Helper()
	sum := 0.0
	for _, w := range weights {
		assert.GreaterOrEqual(t, w, 0.0)
		assert.LessOrEqual(t, w, 1.0)
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-6, "Weights should sum to 1")
}

func TestMVOptimizer_MaxSharpe_TwoAssetDiagonal(t *testing.T) {
	// Equal variances, asset 1 has the higher mean return
	cov := mat.NewSymDense(2, []float64{
		1e-4, 0,
		0, 1e-4,
	})
	mu := []float64{0.001, 0.0005}

	result, err := newTestOptimizer().MaxSharpe([]string{"L1", "L2"}, mu, cov)
	require.NoError(t, err)
	require.Len(t, result.Weights, 2)

	assertValidWeights(t, result.Weights)
	assert.Greater(t, result.Weights[0], 0.5)

	// Tangency portfolio: w ∝ Σ⁻¹(μ − rf/T)
	rfDaily := 0.03 / 252
	e1, e2 := mu[0]-rfDaily, mu[1]-rfDaily
	assert.InDelta(t, e1/(e1+e2), result.Weights[0], 1e-3)

	expectedReturn, expectedVol := Performance(result.Weights, mu, cov, 252)
	assert.InDelta(t, expectedReturn, result.AnnualReturn, 1e-12)
	assert.InDelta(t, expectedVol, result.AnnualVolatility, 1e-12)
	assert.InDelta(t, (expectedReturn-0.03)/expectedVol, result.Sharpe, 1e-9)
}

func TestMVOptimizer_MaxSharpe_BeatsEqualWeight(t *testing.T) {
	cov := mat.NewSymDense(3, []float64{
		0.00040, 0.00010, 0.00005,
		0.00010, 0.00020, 0.00002,
		0.00005, 0.00002, 0.00010,
	})
	mu := []float64{0.0008, 0.0004, 0.0003}

	result, err := newTestOptimizer().MaxSharpe([]string{"A", "B", "C"}, mu, cov)
	require.NoError(t, err)
	assertValidWeights(t, result.Weights)

	equal := []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}
	eqReturn, eqVol := Performance(equal, mu, cov, 252)
	eqSharpe, err := SharpeRatio(eqReturn, eqVol, 0.03)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, result.Sharpe, eqSharpe-1e-9)
}

// pipelineInputs estimates optimizer inputs for n simulated loans with spread ESG scores
func pipelineInputs(t *testing.T, n int) *Inputs {
	t.Helper()
	ids := make([]string, n)
	esg := make([]float64, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("L%03d", i+1)
		esg[i] = 5 + float64((i*37)%90)
	}

	returns, err := simulation.NewGenerator(simulation.DefaultConfig(), zerolog.Nop()).Generate(ids, esg)
	require.NoError(t, err)
	inputs, err := NewReturnsEstimator(zerolog.Nop()).Estimate(returns)
	require.NoError(t, err)
	return inputs
}

func sharpeOf(t *testing.T, weights []float64, inputs *Inputs) float64 {
	t.Helper()
	annualReturn, annualVol := Performance(weights, inputs.MeanReturns, inputs.Covariance, 252)
	sharpe, err := SharpeRatio(annualReturn, annualVol, 0.03)
	require.NoError(t, err)
	return sharpe
}

func TestMVOptimizer_MaxSharpe_PipelineScale(t *testing.T) {
	inputs := pipelineInputs(t, 100)

	result, err := newTestOptimizer().MaxSharpe(inputs.AssetIDs, inputs.MeanReturns, inputs.Covariance)
	require.NoError(t, err)
	require.Len(t, result.Weights, 100)
	assertValidWeights(t, result.Weights)

	assert.Equal(t, "BFGS", result.Method)
	assert.Contains(t, []string{"Stationary", "Success", "GradientThreshold", "MethodConverge"}, result.Status)
	assert.LessOrEqual(t, result.StationarityGap, StationarityTolerance*math.Max(1, math.Abs(result.Sharpe)))
	assert.InDelta(t, sharpeOf(t, result.Weights, inputs), result.Sharpe, 1e-9)

	equal := make([]float64, 100)
	for i := range equal {
		equal[i] = 0.01
	}
	assert.Greater(t, result.Sharpe, sharpeOf(t, equal, inputs))

	// Shifting a little weight toward any single loan must not raise the Sharpe ratio
	const step = 1e-3
	for j := range result.Weights {
		shifted := make([]float64, len(result.Weights))
		for i, w := range result.Weights {
			shifted[i] = (1 - step) * w
		}
		shifted[j] += step
		assert.LessOrEqual(t, sharpeOf(t, shifted, inputs), result.Sharpe+1e-5, "shift toward %s", inputs.AssetIDs[j])
	}
}

func TestMVOptimizer_MaxSharpe_RejectsNonStationaryEndPoint(t *testing.T) {
	inputs := pipelineInputs(t, 100)

	settings := DefaultSettings()
	settings.MajorIterations = 1
	opt := NewMVOptimizer(settings, zerolog.Nop())

	result, err := opt.MaxSharpe(inputs.AssetIDs, inputs.MeanReturns, inputs.Covariance)
	assert.ErrorIs(t, err, ErrNotConverged)
	assert.Nil(t, result)
}

func TestMVOptimizer_MaxSharpe_SingleAsset(t *testing.T) {
	cov := mat.NewSymDense(1, []float64{1e-4})

	result, err := newTestOptimizer().MaxSharpe([]string{"L1"}, []float64{0.0004}, cov)
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, result.Weights)
	assert.Equal(t, "trivial", result.Method)
}

func TestMVOptimizer_MaxSharpe_DegenerateInputs(t *testing.T) {
	opt := newTestOptimizer()

	t.Run("empty universe", func(t *testing.T) {
		_, err := opt.MaxSharpe(nil, nil, nil)
		assert.ErrorIs(t, err, ErrEmptyUniverse)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		cov := mat.NewSymDense(3, nil)
		_, err := opt.MaxSharpe([]string{"A", "B"}, []float64{0.001, 0.002}, cov)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("mean length mismatch", func(t *testing.T) {
		cov := mat.NewSymDense(2, []float64{1e-4, 0, 0, 1e-4})
		_, err := opt.MaxSharpe([]string{"A", "B"}, []float64{0.001}, cov)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("non-finite mean", func(t *testing.T) {
		cov := mat.NewSymDense(2, []float64{1e-4, 0, 0, 1e-4})
		_, err := opt.MaxSharpe([]string{"A", "B"}, []float64{math.NaN(), 0.001}, cov)
		assert.ErrorIs(t, err, ErrNonFiniteInput)
	})

	t.Run("non-finite covariance", func(t *testing.T) {
		cov := mat.NewSymDense(2, []float64{1e-4, math.Inf(1), math.Inf(1), 1e-4})
		_, err := opt.MaxSharpe([]string{"A", "B"}, []float64{0.001, 0.001}, cov)
		assert.ErrorIs(t, err, ErrNonFiniteInput)
	})

	t.Run("zero volatility", func(t *testing.T) {
		cov := mat.NewSymDense(2, nil)
		_, err := opt.MaxSharpe([]string{"A", "B"}, []float64{0.001, 0.002}, cov)
		assert.ErrorIs(t, err, ErrZeroVolatility)
	})
}

func TestResult_WeightMap(t *testing.T) {
	result := &Result{AssetIDs: []string{"L1", "L2"}, Weights: []float64{0.7, 0.3}}
	assert.Equal(t, map[string]float64{"L1": 0.7, "L2": 0.3}, result.WeightMap())
}

func TestSharpeRatio(t *testing.T) {
	sharpe, err := SharpeRatio(0.13, 0.2, 0.03)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, sharpe, 1e-12)

	_, err = SharpeRatio(0.1, 0, 0.03)
	assert.ErrorIs(t, err, ErrZeroVolatility)
}

func TestWeightsFromParams(t *testing.T) {
	assert.Equal(t, []float64{0.5, 0.5}, weightsFromParams([]float64{0, 0}))

	weights := weightsFromParams([]float64{-2, 1})
	assert.InDelta(t, 0.8, weights[0], 1e-12)
	assert.InDelta(t, 0.2, weights[1], 1e-12)
}

func TestSharpeObjective_GradientMatchesFiniteDifference(t *testing.T) {
	obj := &sharpeObjective{
		mu: []float64{0.0008, 0.0004, 0.0003},
		sigma: mat.NewSymDense(3, []float64{
			0.00040, 0.00010, 0.00005,
			0.00010, 0.00020, 0.00002,
			0.00005, 0.00002, 0.00010,
		}),
		tradingDays: 252,
		rf:          0.03,
		penalty:     10,
	}
	x := []float64{0.7, 0.4, 0.6}

	grad := make([]float64, len(x))
	obj.Grad(grad, x)

	const h = 1e-6
	for i := range x {
		plus := append([]float64(nil), x...)
		minus := append([]float64(nil), x...)
		plus[i] += h
		minus[i] -= h
		numeric := (obj.Func(plus) - obj.Func(minus)) / (2 * h)
		assert.InDelta(t, numeric, grad[i], 1e-4, "gradient component %d", i)
	}
}

func TestSharpeObjective_StationarityGap(t *testing.T) {
	obj := &sharpeObjective{
		mu:          []float64{0.001, 0.0005},
		sigma:       mat.NewSymDense(2, []float64{1e-4, 0, 0, 1e-4}),
		tradingDays: 252,
		rf:          0.03,
		penalty:     1000,
	}

	t.Run("zero at the tangency portfolio", func(t *testing.T) {
		rfDaily := 0.03 / 252
		e1, e2 := 0.001-rfDaily, 0.0005-rfDaily
		w1 := e1 / (e1 + e2)
		x := []float64{math.Sqrt(w1), math.Sqrt(1 - w1)}
		assert.Less(t, obj.StationarityGap(x), 1e-9)
	})

	t.Run("positive at equal weight", func(t *testing.T) {
		x := []float64{math.Sqrt(0.5), math.Sqrt(0.5)}
		assert.Greater(t, obj.StationarityGap(x), 0.1)
	})

	t.Run("positive when a better asset is parked at zero", func(t *testing.T) {
		x := []float64{0, 1}

		// The parametrization has a vanishing gradient here
		grad := make([]float64, 2)
		obj.Grad(grad, x)
		assert.InDelta(t, 0.0, grad[0], 1e-12)
		assert.InDelta(t, 0.0, grad[1], 1e-12)

		assert.Greater(t, obj.StationarityGap(x), 1.0)
	})
}

func TestReturnsEstimator_EstimateAndSubset(t *testing.T) {
	gen := simulation.NewGenerator(simulation.DefaultConfig(), zerolog.Nop())
	returns, err := gen.Generate([]string{"L1", "L2", "L3", "L4"}, []float64{90, 70, 50, 30})
	require.NoError(t, err)

	inputs, err := NewReturnsEstimator(zerolog.Nop()).Estimate(returns)
	require.NoError(t, err)
	require.Len(t, inputs.MeanReturns, 4)
	assert.Equal(t, 4, inputs.Covariance.SymmetricDim())

	sub, err := inputs.Subset([]string{"L3", "L1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"L3", "L1"}, sub.AssetIDs)
	assert.Equal(t, inputs.MeanReturns[2], sub.MeanReturns[0])
	assert.Equal(t, inputs.MeanReturns[0], sub.MeanReturns[1])
	assert.Equal(t, inputs.Covariance.At(2, 2), sub.Covariance.At(0, 0))
	assert.Equal(t, inputs.Covariance.At(2, 0), sub.Covariance.At(0, 1))

	// Optimizing the reduced universe yields a reduced, valid weight vector
	result, err := newTestOptimizer().MaxSharpe(sub.AssetIDs, sub.MeanReturns, sub.Covariance)
	require.NoError(t, err)
	require.Len(t, result.Weights, 2)
	assertValidWeights(t, result.Weights)

	_, err = inputs.Subset([]string{"missing"})
	assert.Error(t, err)
}

func TestReturnsEstimator_RejectsEmpty(t *testing.T) {
	_, err := NewReturnsEstimator(zerolog.Nop()).Estimate(nil)
	assert.ErrorIs(t, err, ErrEmptyUniverse)
}
