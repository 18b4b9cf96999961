// Package optimization provides mean-variance portfolio optimization.
package optimization

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// Optimizer failure conditions. ErrNotConverged is distinct from a poor result:
// the solver output is not numerically meaningful and must not be used.
var (
	ErrEmptyUniverse     = errors.New("no assets to optimize")
	ErrDimensionMismatch = errors.New("mean vector and covariance matrix dimensions differ")
	ErrNonFiniteInput    = errors.New("optimizer input contains NaN or Inf")
	ErrZeroVolatility    = errors.New("portfolio volatility is zero")
	ErrNotConverged      = errors.New("optimizer did not converge")
)

// Settings control annualization and the solver
type Settings struct {
	TradingDays     int     // Annualization constant
	RiskFreeRate    float64 // Annualized
	PenaltyWeight   float64 // Anchors the scale of the unconstrained parameters
	MajorIterations int     // Per solver attempt
}

// DefaultSettings returns 252 trading days and a 3% risk-free rate
func DefaultSettings() Settings {
	return Settings{
		TradingDays:     252,
		RiskFreeRate:    0.03,
		PenaltyWeight:   1000.0,
		MajorIterations: 5000,
	}
}

// Result is the outcome of one optimizer invocation. Weights[i] belongs to AssetIDs[i].
type Result struct {
	AssetIDs         []string  `json:"asset_ids"`
	Weights          []float64 `json:"weights"`
	AnnualReturn     float64   `json:"annual_return"`
	AnnualVolatility float64   `json:"annual_volatility"`
	Sharpe           float64   `json:"sharpe"`
	Method           string    `json:"method"`
	Status           string    `json:"status"`
	Iterations       int       `json:"iterations"`
	StationarityGap  float64   `json:"stationarity_gap"`
}

// WeightMap returns the weights keyed by asset id
func (r *Result) WeightMap() map[string]float64 {
	weights := make(map[string]float64, len(r.AssetIDs))
	for i, id := range r.AssetIDs {
		weights[id] = r.Weights[i]
	}
	return weights
}

// MVOptimizer performs mean-variance portfolio optimization.
type MVOptimizer struct {
	settings Settings
	log      zerolog.Logger
}

// NewMVOptimizer creates a new mean-variance optimizer.
func NewMVOptimizer(settings Settings, log zerolog.Logger) *MVOptimizer {
	return &MVOptimizer{
		settings: settings,
		log:      log.With().Str("component", "mv_optimizer").Logger(),
	}
}

// Settings returns the optimizer settings
func (mvo *MVOptimizer) Settings() Settings {
	return mvo.settings
}

// solverConverged are the terminations a solver reports as convergence. They label
// the result; acceptance is decided by the stationarity check alone.
var solverConverged = map[optimize.Status]bool{
	optimize.Success:           true,
	optimize.GradientThreshold: true,
	optimize.MethodConverge:    true,
}

// StationarityTolerance bounds the first-order optimality gap of an accepted
// solution, relative to max(1, |Sharpe|).
const StationarityTolerance = 1e-4

// MaxSharpe finds the long-only, fully invested portfolio with the highest Sharpe ratio.
//
// Mathematical formulation:
//   - maximize (T·μ'w − r_f) / (√T·√(w'Σw)) with μ, Σ daily and T trading days
//   - Σw = 1, 0 ≤ w_i ≤ 1
//
// Weights are parameterised as w_i = x_i² / Σx², so both constraints hold by construction;
// a penalty on (Σx² − 1) keeps the parameters at unit scale. The initial guess is 1/N.
//
// BFGS runs first. If its end point is not stationary, BFGS is restarted from that
// point and Nelder-Mead is the last resort. A solution is accepted only when its
// simplex stationarity gap is within StationarityTolerance, whatever status the
// solver reported; otherwise ErrNotConverged is returned.
func (mvo *MVOptimizer) MaxSharpe(assetIDs []string, meanReturns []float64, cov mat.Symmetric) (*Result, error) {
	n := len(assetIDs)
	if n == 0 {
		return nil, ErrEmptyUniverse
	}
	if err := validateInputs(n, meanReturns, cov); err != nil {
		return nil, err
	}

	if n == 1 {
		return mvo.buildResult(assetIDs, []float64{1}, meanReturns, cov, "trivial", "Success", 0, 0)
	}

	objective := &sharpeObjective{
		mu:          meanReturns,
		sigma:       cov,
		tradingDays: float64(mvo.settings.TradingDays),
		rf:          mvo.settings.RiskFreeRate,
		penalty:     mvo.settings.PenaltyWeight,
	}

	problem := optimize.Problem{
		Func: objective.Func,
		Grad: objective.Grad,
	}

	start := make([]float64, n)
	for i := range start {
		start[i] = math.Sqrt(1.0 / float64(n))
	}

	settings := &optimize.Settings{
		GradientThreshold: 1e-9,
		MajorIterations:   mvo.settings.MajorIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Relative:   1e-12,
			Iterations: 50,
		},
	}

	attempts := []struct {
		name   string
		method func() optimize.Method
	}{
		{"BFGS", func() optimize.Method { return &optimize.BFGS{} }},
		{"BFGS", func() optimize.Method { return &optimize.BFGS{} }},
		{"NelderMead", func() optimize.Method { return &optimize.NelderMead{} }},
	}

	var (
		iterations int
		lastGap    = math.Inf(1)
		lastStatus = "none"
	)
	for _, attempt := range attempts {
		result, err := optimize.Minimize(problem, start, settings, attempt.method())
		if result == nil || len(result.X) != n || !allFinite(result.X) {
			mvo.log.Debug().Err(err).Str("method", attempt.name).Msg("Solver produced no usable point")
			continue
		}
		iterations += result.MajorIterations
		lastStatus = result.Status.String()

		gap := objective.StationarityGap(result.X)
		tolerance := StationarityTolerance * math.Max(1, math.Abs(result.F))
		if gap <= tolerance {
			status := result.Status.String()
			if !solverConverged[result.Status] {
				status = "Stationary"
			}
			return mvo.buildResult(assetIDs, weightsFromParams(result.X), meanReturns, cov, attempt.name, status, iterations, gap)
		}

		mvo.log.Debug().
			Err(err).
			Str("method", attempt.name).
			Str("status", lastStatus).
			Float64("gap", gap).
			Float64("tolerance", tolerance).
			Msg("Solver end point is not stationary, retrying")

		// Continue from the best point reached so far
		lastGap = gap
		start = result.X
	}

	return nil, fmt.Errorf("%w: status=%s gap=%.3g", ErrNotConverged, lastStatus, lastGap)
}

func (mvo *MVOptimizer) buildResult(
	assetIDs []string,
	weights []float64,
	meanReturns []float64,
	cov mat.Symmetric,
	method string,
	status string,
	iterations int,
	gap float64,
) (*Result, error) {
	annualReturn, annualVol := Performance(weights, meanReturns, cov, mvo.settings.TradingDays)
	sharpe, err := SharpeRatio(annualReturn, annualVol, mvo.settings.RiskFreeRate)
	if err != nil {
		return nil, err
	}

	mvo.log.Debug().
		Int("assets", len(assetIDs)).
		Str("method", method).
		Str("status", status).
		Float64("sharpe", sharpe).
		Float64("volatility", annualVol).
		Msg("Optimized max Sharpe portfolio")

	return &Result{
		AssetIDs:         append([]string(nil), assetIDs...),
		Weights:          weights,
		AnnualReturn:     annualReturn,
		AnnualVolatility: annualVol,
		Sharpe:           sharpe,
		Method:           method,
		Status:           status,
		Iterations:       iterations,
		StationarityGap:  gap,
	}, nil
}

// sharpeObjective is the negative annualized Sharpe ratio over the x² parametrization.
type sharpeObjective struct {
	mu          []float64
	sigma       mat.Symmetric
	tradingDays float64
	rf          float64
	penalty     float64
}

// minStdDev guards the division when every parameter collapses to zero
const minStdDev = 1e-12

func (o *sharpeObjective) evaluate(x []float64) (w []float64, scale, excess, vol float64, sigmaW []float64) {
	n := len(x)
	for i := 0; i < n; i++ {
		scale += x[i] * x[i]
	}
	w = make([]float64, n)
	if scale > 0 {
		for i := 0; i < n; i++ {
			w[i] = x[i] * x[i] / scale
		}
	}

	sigmaW = make([]float64, n)
	var dailyReturn, variance float64
	for i := 0; i < n; i++ {
		dailyReturn += o.mu[i] * w[i]
		for j := 0; j < n; j++ {
			sigmaW[i] += o.sigma.At(i, j) * w[j]
		}
		variance += w[i] * sigmaW[i]
	}

	excess = o.tradingDays*dailyReturn - o.rf
	vol = math.Sqrt(math.Max(o.tradingDays*variance, 0))
	vol = math.Max(vol, minStdDev)
	return w, scale, excess, vol, sigmaW
}

// Func returns -Sharpe(w(x)) + penalty·(Σx² − 1)²
func (o *sharpeObjective) Func(x []float64) float64 {
	_, scale, excess, vol, _ := o.evaluate(x)
	return -excess/vol + o.penalty*(scale-1)*(scale-1)
}

// weightGradient returns d(-Sharpe)/dw at the evaluated point
func (o *sharpeObjective) weightGradient(excess, vol float64, sigmaW []float64) []float64 {
	gw := make([]float64, len(sigmaW))
	vol3 := vol * vol * vol
	for i := range gw {
		gw[i] = -o.tradingDays*o.mu[i]/vol + excess*o.tradingDays*sigmaW[i]/vol3
	}
	return gw
}

// Grad differentiates Func through w_i = x_i²/S with S = Σx².
func (o *sharpeObjective) Grad(grad, x []float64) {
	w, scale, excess, vol, sigmaW := o.evaluate(x)
	gw := o.weightGradient(excess, vol, sigmaW)

	var dot float64
	for i := range gw {
		dot += gw[i] * w[i]
	}

	penaltyGrad := 2 * o.penalty * (scale - 1)
	for i := range x {
		var dw float64
		if scale > 0 {
			dw = (gw[i] - dot) / scale
		}
		// dS/dx_i = dp_i/dx_i = 2x_i
		grad[i] = 2 * x[i] * (dw + penaltyGrad)
	}
}

// StationarityGap is the Frank-Wolfe gap of -Sharpe on the simplex at w(x):
// g'w − min_i g_i with g = d(-Sharpe)/dw. It is never negative and is zero exactly
// at a KKT point, where every held asset shares the smallest marginal cost and no
// excluded asset would lower it. A point where x_i = 0 traps an asset that should be
// held has a positive gap even though the gradient in x vanishes there.
func (o *sharpeObjective) StationarityGap(x []float64) float64 {
	w, _, excess, vol, sigmaW := o.evaluate(x)
	gw := o.weightGradient(excess, vol, sigmaW)

	var dot float64
	lowest := math.Inf(1)
	for i := range gw {
		dot += gw[i] * w[i]
		lowest = math.Min(lowest, gw[i])
	}
	return math.Max(0, dot-lowest)
}

// weightsFromParams maps solver parameters to weights in [0,1] summing to 1
func weightsFromParams(x []float64) []float64 {
	weights := make([]float64, len(x))
	var sum float64
	for i, v := range x {
		weights[i] = v * v
		sum += weights[i]
	}
	if sum <= 0 {
		for i := range weights {
			weights[i] = 1.0 / float64(len(weights))
		}
		return weights
	}
	for i := range weights {
		weights[i] = math.Max(0, math.Min(1, weights[i]/sum))
	}
	return weights
}

func validateInputs(n int, meanReturns []float64, cov mat.Symmetric) error {
	if len(meanReturns) != n {
		return fmt.Errorf("%w: %d mean returns for %d assets", ErrDimensionMismatch, len(meanReturns), n)
	}
	if cov == nil || cov.SymmetricDim() != n {
		dim := 0
		if cov != nil {
			dim = cov.SymmetricDim()
		}
		return fmt.Errorf("%w: covariance is %dx%d for %d assets", ErrDimensionMismatch, dim, dim, n)
	}

	if !allFinite(meanReturns) {
		return ErrNonFiniteInput
	}
	zeroVariance := true
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := cov.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return ErrNonFiniteInput
			}
		}
		if cov.At(i, i) > 0 {
			zeroVariance = false
		}
	}
	if zeroVariance {
		return fmt.Errorf("%w: covariance matrix has no variance", ErrZeroVolatility)
	}
	return nil
}

func allFinite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
