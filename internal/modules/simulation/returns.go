// Package simulation generates synthetic daily asset returns.
//
// The returns are a reproducible mock of market data for loans that have no price
// history. They are not a forecast. Volatility is scaled down as ESG score rises.
//
// Draws come from gonum distributions over a seeded math/rand/v2 PCG source, so a
// fixed seed reproduces the same matrix in this implementation. Other random
// number generators will produce statistically, not bitwise, equivalent output.
package simulation

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultTradingDays is the trading-year length used for daily scaling
const DefaultTradingDays = 252

// DefaultSeed keeps runs reproducible
const DefaultSeed uint64 = 42

// ErrInvalidInput is returned for inconsistent or non-finite generator inputs
var ErrInvalidInput = errors.New("invalid simulation input")

// Config holds generator parameters. Annual figures are scaled to daily values.
type Config struct {
	Days             int     // Horizon in trading days (default 2 trading years)
	TradingDays      int     // Trading days per year
	Seed             uint64  // RNG seed
	AnnualMean       float64 // Centre of the per-asset mean return draw
	AnnualMeanStdDev float64 // Spread of the per-asset mean return draw
	AnnualVolMin     float64 // Lower bound of the per-asset volatility draw
	AnnualVolMax     float64 // Upper bound of the per-asset volatility draw
	ESGVolDivisor    float64 // Volatility scale is 1 - esg/ESGVolDivisor
}

// DefaultConfig returns the standard simulation parameters
func DefaultConfig() Config {
	return Config{
		Days:             2 * DefaultTradingDays,
		TradingDays:      DefaultTradingDays,
		Seed:             DefaultSeed,
		AnnualMean:       0.08,
		AnnualMeanStdDev: 0.05,
		AnnualVolMin:     0.15,
		AnnualVolMax:     0.40,
		ESGVolDivisor:    150,
	}
}

// ReturnMatrix is a days × assets matrix of synthetic daily returns.
type ReturnMatrix struct {
	AssetIDs   []string
	Returns    *mat.Dense
	DailyMeans []float64 // Drawn mean per asset
	DailyVols  []float64 // Drawn volatility per asset after ESG scaling
}

// Days returns the number of observations
func (m *ReturnMatrix) Days() int {
	r, _ := m.Returns.Dims()
	return r
}

// Column returns a copy of the return series of one asset
func (m *ReturnMatrix) Column(j int) []float64 {
	return mat.Col(nil, j, m.Returns)
}

// Select returns a new matrix holding only the given assets, in the given order.
func (m *ReturnMatrix) Select(assetIDs []string) (*ReturnMatrix, error) {
	if len(assetIDs) == 0 {
		return nil, fmt.Errorf("%w: empty asset selection", ErrInvalidInput)
	}

	index := make(map[string]int, len(m.AssetIDs))
	for j, id := range m.AssetIDs {
		index[id] = j
	}

	out := &ReturnMatrix{
		AssetIDs:   append([]string(nil), assetIDs...),
		Returns:    mat.NewDense(m.Days(), len(assetIDs), nil),
		DailyMeans: make([]float64, len(assetIDs)),
		DailyVols:  make([]float64, len(assetIDs)),
	}
	for k, id := range assetIDs {
		j, ok := index[id]
		if !ok {
			return nil, fmt.Errorf("asset %s not in return matrix", id)
		}
		out.Returns.SetCol(k, m.Column(j))
		out.DailyMeans[k] = m.DailyMeans[j]
		out.DailyVols[k] = m.DailyVols[j]
	}
	return out, nil
}

// Generator produces synthetic return matrices
type Generator struct {
	cfg Config
	log zerolog.Logger
}

// NewGenerator creates a new return generator
func NewGenerator(cfg Config, log zerolog.Logger) *Generator {
	return &Generator{
		cfg: cfg,
		log: log.With().Str("component", "return_simulator").Logger(),
	}
}

// Generate draws a return matrix for the given assets. esgScores[i] belongs to assetIDs[i].
//
// Per asset: mean ~ Normal(AnnualMean, AnnualMeanStdDev)/TradingDays and
// vol ~ Uniform(AnnualVolMin, AnnualVolMax)*(1-esg/ESGVolDivisor)/sqrt(TradingDays).
// Each day then draws every asset independently from Normal(mean, vol).
func (g *Generator) Generate(assetIDs []string, esgScores []float64) (*ReturnMatrix, error) {
	n := len(assetIDs)
	if n == 0 {
		return nil, fmt.Errorf("%w: no assets", ErrInvalidInput)
	}
	if len(esgScores) != n {
		return nil, fmt.Errorf("%w: %d ESG scores for %d assets", ErrInvalidInput, len(esgScores), n)
	}
	if g.cfg.Days <= 0 || g.cfg.TradingDays <= 0 {
		return nil, fmt.Errorf("%w: days=%d trading_days=%d", ErrInvalidInput, g.cfg.Days, g.cfg.TradingDays)
	}

	volScale := make([]float64, n)
	for i, esg := range esgScores {
		scale := 1 - esg/g.cfg.ESGVolDivisor
		if math.IsNaN(scale) || math.IsInf(scale, 0) || scale <= 0 {
			return nil, fmt.Errorf("%w: ESG score %v for %s gives volatility scale %v", ErrInvalidInput, esg, assetIDs[i], scale)
		}
		volScale[i] = scale
	}

	src := rand.NewPCG(g.cfg.Seed, g.cfg.Seed)
	tradingDays := float64(g.cfg.TradingDays)
	sqrtDays := math.Sqrt(tradingDays)

	meanDist := distuv.Normal{Mu: g.cfg.AnnualMean, Sigma: g.cfg.AnnualMeanStdDev, Src: src}
	means := make([]float64, n)
	for i := range means {
		means[i] = meanDist.Rand() / tradingDays
	}

	volDist := distuv.Uniform{Min: g.cfg.AnnualVolMin, Max: g.cfg.AnnualVolMax, Src: src}
	vols := make([]float64, n)
	for i := range vols {
		vols[i] = volDist.Rand() * volScale[i] / sqrtDays
	}

	assetDists := make([]distuv.Normal, n)
	for i := range assetDists {
		assetDists[i] = distuv.Normal{Mu: means[i], Sigma: vols[i], Src: src}
	}

	returns := mat.NewDense(g.cfg.Days, n, nil)
	for d := 0; d < g.cfg.Days; d++ {
		for i := 0; i < n; i++ {
			returns.Set(d, i, assetDists[i].Rand())
		}
	}

	g.log.Debug().
		Int("assets", n).
		Int("days", g.cfg.Days).
		Uint64("seed", g.cfg.Seed).
		Msg("Simulated synthetic returns")

	return &ReturnMatrix{
		AssetIDs:   append([]string(nil), assetIDs...),
		Returns:    returns,
		DailyMeans: means,
		DailyVols:  vols,
	}, nil
}
