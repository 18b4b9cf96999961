package optimization

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Performance returns the annualized return and volatility of a weighted portfolio
// given daily mean returns and daily covariance.
func Performance(weights, meanReturns []float64, cov mat.Symmetric, tradingDays int) (annualReturn, annualVol float64) {
	n := len(weights)
	w := mat.NewVecDense(n, append([]float64(nil), weights...))
	mu := mat.NewVecDense(n, append([]float64(nil), meanReturns...))

	dailyReturn := mat.Dot(mu, w)
	variance := mat.Inner(w, cov, w)

	annualReturn = dailyReturn * float64(tradingDays)
	annualVol = math.Sqrt(math.Max(variance, 0)) * math.Sqrt(float64(tradingDays))
	return annualReturn, annualVol
}

// SharpeRatio returns (annualReturn - riskFreeRate) / annualVol.
func SharpeRatio(annualReturn, annualVol, riskFreeRate float64) (float64, error) {
	if annualVol <= 0 || math.IsNaN(annualVol) {
		return 0, ErrZeroVolatility
	}
	sharpe := (annualReturn - riskFreeRate) / annualVol
	if math.IsNaN(sharpe) || math.IsInf(sharpe, 0) {
		return 0, ErrNonFiniteInput
	}
	return sharpe, nil
}
