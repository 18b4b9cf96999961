package formulas

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Median returns the median of the non-NaN values in data.
// ok is false when data holds no usable values.
func Median(data []float64) (median float64, ok bool) {
	values := make([]float64, 0, len(data))
	for _, v := range data {
		if !math.IsNaN(v) {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return 0, false
	}
	m, err := stats.Median(values)
	if err != nil {
		return 0, false
	}
	return m, true
}

// Quantile returns the q-th quantile of data using linear interpolation between
// the two closest ranks: position q*(n-1) over the sorted values.
func Quantile(data []float64, q float64) float64 {
	if len(data) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	q = math.Max(0, math.Min(1, q))
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// ClipUpper returns a copy of data with every value above limit replaced by limit.
func ClipUpper(data []float64, limit float64) []float64 {
	clipped := make([]float64, len(data))
	for i, v := range data {
		clipped[i] = math.Min(v, limit)
	}
	return clipped
}

// PercentileRanks returns rank/N for each value, with 1-based ascending ranks.
// Tied values share the average of the ranks they span, so a single value ranks 1.0.
func PercentileRanks(data []float64) []float64 {
	n := len(data)
	ranks := make([]float64, n)
	if n == 0 {
		return ranks
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return data[order[a]] < data[order[b]]
	})

	for start := 0; start < n; {
		end := start + 1
		for end < n && data[order[end]] == data[order[start]] {
			end++
		}
		// Positions start..end-1 hold 1-based ranks start+1..end
		avg := float64(start+1+end) / 2
		for k := start; k < end; k++ {
			ranks[order[k]] = avg / float64(n)
		}
		start = end
	}

	return ranks
}

// AnnualizeReturn scales a mean daily return linearly by the trading-day count.
func AnnualizeReturn(dailyReturn float64, tradingDays int) float64 {
	return dailyReturn * float64(tradingDays)
}

// AnnualizeVolatility scales a daily standard deviation by the square root of the trading-day count.
func AnnualizeVolatility(dailyVolatility float64, tradingDays int) float64 {
	return dailyVolatility * math.Sqrt(float64(tradingDays))
}

// ColumnMeans returns the mean of each column of a rows × columns matrix.
func ColumnMeans(m mat.Matrix) []float64 {
	rows, cols := m.Dims()
	means := make([]float64, cols)
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			col[i] = m.At(i, j)
		}
		means[j] = stat.Mean(col, nil)
	}
	return means
}

// CovarianceMatrix returns the sample (n-1) covariance of the columns of a
// rows × columns observation matrix.
func CovarianceMatrix(m mat.Matrix) *mat.SymDense {
	_, cols := m.Dims()
	cov := mat.NewSymDense(cols, nil)
	stat.CovarianceMatrix(cov, m, nil)
	return cov
}
