// Package formulas holds the statistics primitives shared by the optimizer,
// the backtester and the simulator.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// DefaultTradingDays is the number of trading sessions used to annualize daily figures.
const DefaultTradingDays = 252

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

// ColumnMeans returns the mean of every column of x.
func ColumnMeans(x mat.Matrix) []float64 {
	r, c := x.Dims()
	means := make([]float64, c)
	if r == 0 {
		return means
	}
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, x)
		means[j] = stat.Mean(col, nil)
	}
	return means
}

// SampleMoments returns the per-column mean and the unbiased (n-1) sample
// covariance of the rows of x. Both are daily figures when x holds daily returns.
// At least two rows are required for the covariance to be defined; with fewer
// rows the covariance is all zeros.
func SampleMoments(x mat.Matrix) ([]float64, *mat.SymDense) {
	r, c := x.Dims()
	mu := ColumnMeans(x)
	if r < 2 {
		return mu, mat.NewSymDense(c, nil)
	}
	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, x, nil)
	return mu, &cov
}

// Annualize converts daily log returns into an annualized expected-return vector
// and covariance matrix by scaling both by tradingDays.
func Annualize(x mat.Matrix, tradingDays int) ([]float64, *mat.SymDense) {
	if tradingDays <= 0 {
		tradingDays = DefaultTradingDays
	}
	mu, cov := SampleMoments(x)
	scale := float64(tradingDays)
	for i := range mu {
		mu[i] *= scale
	}
	cov.ScaleSym(scale, cov)
	return mu, cov
}

// AnnualizedReturnAndVolatility returns the annualized mean return and the
// annualized volatility (std * sqrt(days)) of every column of x.
func AnnualizedReturnAndVolatility(x mat.Matrix, tradingDays int) ([]float64, []float64) {
	if tradingDays <= 0 {
		tradingDays = DefaultTradingDays
	}
	r, c := x.Dims()
	rets := make([]float64, c)
	vols := make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, x)
		rets[j] = Mean(col) * float64(tradingDays)
		vols[j] = StdDev(col) * math.Sqrt(float64(tradingDays))
	}
	return rets, vols
}

// PortfolioReturn calculates w'μ.
func PortfolioReturn(weights, expectedReturns []float64) float64 {
	var ret float64
	for i, w := range weights {
		ret += w * expectedReturns[i]
	}
	return ret
}

// PortfolioVariance calculates w'Σw.
func PortfolioVariance(weights []float64, cov mat.Symmetric) float64 {
	if len(weights) == 0 {
		return 0
	}
	w := mat.NewVecDense(len(weights), weights)
	return mat.Inner(w, cov, w)
}

// PortfolioVolatility calculates sqrt(w'Σw). Tiny negative variances produced by
// rounding are treated as zero.
func PortfolioVolatility(weights []float64, cov mat.Symmetric) float64 {
	return math.Sqrt(math.Max(PortfolioVariance(weights, cov), 0))
}
