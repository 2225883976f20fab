package optimization

import "gonum.org/v1/gonum/mat"

// StatisticsProvider turns a window of daily log returns (rows = days,
// columns = assets) into annualized expected returns and covariance.
type StatisticsProvider interface {
	Annualize(logReturns mat.Matrix, tradingDaysPerYear int) ([]float64, *mat.SymDense)
}
