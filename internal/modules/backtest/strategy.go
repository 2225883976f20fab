package backtest

import (
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/optimization"
)

// Strategy picks portfolio weights from a training window's annualized
// moments. ok=false (or a vector of the wrong length) makes the backtester
// fall back to equal weights.
type Strategy interface {
	Weights(expectedReturns []float64, cov mat.Symmetric, riskFreeRate float64) ([]float64, bool)
}

// StrategyFunc adapts a function to the Strategy interface.
type StrategyFunc func(expectedReturns []float64, cov mat.Symmetric, riskFreeRate float64) ([]float64, bool)

// Weights implements Strategy.
func (f StrategyFunc) Weights(expectedReturns []float64, cov mat.Symmetric, riskFreeRate float64) ([]float64, bool) {
	return f(expectedReturns, cov, riskFreeRate)
}

// Strategy names accepted by NewStrategy
const (
	StrategyMaxSharpe     = "max_sharpe"
	StrategyMinVolatility = "min_volatility"
	StrategyEqualWeight   = "equal_weight"
)

// NewStrategy returns the built-in strategy with the given name.
func NewStrategy(name string, optimizer *optimization.MVOptimizer, allowShort bool) (Strategy, bool) {
	switch name {
	case StrategyMaxSharpe, "":
		return MaxSharpeStrategy(optimizer, allowShort), true
	case StrategyMinVolatility:
		return MinVolatilityStrategy(optimizer, allowShort), true
	case StrategyEqualWeight:
		return EqualWeightStrategy(), true
	default:
		return nil, false
	}
}

// MaxSharpeStrategy re-optimizes for the maximum Sharpe ratio on every window.
func MaxSharpeStrategy(optimizer *optimization.MVOptimizer, allowShort bool) Strategy {
	return StrategyFunc(func(mu []float64, cov mat.Symmetric, rf float64) ([]float64, bool) {
		res, err := optimizer.Solve(mu, cov, rf, optimization.SolveOptions{AllowShort: allowShort})
		if err != nil {
			return nil, false
		}
		return res.MaxSharpe.Weights, true
	})
}

// MinVolatilityStrategy re-optimizes for the minimum volatility on every window.
func MinVolatilityStrategy(optimizer *optimization.MVOptimizer, allowShort bool) Strategy {
	return StrategyFunc(func(mu []float64, cov mat.Symmetric, rf float64) ([]float64, bool) {
		res, err := optimizer.Solve(mu, cov, rf, optimization.SolveOptions{AllowShort: allowShort})
		if err != nil {
			return nil, false
		}
		return res.MinVolatility.Weights, true
	})
}

// EqualWeightStrategy always holds 1/n of every asset.
func EqualWeightStrategy() Strategy {
	return StrategyFunc(func(mu []float64, _ mat.Symmetric, _ float64) ([]float64, bool) {
		return domain.UniformWeights(len(mu)), true
	})
}
