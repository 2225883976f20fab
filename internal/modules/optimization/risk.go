package optimization

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/pkg/formulas"
)

// Constants for risk model configuration
const (
	HighCorrelationThreshold = 0.80 // 80% correlation is considered "high"
)

// AnnualizedStatistics is the default StatisticsProvider: sample mean and
// covariance of daily log returns scaled by the trading-day count.
type AnnualizedStatistics struct{}

// Annualize implements StatisticsProvider.
func (AnnualizedStatistics) Annualize(logReturns mat.Matrix, tradingDaysPerYear int) ([]float64, *mat.SymDense) {
	return formulas.Annualize(logReturns, tradingDaysPerYear)
}

// CorrelationPair is a pair of assets whose correlation exceeds the threshold.
type CorrelationPair struct {
	Symbol1     string  `json:"symbol1"`
	Symbol2     string  `json:"symbol2"`
	Correlation float64 `json:"correlation"`
}

// Moments is an annualized risk model for a set of assets.
type Moments struct {
	Symbols         []string
	ExpectedReturns []float64
	Covariance      *mat.SymDense
	Observations    int
}

// RiskModelBuilder builds expected returns and covariance matrices from price history.
type RiskModelBuilder struct {
	stats       StatisticsProvider
	tradingDays int
	log         zerolog.Logger
}

// NewRiskModelBuilder creates a new risk model builder. A nil provider falls
// back to AnnualizedStatistics.
func NewRiskModelBuilder(stats StatisticsProvider, tradingDays int, log zerolog.Logger) *RiskModelBuilder {
	if stats == nil {
		stats = AnnualizedStatistics{}
	}
	if tradingDays <= 0 {
		tradingDays = formulas.DefaultTradingDays
	}
	return &RiskModelBuilder{
		stats:       stats,
		tradingDays: tradingDays,
		log:         log.With().Str("component", "risk_model").Logger(),
	}
}

// TradingDays returns the annualization factor
func (rb *RiskModelBuilder) TradingDays() int {
	return rb.tradingDays
}

// Build derives the annualized moments of a price table.
func (rb *RiskModelBuilder) Build(prices *domain.PriceSeries) (*Moments, error) {
	return rb.BuildFromReturns(prices.LogReturns())
}

// BuildFromReturns derives the annualized moments of a log return series.
// At least two rows are required for a sample covariance.
func (rb *RiskModelBuilder) BuildFromReturns(returns *domain.LogReturnSeries) (*Moments, error) {
	if returns.Len() < 2 {
		return nil, fmt.Errorf("%w: %d return rows, need at least 2", domain.ErrInsufficientHistory, returns.Len())
	}

	mu, cov := rb.stats.Annualize(returns.Matrix(), rb.tradingDays)

	rb.log.Debug().
		Int("num_assets", returns.NumAssets()).
		Int("observations", returns.Len()).
		Msg("Built annualized risk model")

	return &Moments{
		Symbols:         returns.Symbols(),
		ExpectedReturns: mu,
		Covariance:      cov,
		Observations:    returns.Len(),
	}, nil
}

// Correlations returns every asset pair whose absolute correlation is at
// least threshold.
func (rb *RiskModelBuilder) Correlations(m *Moments, threshold float64) []CorrelationPair {
	n := len(m.Symbols)
	pairs := make([]CorrelationPair, 0)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			vi, vj := m.Covariance.At(i, i), m.Covariance.At(j, j)
			if vi <= 0 || vj <= 0 {
				continue
			}
			c := m.Covariance.At(i, j) / math.Sqrt(vi*vj)
			if math.Abs(c) >= threshold {
				pairs = append(pairs, CorrelationPair{
					Symbol1:     m.Symbols[i],
					Symbol2:     m.Symbols[j],
					Correlation: c,
				})
			}
		}
	}
	return pairs
}

// AssetStats returns annualized return and volatility per asset, for plotting
// the individual assets next to the frontier.
func (rb *RiskModelBuilder) AssetStats(m *Moments) (returns, volatilities []float64) {
	n := len(m.Symbols)
	returns = append([]float64(nil), m.ExpectedReturns...)
	volatilities = make([]float64, n)
	for i := 0; i < n; i++ {
		volatilities[i] = math.Sqrt(math.Max(m.Covariance.At(i, i), 0))
	}
	return returns, volatilities
}

// ReturnStats annualizes each asset's daily log returns on its own, without
// building a covariance matrix.
func (rb *RiskModelBuilder) ReturnStats(returns *domain.LogReturnSeries) (expected, volatilities []float64) {
	if returns.Len() == 0 {
		n := returns.NumAssets()
		return make([]float64, n), make([]float64, n)
	}
	return formulas.AnnualizedReturnAndVolatility(returns.Matrix(), rb.tradingDays)
}
