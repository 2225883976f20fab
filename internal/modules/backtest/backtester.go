// Package backtest replays an allocation rule over history with periodic
// re-optimization on a sliding training window.
package backtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/pkg/formulas"
)

// StatisticsProvider turns a training window of daily log returns into
// annualized expected returns and covariance.
type StatisticsProvider interface {
	Annualize(logReturns mat.Matrix, tradingDaysPerYear int) ([]float64, *mat.SymDense)
}

type annualizer struct{}

func (annualizer) Annualize(logReturns mat.Matrix, tradingDaysPerYear int) ([]float64, *mat.SymDense) {
	return formulas.Annualize(logReturns, tradingDaysPerYear)
}

// Params controls a backtest run.
type Params struct {
	LookbackWindowDays     int     `json:"lookback_window_days" msgpack:"lookback_window_days"`
	RebalanceFrequencyDays int     `json:"rebalance_frequency_days" msgpack:"rebalance_frequency_days"`
	RiskFreeRate           float64 `json:"risk_free_rate" msgpack:"risk_free_rate"`
	TradingDaysPerYear     int     `json:"trading_days_per_year" msgpack:"trading_days_per_year"`
}

// DefaultParams returns one year of training data rebalanced monthly.
func DefaultParams() Params {
	return Params{
		LookbackWindowDays:     252,
		RebalanceFrequencyDays: 21,
		RiskFreeRate:           0.02,
		TradingDaysPerYear:     formulas.DefaultTradingDays,
	}
}

// Validate checks the window parameters.
func (p Params) Validate() error {
	if p.LookbackWindowDays < 2 {
		return fmt.Errorf("%w: lookback window must be at least 2 days, got %d", domain.ErrInvalidRequest, p.LookbackWindowDays)
	}
	if p.RebalanceFrequencyDays < 1 {
		return fmt.Errorf("%w: rebalance frequency must be at least 1 day, got %d", domain.ErrInvalidRequest, p.RebalanceFrequencyDays)
	}
	return nil
}

// Entry is one rebalance event.
type Entry struct {
	Date    time.Time `json:"date" msgpack:"date"`
	Return  float64   `json:"return" msgpack:"return"`
	Weights []float64 `json:"weights" msgpack:"weights"`
}

// Trace is the chronological list of rebalance events.
type Trace struct {
	Symbols []string `json:"symbols" msgpack:"symbols"`
	Entries []Entry  `json:"entries" msgpack:"entries"`
}

// fold is one train/test split over return rows, end indices exclusive.
type fold struct {
	TrainStart int
	TrainEnd   int
	TestStart  int
	TestEnd    int
}

// folds lays out the rolling windows over n return rows. The last training
// window always leaves at least one row for testing.
func folds(n, lookback, step int) []fold {
	var out []fold
	for i := 0; i+lookback < n; i += step {
		out = append(out, fold{
			TrainStart: i,
			TrainEnd:   i + lookback,
			TestStart:  i + lookback,
			TestEnd:    min(i+lookback+step, n),
		})
	}
	return out
}

// Backtester runs rolling out-of-sample backtests.
type Backtester struct {
	stats StatisticsProvider
	log   zerolog.Logger
}

// NewBacktester creates a backtester. A nil provider uses the sample
// mean/covariance annualization from pkg/formulas.
func NewBacktester(stats StatisticsProvider, log zerolog.Logger) *Backtester {
	if stats == nil {
		stats = annualizer{}
	}
	return &Backtester{
		stats: stats,
		log:   log.With().Str("component", "backtester").Logger(),
	}
}

// Run trains the strategy on each lookback window and holds the resulting
// weights, without intra-period rebalancing, over the following
// RebalanceFrequencyDays rows.
func (b *Backtester) Run(ctx context.Context, prices *domain.PriceSeries, strategy Strategy, params Params) (*Trace, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if strategy == nil {
		return nil, fmt.Errorf("%w: no strategy", domain.ErrMissingDependency)
	}

	returns := prices.LogReturns()
	n := returns.NumAssets()
	trace := &Trace{Symbols: returns.Symbols(), Entries: []Entry{}}

	for _, f := range folds(returns.Len(), params.LookbackWindowDays, params.RebalanceFrequencyDays) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		mu, cov := b.stats.Annualize(returns.Window(f.TrainStart, f.TrainEnd), params.TradingDaysPerYear)

		weights, ok := strategy.Weights(mu, cov, params.RiskFreeRate)
		if !ok || len(weights) != n {
			b.log.Debug().
				Int("train_start", f.TrainStart).
				Bool("ok", ok).
				Int("got", len(weights)).
				Int("want", n).
				Msg("Strategy returned no usable weights, using equal weights")
			weights = domain.UniformWeights(n)
		}

		if f.TestEnd <= f.TestStart {
			continue
		}

		var realized float64
		for r := f.TestStart; r < f.TestEnd; r++ {
			row := returns.Row(r)
			for j, w := range weights {
				realized += w * row[j]
			}
		}

		trace.Entries = append(trace.Entries, Entry{
			Date:    returns.Start(f.TestStart),
			Return:  realized,
			Weights: append([]float64(nil), weights...),
		})
	}

	b.log.Info().
		Int("rebalances", len(trace.Entries)).
		Int("return_rows", returns.Len()).
		Msg("Backtest complete")

	return trace, nil
}

// Summary aggregates the period returns of a trace.
type Summary struct {
	Periods              int     `json:"periods"`
	CumulativeLogReturn  float64 `json:"cumulative_log_return"`
	TotalReturn          float64 `json:"total_return"`
	AnnualizedReturn     float64 `json:"annualized_return"`
	AnnualizedVolatility float64 `json:"annualized_volatility"`
}

// Summarize annualizes the trace assuming periods of rebalanceDays trading days.
func Summarize(trace *Trace, rebalanceDays, tradingDays int) Summary {
	if tradingDays <= 0 {
		tradingDays = formulas.DefaultTradingDays
	}
	if rebalanceDays <= 0 {
		rebalanceDays = 1
	}
	periods := make([]float64, len(trace.Entries))
	var cumulative float64
	for i, e := range trace.Entries {
		periods[i] = e.Return
		cumulative += e.Return
	}

	perYear := float64(tradingDays) / float64(rebalanceDays)
	return Summary{
		Periods:              len(periods),
		CumulativeLogReturn:  cumulative,
		TotalReturn:          math.Expm1(cumulative),
		AnnualizedReturn:     formulas.Mean(periods) * perYear,
		AnnualizedVolatility: formulas.StdDev(periods) * math.Sqrt(perYear),
	}
}
