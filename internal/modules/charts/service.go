// Package charts renders price, frontier, backtest and simulation charts as
// PNG and serves normalized price data for client-side plotting.
package charts

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/optimization"
)

// ChartDataPoint represents a single point on a chart
type ChartDataPoint struct {
	Time  string  `json:"time"`  // YYYY-MM-DD, YYYY-W## or YYYY-MM
	Value float64 `json:"value"` // Rebased to 100
}

// PriceLoader loads aligned price history.
type PriceLoader interface {
	Load(ctx context.Context, tickers []string, start, end *time.Time) (*domain.PriceSeries, error)
}

// Service provides chart data operations
type Service struct {
	prices    PriceLoader
	risk      *optimization.RiskModelBuilder
	optimizer *optimization.MVOptimizer
	log       zerolog.Logger
	now       func() time.Time
}

// NewService creates a new charts service
func NewService(
	prices PriceLoader,
	risk *optimization.RiskModelBuilder,
	optimizer *optimization.MVOptimizer,
	log zerolog.Logger,
) *Service {
	return &Service{
		prices:    prices,
		risk:      risk,
		optimizer: optimizer,
		log:       log.With().Str("service", "charts").Logger(),
		now:       time.Now,
	}
}

// GetPriceChart returns each ticker's prices rebased to 100, aggregated by
// groupBy ("day", "week" or "month").
func (s *Service) GetPriceChart(ctx context.Context, tickers []string, dateRange, groupBy string) (map[string][]ChartDataPoint, error) {
	ps, err := s.load(ctx, tickers, dateRange)
	if err != nil {
		return nil, err
	}

	labels, values := Aggregate(ps.Dates, ps.Normalized(100), groupBy)
	result := make(map[string][]ChartDataPoint, len(ps.Symbols))
	for j, symbol := range ps.Symbols {
		points := make([]ChartDataPoint, len(labels))
		for i, label := range labels {
			points[i] = ChartDataPoint{Time: label, Value: values[j][i]}
		}
		result[symbol] = points
	}
	return result, nil
}

// GetPricesPNG renders the normalized price chart.
func (s *Service) GetPricesPNG(ctx context.Context, tickers []string, dateRange string) ([]byte, error) {
	ps, err := s.load(ctx, tickers, dateRange)
	if err != nil {
		return nil, err
	}
	return RenderPrices(ps)
}

// GetAssets returns the annualized return and volatility of each ticker.
func (s *Service) GetAssets(ctx context.Context, tickers []string, dateRange string) ([]AssetPoint, error) {
	moments, err := s.moments(ctx, tickers, dateRange)
	if err != nil {
		return nil, err
	}
	return assetPoints(s.risk, moments), nil
}

// GetFrontierPNG solves the efficient frontier over the loaded history and
// renders it with the individual assets.
func (s *Service) GetFrontierPNG(ctx context.Context, tickers []string, dateRange string, opts optimization.FrontierOptions) ([]byte, error) {
	moments, err := s.moments(ctx, tickers, dateRange)
	if err != nil {
		return nil, err
	}

	curve, err := s.optimizer.Frontier(ctx, moments.ExpectedReturns, moments.Covariance, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to compute frontier: %w", err)
	}
	if len(curve.Dropped) > 0 {
		s.log.Debug().Int("dropped", len(curve.Dropped)).Msg("Frontier points dropped before plotting")
	}
	return RenderFrontier(curve, assetPoints(s.risk, moments))
}

func (s *Service) load(ctx context.Context, tickers []string, dateRange string) (*domain.PriceSeries, error) {
	start := RangeStart(dateRange, s.now())
	ps, err := s.prices.Load(ctx, tickers, start, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load prices: %w", err)
	}
	return ps, nil
}

func (s *Service) moments(ctx context.Context, tickers []string, dateRange string) (*optimization.Moments, error) {
	ps, err := s.load(ctx, tickers, dateRange)
	if err != nil {
		return nil, err
	}
	return s.risk.Build(ps)
}

func assetPoints(risk *optimization.RiskModelBuilder, m *optimization.Moments) []AssetPoint {
	returns, vols := risk.AssetStats(m)
	points := make([]AssetPoint, len(m.Symbols))
	for i, symbol := range m.Symbols {
		points[i] = AssetPoint{Symbol: symbol, Return: returns[i], Volatility: vols[i]}
	}
	return points
}

// Aggregate averages each column over calendar periods. groupBy is "week"
// (ISO week), "month", or anything else for one label per date.
func Aggregate(dates []time.Time, columns [][]float64, groupBy string) ([]string, [][]float64) {
	periodOf := func(d time.Time) string {
		switch groupBy {
		case "week":
			year, week := d.ISOWeek()
			return fmt.Sprintf("%d-W%02d", year, week)
		case "month":
			return d.Format("2006-01")
		default:
			return d.Format(time.DateOnly)
		}
	}

	index := make(map[string]int)
	var periods []string
	for _, d := range dates {
		p := periodOf(d)
		if _, ok := index[p]; !ok {
			index[p] = len(periods)
			periods = append(periods, p)
		}
	}
	sort.Strings(periods)
	for i, p := range periods {
		index[p] = i
	}

	out := make([][]float64, len(columns))
	for j, col := range columns {
		sums := make([]float64, len(periods))
		counts := make([]int, len(periods))
		for i, v := range col {
			k := index[periodOf(dates[i])]
			sums[k] += v
			counts[k]++
		}
		for k := range sums {
			sums[k] /= float64(counts[k])
		}
		out[j] = sums
	}
	return periods, out
}

// RangeStart converts a range string (1M, 3M, 6M, 1Y, 5Y, 10Y) to a start
// date before now. "all", "" and unknown ranges return nil, which leaves the
// price service default in place.
func RangeStart(rangeStr string, now time.Time) *time.Time {
	var start time.Time
	switch rangeStr {
	case "1M":
		start = now.AddDate(0, -1, 0)
	case "3M":
		start = now.AddDate(0, -3, 0)
	case "6M":
		start = now.AddDate(0, -6, 0)
	case "1Y":
		start = now.AddDate(-1, 0, 0)
	case "5Y":
		start = now.AddDate(-5, 0, 0)
	case "10Y":
		start = now.AddDate(-10, 0, 0)
	default:
		return nil
	}
	return &start
}
