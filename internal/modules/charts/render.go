package charts

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/vicanso/go-charts/v2"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/backtest"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/modules/simulation"
)

// Chart dimensions in pixels
const (
	Width  = 900
	Height = 500
)

// ErrNoData is returned when there is nothing to plot.
var ErrNoData = errors.New("no data to plot")

// maxLabels is the row count above which daily series are aggregated weekly
const maxLabels = 400

// RenderPrices plots every column rebased to 100 at its first price.
func RenderPrices(ps *domain.PriceSeries) ([]byte, error) {
	if ps == nil || ps.Len() < 2 {
		return nil, ErrNoData
	}

	labels, values := ps.Dates, ps.Normalized(100)
	groupBy := "day"
	if ps.Len() > maxLabels {
		groupBy = "week"
	}
	xLabels, values := Aggregate(labels, values, groupBy)

	yMin, yMax := paddedRange(values)
	seriesList := charts.NewSeriesListDataFromValues(values, charts.ChartTypeLine)
	for i := range seriesList {
		seriesList[i].Name = ps.Symbols[i]
	}

	p, err := charts.Render(charts.ChartOption{SeriesList: seriesList},
		charts.TitleTextOptionFunc("Normalized prices", strings.Join(ps.Symbols, ", ")+" • base 100"),
		charts.XAxisOptionFunc(charts.XAxisOption{Data: xLabels, BoundaryGap: charts.FalseFlag(), SplitNumber: splitNumber(len(xLabels))}),
		charts.YAxisOptionFunc(charts.YAxisOption{Min: &yMin, Max: &yMax, DivideCount: 5}),
		charts.LegendOptionFunc(charts.LegendOption{Data: ps.Symbols}),
		charts.WidthOptionFunc(Width),
		charts.HeightOptionFunc(Height),
		charts.ThemeOptionFunc(charts.ThemeLight),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render price chart: %w", err)
	}
	return p.Bytes()
}

// AssetPoint is one asset's annualized risk and return.
type AssetPoint struct {
	Symbol     string  `json:"symbol"`
	Return     float64 `json:"expected_return"`
	Volatility float64 `json:"volatility"`
}

// RenderFrontier plots target return against volatility along the curve.
// The individual assets are listed in the subtitle.
func RenderFrontier(curve *optimization.FrontierCurve, assets []AssetPoint) ([]byte, error) {
	if curve == nil || len(curve.Points) == 0 {
		return nil, ErrNoData
	}

	xLabels := make([]string, len(curve.Points))
	returns := make([]float64, len(curve.Points))
	for i, pt := range curve.Points {
		xLabels[i] = fmt.Sprintf("%.1f%%", pt.Volatility*100)
		returns[i] = pt.TargetReturn * 100
	}

	parts := make([]string, len(assets))
	for i, a := range assets {
		parts[i] = fmt.Sprintf("%s %.1f%%/%.1f%%", a.Symbol, a.Return*100, a.Volatility*100)
	}
	subtitle := "return vs volatility"
	if len(parts) > 0 {
		subtitle = strings.Join(parts, " | ")
	}

	values := [][]float64{returns}
	yMin, yMax := paddedRange(values)
	p, err := charts.LineRender(values,
		charts.TitleTextOptionFunc("Efficient frontier", subtitle),
		charts.XAxisOptionFunc(charts.XAxisOption{Data: xLabels, BoundaryGap: charts.FalseFlag(), SplitNumber: splitNumber(len(xLabels))}),
		charts.YAxisOptionFunc(charts.YAxisOption{Min: &yMin, Max: &yMax, DivideCount: 5}),
		charts.WidthOptionFunc(Width),
		charts.HeightOptionFunc(Height),
		charts.ThemeOptionFunc(charts.ThemeLight),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render frontier chart: %w", err)
	}
	return p.Bytes()
}

// RenderSimulation plots the 5th, 50th and 95th percentile of portfolio value
// across paths for every day of the horizon, starting from 100.
func RenderSimulation(b *simulation.Bundle) ([]byte, error) {
	bands, err := PercentileBands(b, []float64{5, 50, 95})
	if err != nil {
		return nil, err
	}

	horizon := len(bands[0])
	xLabels := make([]string, horizon)
	for h := range xLabels {
		xLabels[h] = fmt.Sprintf("%d", h+1)
	}

	names := []string{"P5", "Median", "P95"}
	seriesList := charts.NewSeriesListDataFromValues(bands, charts.ChartTypeLine)
	for i := range seriesList {
		seriesList[i].Name = names[i]
	}

	yMin, yMax := paddedRange(bands)
	p, err := charts.Render(charts.ChartOption{SeriesList: seriesList},
		charts.TitleTextOptionFunc("Monte Carlo simulation", fmt.Sprintf("%d paths • %s sampling", len(b.Paths), b.Method)),
		charts.XAxisOptionFunc(charts.XAxisOption{Data: xLabels, BoundaryGap: charts.FalseFlag(), SplitNumber: splitNumber(horizon)}),
		charts.YAxisOptionFunc(charts.YAxisOption{Min: &yMin, Max: &yMax, DivideCount: 5}),
		charts.LegendOptionFunc(charts.LegendOption{Data: names}),
		charts.WidthOptionFunc(Width),
		charts.HeightOptionFunc(Height),
		charts.ThemeOptionFunc(charts.ThemeLight),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render simulation chart: %w", err)
	}
	return p.Bytes()
}

// PercentileBands returns, per percentile, the portfolio value 100·exp(path)
// at that percentile across all paths on each day.
func PercentileBands(b *simulation.Bundle, percentiles []float64) ([][]float64, error) {
	if b == nil || len(b.Paths) == 0 || len(b.Paths[0]) == 0 {
		return nil, ErrNoData
	}

	horizon := len(b.Paths[0])
	bands := make([][]float64, len(percentiles))
	for i := range bands {
		bands[i] = make([]float64, horizon)
	}

	day := make([]float64, len(b.Paths))
	for h := 0; h < horizon; h++ {
		for k, path := range b.Paths {
			day[k] = path[h]
		}
		for i, pct := range percentiles {
			v, err := stats.PercentileNearestRank(day, pct)
			if err != nil {
				return nil, fmt.Errorf("failed to compute percentile %.0f on day %d: %w", pct, h+1, err)
			}
			bands[i][h] = 100 * math.Exp(v)
		}
	}
	return bands, nil
}

// RenderBacktest plots the growth of 100 over the rebalance periods.
func RenderBacktest(trace *backtest.Trace) ([]byte, error) {
	if trace == nil || len(trace.Entries) == 0 {
		return nil, ErrNoData
	}

	xLabels := make([]string, len(trace.Entries)+1)
	equity := make([]float64, len(trace.Entries)+1)
	xLabels[0] = "start"
	equity[0] = 100
	cumulative := 0.0
	for i, e := range trace.Entries {
		cumulative += e.Return
		xLabels[i+1] = e.Date.Format(time.DateOnly)
		equity[i+1] = 100 * math.Exp(cumulative)
	}

	values := [][]float64{equity}
	yMin, yMax := paddedRange(values)
	p, err := charts.LineRender(values,
		charts.TitleTextOptionFunc("Rolling backtest", strings.Join(trace.Symbols, ", ")),
		charts.XAxisOptionFunc(charts.XAxisOption{Data: xLabels, BoundaryGap: charts.FalseFlag(), SplitNumber: splitNumber(len(xLabels))}),
		charts.YAxisOptionFunc(charts.YAxisOption{Min: &yMin, Max: &yMax, DivideCount: 5}),
		charts.WidthOptionFunc(Width),
		charts.HeightOptionFunc(Height),
		charts.ThemeOptionFunc(charts.ThemeLight),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render backtest chart: %w", err)
	}
	return p.Bytes()
}

// paddedRange returns the value range widened by 5% on each side.
func paddedRange(values [][]float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, series := range values {
		for _, v := range series {
			if math.IsNaN(v) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if math.IsInf(lo, 0) {
		return 0, 1
	}

	padding := (hi - lo) * 0.05
	if padding == 0 {
		padding = math.Max(math.Abs(hi)*0.05, 1)
	}
	return lo - padding, hi + padding
}

func splitNumber(labels int) int {
	if labels <= 30 {
		return max(labels/3, 3)
	}
	return 6
}
