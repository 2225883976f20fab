// Package domain provides core domain models and types.
package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"
)

// PriceSeries is a date-ordered table of adjusted closing prices with one
// column per asset. NaN marks a missing observation.
type PriceSeries struct {
	Symbols []string
	Dates   []time.Time
	Prices  [][]float64 // Prices[row][asset]
}

// NewPriceSeries validates and builds a price table.
//
// Dates must be strictly increasing, every row must hold one value per symbol,
// observed prices must be positive and no symbol may be missing on every date.
func NewPriceSeries(symbols []string, dates []time.Time, prices [][]float64) (*PriceSeries, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: no symbols", ErrInvalidPriceSeries)
	}
	if len(dates) != len(prices) {
		return nil, fmt.Errorf("%w: %d dates for %d rows", ErrInvalidPriceSeries, len(dates), len(prices))
	}

	observed := make([]bool, len(symbols))
	for i, row := range prices {
		if i > 0 && !dates[i].After(dates[i-1]) {
			return nil, fmt.Errorf("%w: date %s is not after %s",
				ErrInvalidPriceSeries, dates[i].Format(time.DateOnly), dates[i-1].Format(time.DateOnly))
		}
		if len(row) != len(symbols) {
			return nil, fmt.Errorf("%w: row %d has %d values, expected %d", ErrInvalidPriceSeries, i, len(row), len(symbols))
		}
		for j, p := range row {
			if math.IsNaN(p) {
				continue
			}
			if p <= 0 || math.IsInf(p, 0) {
				return nil, fmt.Errorf("%w: non-positive price %v for %s on %s",
					ErrInvalidPriceSeries, p, symbols[j], dates[i].Format(time.DateOnly))
			}
			observed[j] = true
		}
	}

	for j, ok := range observed {
		if !ok && len(prices) > 0 {
			return nil, fmt.Errorf("%w: no prices for %s", ErrInvalidPriceSeries, symbols[j])
		}
	}

	return &PriceSeries{
		Symbols: append([]string(nil), symbols...),
		Dates:   append([]time.Time(nil), dates...),
		Prices:  copyRows(prices),
	}, nil
}

// Len returns the number of dates
func (p *PriceSeries) Len() int {
	return len(p.Dates)
}

// NumAssets returns the number of asset columns
func (p *PriceSeries) NumAssets() int {
	return len(p.Symbols)
}

// Column returns a copy of the prices of asset j
func (p *PriceSeries) Column(j int) []float64 {
	col := make([]float64, len(p.Prices))
	for i, row := range p.Prices {
		col[i] = row[j]
	}
	return col
}

// Normalized rebases every column so its first observed price equals base.
func (p *PriceSeries) Normalized(base float64) [][]float64 {
	out := make([][]float64, p.NumAssets())
	for j := range p.Symbols {
		col := p.Column(j)
		first := math.NaN()
		for _, v := range col {
			if !math.IsNaN(v) {
				first = v
				break
			}
		}
		for i, v := range col {
			col[i] = v / first * base
		}
		out[j] = col
	}
	return out
}

// LogReturns derives ln(p_t / p_{t-1}) for every asset. Rows with an
// undefined value in any column are dropped.
func (p *PriceSeries) LogReturns() *LogReturnSeries {
	n := p.NumAssets()
	var (
		starts []time.Time
		dates  []time.Time
		data   []float64
	)

	row := make([]float64, n)
	for i := 1; i < p.Len(); i++ {
		valid := true
		for j := 0; j < n; j++ {
			r := math.Log(p.Prices[i][j] / p.Prices[i-1][j])
			if math.IsNaN(r) || math.IsInf(r, 0) {
				valid = false
				break
			}
			row[j] = r
		}
		if !valid {
			continue
		}
		starts = append(starts, p.Dates[i-1])
		dates = append(dates, p.Dates[i])
		data = append(data, row...)
	}

	return newLogReturnSeries(p.Symbols, starts, dates, data)
}

// PortfolioResult is a solved allocation with its risk/return profile.
type PortfolioResult struct {
	Weights    []float64 `json:"weights" msgpack:"weights"`
	Return     float64   `json:"expected_return" msgpack:"expected_return"`
	Volatility float64   `json:"volatility" msgpack:"volatility"`
	Sharpe     float64   `json:"sharpe" msgpack:"sharpe"`
	Converged  bool      `json:"converged" msgpack:"converged"`
}

// MarshalJSON encodes a non-finite Sharpe ratio (zero volatility) as null,
// since JSON has no representation for infinities.
func (r PortfolioResult) MarshalJSON() ([]byte, error) {
	type Alias PortfolioResult
	var sharpe *float64
	if !math.IsInf(r.Sharpe, 0) && !math.IsNaN(r.Sharpe) {
		sharpe = &r.Sharpe
	}
	return json.Marshal(&struct {
		Alias
		Sharpe *float64 `json:"sharpe"`
	}{
		Alias:  Alias(r),
		Sharpe: sharpe,
	})
}

// UniformWeights returns the equal-weight allocation 1/n.
func UniformWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0 / float64(n)
	}
	return w
}

func copyRows(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// Observation is a single adjusted close for one symbol.
type Observation struct {
	Symbol string
	Date   time.Time
	Price  float64
}

// BuildPriceSeries aligns observations into a price table. Dates are
// truncated to the calendar day in UTC; a symbol without a price on a date
// gets NaN. Observations for symbols not listed are ignored, and a later
// observation for the same symbol and day replaces an earlier one.
func BuildPriceSeries(symbols []string, observations []Observation) (*PriceSeries, error) {
	column := make(map[string]int, len(symbols))
	for j, s := range symbols {
		column[s] = j
	}

	byDate := make(map[time.Time][]float64)
	for _, o := range observations {
		j, ok := column[o.Symbol]
		if !ok {
			continue
		}
		d := TruncateDay(o.Date)
		row, ok := byDate[d]
		if !ok {
			row = make([]float64, len(symbols))
			for k := range row {
				row[k] = math.NaN()
			}
			byDate[d] = row
		}
		row[j] = o.Price
	}

	dates := make([]time.Time, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(a, b int) bool { return dates[a].Before(dates[b]) })

	prices := make([][]float64, len(dates))
	for i, d := range dates {
		prices[i] = byDate[d]
	}
	return NewPriceSeries(symbols, dates, prices)
}

// TruncateDay returns midnight UTC of t's calendar day in UTC.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DropIncomplete returns a copy keeping only the dates on which every
// symbol has a price.
func (p *PriceSeries) DropIncomplete() *PriceSeries {
	out := &PriceSeries{Symbols: append([]string(nil), p.Symbols...)}
	for i, row := range p.Prices {
		complete := true
		for _, v := range row {
			if math.IsNaN(v) {
				complete = false
				break
			}
		}
		if complete {
			out.Dates = append(out.Dates, p.Dates[i])
			out.Prices = append(out.Prices, append([]float64(nil), row...))
		}
	}
	return out
}
