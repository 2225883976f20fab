package domain

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"
)

// LogReturnSeries holds daily log returns. Row i spans the close on Starts[i]
// to the close on Dates[i]. The series is read-only once built.
type LogReturnSeries struct {
	symbols []string
	starts  []time.Time
	dates   []time.Time
	data    *mat.Dense // nil when the series has no rows
}

// NewLogReturnSeries builds a series from explicit rows. starts and dates must
// both have one entry per row.
func NewLogReturnSeries(symbols []string, starts, dates []time.Time, rows [][]float64) (*LogReturnSeries, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: no symbols", ErrDimensionMismatch)
	}
	if len(starts) != len(rows) || len(dates) != len(rows) {
		return nil, fmt.Errorf("%w: %d rows, %d start dates, %d end dates",
			ErrDimensionMismatch, len(rows), len(starts), len(dates))
	}
	data := make([]float64, 0, len(rows)*len(symbols))
	for i, row := range rows {
		if len(row) != len(symbols) {
			return nil, fmt.Errorf("%w: row %d has %d values, expected %d", ErrDimensionMismatch, i, len(row), len(symbols))
		}
		data = append(data, row...)
	}
	return newLogReturnSeries(symbols, starts, dates, data), nil
}

func newLogReturnSeries(symbols []string, starts, dates []time.Time, data []float64) *LogReturnSeries {
	s := &LogReturnSeries{
		symbols: append([]string(nil), symbols...),
		starts:  append([]time.Time(nil), starts...),
		dates:   append([]time.Time(nil), dates...),
	}
	if len(dates) > 0 {
		s.data = mat.NewDense(len(dates), len(symbols), data)
	}
	return s
}

// Len returns the number of return rows
func (s *LogReturnSeries) Len() int {
	return len(s.dates)
}

// NumAssets returns the number of asset columns
func (s *LogReturnSeries) NumAssets() int {
	return len(s.symbols)
}

// Symbols returns a copy of the asset symbols in column order
func (s *LogReturnSeries) Symbols() []string {
	return append([]string(nil), s.symbols...)
}

// Start returns the date of the opening price of row i
func (s *LogReturnSeries) Start(i int) time.Time {
	return s.starts[i]
}

// Date returns the date of the closing price of row i
func (s *LogReturnSeries) Date(i int) time.Time {
	return s.dates[i]
}

// Row returns a copy of row i
func (s *LogReturnSeries) Row(i int) []float64 {
	return mat.Row(nil, i, s.data)
}

// Matrix returns a read-only view of all rows, or nil for an empty series.
func (s *LogReturnSeries) Matrix() mat.Matrix {
	if s.data == nil {
		return nil
	}
	return s.data
}

// Window returns a read-only view of rows [from, to). It panics when the
// range is empty or out of bounds, matching slice semantics.
func (s *LogReturnSeries) Window(from, to int) mat.Matrix {
	if from < 0 || to > s.Len() || from >= to {
		panic(fmt.Sprintf("domain: invalid return window [%d, %d) for %d rows", from, to, s.Len()))
	}
	return s.data.Slice(from, to, 0, s.NumAssets())
}
