package backtest

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/optimization"
)

// identicalAssets builds rows+1 prices for n assets that move in lockstep.
func identicalAssets(t *testing.T, n, rows int) *domain.PriceSeries {
	t.Helper()
	symbols := make([]string, n)
	for j := range symbols {
		symbols[j] = string(rune('A' + j))
	}
	dates := make([]time.Time, rows+1)
	prices := make([][]float64, rows+1)
	for i := range prices {
		dates[i] = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
		p := 100 * math.Exp(0.001*float64(i)+0.01*math.Sin(float64(i)))
		prices[i] = make([]float64, n)
		for j := range prices[i] {
			prices[i][j] = p
		}
	}
	ps, err := domain.NewPriceSeries(symbols, dates, prices)
	require.NoError(t, err)
	return ps
}

type recordingStats struct {
	windows []int
}

func (r *recordingStats) Annualize(x mat.Matrix, days int) ([]float64, *mat.SymDense) {
	rows, _ := x.Dims()
	r.windows = append(r.windows, rows)
	return annualizer{}.Annualize(x, days)
}

func TestBacktester_IdenticalAssetsMaxSharpe(t *testing.T) {
	ps := identicalAssets(t, 3, 504)
	optimizer := optimization.NewMVOptimizer(zerolog.Nop())
	bt := NewBacktester(nil, zerolog.Nop())

	trace, err := bt.Run(context.Background(), ps, MaxSharpeStrategy(optimizer, false), DefaultParams())
	require.NoError(t, err)

	require.Len(t, trace.Entries, 12)
	for i, e := range trace.Entries {
		require.Len(t, e.Weights, 3)
		for _, w := range e.Weights {
			assert.InDelta(t, 1.0/3, w, 1e-4)
		}
		assert.Equal(t, ps.Dates[252+21*i], e.Date)
		if i > 0 {
			assert.True(t, e.Date.After(trace.Entries[i-1].Date), "dates must be strictly increasing")
		}
	}
}

func TestBacktester_TraceLength(t *testing.T) {
	tests := []struct {
		name     string
		rows     int
		lookback int
		freq     int
	}{
		{"even split", 504, 252, 21},
		{"partial last window", 10, 3, 4},
		{"one row left", 6, 5, 3},
		{"daily rebalance", 30, 10, 1},
		{"window larger than history", 5, 10, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps := identicalAssets(t, 2, tt.rows)
			stats := &recordingStats{}
			bt := NewBacktester(stats, zerolog.Nop())

			trace, err := bt.Run(context.Background(), ps, EqualWeightStrategy(), Params{
				LookbackWindowDays:     tt.lookback,
				RebalanceFrequencyDays: tt.freq,
			})
			require.NoError(t, err)

			want := 0
			if tt.rows > tt.lookback {
				want = (tt.rows - tt.lookback + tt.freq - 1) / tt.freq
			}
			assert.Len(t, trace.Entries, want)
			for _, rows := range stats.windows {
				assert.Equal(t, tt.lookback, rows)
			}
		})
	}
}

func TestBacktester_RealizedReturn(t *testing.T) {
	dates := make([]time.Time, 6)
	for i := range dates {
		dates[i] = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
	}
	ps, err := domain.NewPriceSeries([]string{"A", "B"}, dates, [][]float64{
		{100, 100},
		{110, 90},
		{121, 81},
		{110, 90},
		{121, 99},
		{133.1, 108.9},
	})
	require.NoError(t, err)

	fixed := StrategyFunc(func(mu []float64, _ mat.Symmetric, _ float64) ([]float64, bool) {
		return []float64{0.75, 0.25}, true
	})
	bt := NewBacktester(nil, zerolog.Nop())
	trace, err := bt.Run(context.Background(), ps, fixed, Params{LookbackWindowDays: 2, RebalanceFrequencyDays: 2})
	require.NoError(t, err)

	// 5 return rows, folds at i=0 (test rows 2,3) and i=2 (test row 4)
	require.Len(t, trace.Entries, 2)
	ret := ps.LogReturns()
	want := 0.0
	for _, r := range []int{2, 3} {
		row := ret.Row(r)
		want += 0.75*row[0] + 0.25*row[1]
	}
	assert.InDelta(t, want, trace.Entries[0].Return, 1e-15)
	assert.Equal(t, dates[2], trace.Entries[0].Date)
	assert.Equal(t, dates[4], trace.Entries[1].Date)
	assert.InDelta(t, 0.75*math.Log(1.1)+0.25*math.Log(1.1), trace.Entries[1].Return, 1e-12)
}

func TestBacktester_StrategyFallback(t *testing.T) {
	ps := identicalAssets(t, 3, 40)
	bt := NewBacktester(nil, zerolog.Nop())

	tests := []struct {
		name     string
		strategy Strategy
	}{
		{"absent", StrategyFunc(func([]float64, mat.Symmetric, float64) ([]float64, bool) { return nil, false })},
		{"wrong length", StrategyFunc(func([]float64, mat.Symmetric, float64) ([]float64, bool) { return []float64{1}, true })},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trace, err := bt.Run(context.Background(), ps, tt.strategy, Params{LookbackWindowDays: 20, RebalanceFrequencyDays: 5})
			require.NoError(t, err)
			require.Len(t, trace.Entries, 4)
			for _, e := range trace.Entries {
				assert.Equal(t, domain.UniformWeights(3), e.Weights)
			}
		})
	}
}

func TestBacktester_InvalidParams(t *testing.T) {
	ps := identicalAssets(t, 2, 20)
	bt := NewBacktester(nil, zerolog.Nop())

	_, err := bt.Run(context.Background(), ps, EqualWeightStrategy(), Params{LookbackWindowDays: 1, RebalanceFrequencyDays: 5})
	assert.Error(t, err)

	_, err = bt.Run(context.Background(), ps, EqualWeightStrategy(), Params{LookbackWindowDays: 5, RebalanceFrequencyDays: 0})
	assert.Error(t, err)

	_, err = bt.Run(context.Background(), ps, nil, DefaultParams())
	assert.ErrorIs(t, err, domain.ErrMissingDependency)
}

func TestBacktester_Cancelled(t *testing.T) {
	ps := identicalAssets(t, 2, 100)
	bt := NewBacktester(nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := bt.Run(ctx, ps, EqualWeightStrategy(), Params{LookbackWindowDays: 10, RebalanceFrequencyDays: 10})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSummarize(t *testing.T) {
	trace := &Trace{Entries: []Entry{{Return: 0.01}, {Return: 0.03}, {Return: -0.01}}}
	s := Summarize(trace, 21, 252)

	assert.Equal(t, 3, s.Periods)
	assert.InDelta(t, 0.03, s.CumulativeLogReturn, 1e-15)
	assert.InDelta(t, math.Expm1(0.03), s.TotalReturn, 1e-15)
	assert.InDelta(t, 0.01*12, s.AnnualizedReturn, 1e-12)
	assert.InDelta(t, 0.02*math.Sqrt(12), s.AnnualizedVolatility, 1e-12)

	empty := Summarize(&Trace{}, 21, 252)
	assert.Equal(t, 0, empty.Periods)
	assert.Equal(t, 0.0, empty.AnnualizedVolatility)
}

func TestNewStrategy(t *testing.T) {
	optimizer := optimization.NewMVOptimizer(zerolog.Nop())
	for _, name := range []string{StrategyMaxSharpe, StrategyMinVolatility, StrategyEqualWeight, ""} {
		s, ok := NewStrategy(name, optimizer, false)
		assert.True(t, ok, name)
		assert.NotNil(t, s)
	}
	_, ok := NewStrategy("momentum", optimizer, false)
	assert.False(t, ok)
}
