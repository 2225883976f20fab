package simulation

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/frontier/internal/domain"
)

// correlatedReturns builds a deterministic pseudo-random return history.
func correlatedReturns(t *testing.T, rows int, identical bool) *domain.LogReturnSeries {
	t.Helper()
	rng := rand.New(rand.NewPCG(7, 7))
	data := make([][]float64, rows)
	starts := make([]time.Time, rows)
	dates := make([]time.Time, rows)
	for i := range data {
		a := 0.0005 + 0.01*rng.NormFloat64()
		b := 0.0003 + 0.5*a + 0.008*rng.NormFloat64()
		if identical {
			b = a
		}
		data[i] = []float64{a, b}
		starts[i] = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
		dates[i] = starts[i].AddDate(0, 0, 1)
	}
	s, err := domain.NewLogReturnSeries([]string{"A", "B"}, starts, dates, data)
	require.NoError(t, err)
	return s
}

func seeded(seed uint64, sims, horizon, workers int) Options {
	return Options{Simulations: sims, HorizonDays: horizon, Seed: &seed, Workers: workers}
}

func TestSimulate_ShapeAndCumulativeIdentity(t *testing.T) {
	returns := correlatedReturns(t, 300, false)
	sim := NewSimulator(zerolog.Nop())

	bundle, err := sim.Simulate(context.Background(), []float64{0.6, 0.4}, returns, seeded(42, 50, 20, 0))
	require.NoError(t, err)

	assert.Equal(t, MethodCholesky, bundle.Method)
	assert.Equal(t, uint64(42), bundle.Seed)
	require.Len(t, bundle.Returns, 50)
	require.Len(t, bundle.Paths, 50)
	for k, path := range bundle.Paths {
		require.Len(t, path, 20)
		assert.Equal(t, bundle.Returns[k], path[19])
	}
}

func TestSimulate_Deterministic(t *testing.T) {
	returns := correlatedReturns(t, 300, false)
	sim := NewSimulator(zerolog.Nop())
	weights := []float64{0.5, 0.5}

	first, err := sim.Simulate(context.Background(), weights, returns, seeded(42, 64, 30, 1))
	require.NoError(t, err)
	second, err := sim.Simulate(context.Background(), weights, returns, seeded(42, 64, 30, 8))
	require.NoError(t, err)
	assert.Equal(t, first, second, "same seed must give identical output regardless of workers")

	other, err := sim.Simulate(context.Background(), weights, returns, seeded(43, 64, 30, 0))
	require.NoError(t, err)
	assert.NotEqual(t, first.Returns, other.Returns)
}

func TestSimulate_MatchesModelMoments(t *testing.T) {
	returns := correlatedReturns(t, 500, false)
	sim := NewSimulator(zerolog.Nop())
	weights := []float64{0.7, 0.3}
	horizon := 10

	bundle, err := sim.Simulate(context.Background(), weights, returns, seeded(1, 4000, horizon, 0))
	require.NoError(t, err)

	// Daily portfolio moments from the history.
	port := make([]float64, returns.Len())
	for i := range port {
		row := returns.Row(i)
		port[i] = weights[0]*row[0] + weights[1]*row[1]
	}
	var mean, sq float64
	for _, p := range port {
		mean += p
	}
	mean /= float64(len(port))
	for _, p := range port {
		sq += (p - mean) * (p - mean)
	}
	variance := sq / float64(len(port)-1)

	wantMean := float64(horizon) * mean
	wantStd := math.Sqrt(float64(horizon) * variance)

	summary, err := Summarize(bundle)
	require.NoError(t, err)
	assert.InDelta(t, wantMean, summary.Mean, 5*wantStd/math.Sqrt(4000))
	assert.InDelta(t, wantStd, summary.StdDev, 0.1*wantStd)
}

func TestSimulate_SingularCovarianceFallback(t *testing.T) {
	returns := correlatedReturns(t, 200, true)
	sim := NewSimulator(zerolog.Nop())

	bundle, err := sim.Simulate(context.Background(), []float64{0.5, 0.5}, returns, seeded(42, 20, 15, 0))
	require.NoError(t, err)

	assert.Equal(t, MethodEigen, bundle.Method)
	require.Len(t, bundle.Paths, 20)
	for k, path := range bundle.Paths {
		assert.Equal(t, bundle.Returns[k], path[14])
		assert.False(t, math.IsNaN(path[14]))
	}
}

func TestNewSampler(t *testing.T) {
	mu := []float64{0.001, -0.0005}
	tests := []struct {
		name   string
		cov    *mat.SymDense
		method string
	}{
		{"positive definite", mat.NewSymDense(2, []float64{1e-4, 2e-5, 2e-5, 4e-5}), MethodCholesky},
		{"rank deficient", mat.NewSymDense(2, []float64{1e-4, 1e-4, 1e-4, 1e-4}), MethodEigen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draw, method := newSampler(mu, tt.cov)
			assert.Equal(t, tt.method, method)

			first := make([][]float64, 3)
			src := rand.NewPCG(42, 7)
			for i := range first {
				first[i] = draw(nil, src)
			}
			src = rand.NewPCG(42, 7)
			for i := range first {
				assert.Equal(t, first[i], draw(nil, src))
			}
			if tt.method == MethodEigen {
				// Perfectly correlated assets move together around their means.
				for _, d := range first {
					assert.InDelta(t, d[0]-mu[0], d[1]-mu[1], 1e-8)
				}
			}
		})
	}
}

func TestSimulate_RandomSeed(t *testing.T) {
	returns := correlatedReturns(t, 100, false)
	sim := NewSimulator(zerolog.Nop())

	bundle, err := sim.Simulate(context.Background(), []float64{0.5, 0.5}, returns, Options{Simulations: 5, HorizonDays: 3})
	require.NoError(t, err)
	assert.Len(t, bundle.Returns, 5)

	// The chosen seed reproduces the run.
	again, err := sim.Simulate(context.Background(), []float64{0.5, 0.5}, returns, seeded(bundle.Seed, 5, 3, 0))
	require.NoError(t, err)
	assert.Equal(t, bundle.Returns, again.Returns)
}

func TestSimulate_InvalidInputs(t *testing.T) {
	returns := correlatedReturns(t, 100, false)
	sim := NewSimulator(zerolog.Nop())
	ctx := context.Background()

	_, err := sim.Simulate(ctx, []float64{1}, returns, DefaultOptions())
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	_, err = sim.Simulate(ctx, []float64{0.5, 0.5}, returns, seeded(1, 10, 0, 0))
	assert.Error(t, err)

	short := correlatedReturns(t, 1, false)
	_, err = sim.Simulate(ctx, []float64{0.5, 0.5}, short, DefaultOptions())
	assert.ErrorIs(t, err, domain.ErrInsufficientHistory)
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"defaults", DefaultOptions(), false},
		{"no trials", Options{Simulations: 0, HorizonDays: 1}, false},
		{"largest horizon", Options{Simulations: 1000, HorizonDays: MaxHorizonDays}, false},
		{"zero horizon", Options{Simulations: 10, HorizonDays: 0}, true},
		{"horizon too long", Options{Simulations: 10, HorizonDays: MaxHorizonDays + 1}, true},
		{"negative trials", Options{Simulations: -1, HorizonDays: 10}, true},
		{"too many trials", Options{Simulations: 2_000_000_000, HorizonDays: 10}, true},
		{"too many path values", Options{Simulations: MaxSimulations, HorizonDays: MaxHorizonDays}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidRequest)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSimulate_RejectsOversizedRun(t *testing.T) {
	returns := correlatedReturns(t, 100, false)
	sim := NewSimulator(zerolog.Nop())

	_, err := sim.Simulate(context.Background(), []float64{0.5, 0.5}, returns, seeded(1, 2_000_000_000, 10, 0))
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 10000, opts.Simulations)
	assert.Equal(t, 252, opts.HorizonDays)
	require.NotNil(t, opts.Seed)
	assert.Equal(t, uint64(42), *opts.Seed)
}

func TestSummarize(t *testing.T) {
	s, err := Summarize(&Bundle{Returns: []float64{0.2, -0.1, 0.1, 0}})
	require.NoError(t, err)

	assert.Equal(t, 4, s.Simulations)
	assert.InDelta(t, 0.05, s.Mean, 1e-15)
	assert.InDelta(t, 0.05, s.Median, 1e-15)
	assert.InDelta(t, -0.1, s.Percentile5, 1e-15)
	assert.InDelta(t, 0.2, s.Percentile95, 1e-15)
	assert.InDelta(t, math.Sqrt(0.05/3), s.StdDev, 1e-12)
	assert.Equal(t, 0.25, s.ProbabilityOfLoss)
	assert.InDelta(t, (math.Exp(0.2)+math.Exp(-0.1)+math.Exp(0.1)+1)/4, s.ExpectedGrowth, 1e-12)

	empty, err := Summarize(&Bundle{})
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Simulations)
}
