package optimization

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/pkg/formulas"
)

// DefaultFrontierPoints is the grid size used when none is configured.
const DefaultFrontierPoints = 50

// MaxFrontierPoints bounds the grid of a single sweep.
const MaxFrontierPoints = 1000

// FrontierOptions controls a frontier sweep.
type FrontierOptions struct {
	Points     int
	AllowShort bool
	// Workers bounds the number of concurrent grid solves (0 = GOMAXPROCS).
	Workers int
}

// FrontierPoint is one solved grid point.
type FrontierPoint struct {
	Volatility   float64   `json:"volatility" msgpack:"volatility"`
	TargetReturn float64   `json:"target_return" msgpack:"target_return"`
	Weights      []float64 `json:"weights" msgpack:"weights"`
}

// FrontierCurve is the efficient frontier in ascending target-return order.
// Dropped lists the grid targets whose solve did not converge.
type FrontierCurve struct {
	Points  []FrontierPoint `json:"points" msgpack:"points"`
	Dropped []float64       `json:"dropped" msgpack:"dropped"`
}

// Frontier sweeps target returns from the equal-weight portfolio's return to
// the largest expected return and solves the minimum-volatility portfolio at
// each. Grid points are independent and solved concurrently; the output
// order always follows the grid.
func (mvo *MVOptimizer) Frontier(ctx context.Context, expectedReturns []float64, cov mat.Symmetric, opts FrontierOptions) (*FrontierCurve, error) {
	if err := validateInputs(expectedReturns, cov); err != nil {
		return nil, err
	}

	if opts.Points > MaxFrontierPoints {
		return nil, fmt.Errorf("%w: %d frontier points requested, at most %d allowed", domain.ErrInvalidRequest, opts.Points, MaxFrontierPoints)
	}

	grid := frontierGrid(expectedReturns, opts.Points)
	curve := &FrontierCurve{Points: []FrontierPoint{}, Dropped: []float64{}}
	if len(grid) == 0 {
		return curve, nil
	}

	b := newBounds(len(expectedReturns), opts.AllowShort)
	solved := make([]*FrontierPoint, len(grid))

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, target := range grid {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			// Reported volatility uses the unregularized covariance.
			res, ok := mvo.targetReturn(expectedReturns, cov, 0, target, b)
			if ok {
				solved[i] = &FrontierPoint{
					Volatility:   res.Volatility,
					TargetReturn: target,
					Weights:      res.Weights,
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, p := range solved {
		if p == nil {
			curve.Dropped = append(curve.Dropped, grid[i])
			continue
		}
		curve.Points = append(curve.Points, *p)
	}

	mvo.log.Debug().
		Int("grid", len(grid)).
		Int("solved", len(curve.Points)).
		Int("dropped", len(curve.Dropped)).
		Msg("Frontier sweep complete")

	return curve, nil
}

// frontierGrid returns points equally spaced targets from the equal-weight
// return to max(μ), both inclusive. A single point yields the equal-weight
// return.
func frontierGrid(mu []float64, points int) []float64 {
	if points <= 0 {
		return nil
	}
	start := formulas.PortfolioReturn(domain.UniformWeights(len(mu)), mu)
	if points == 1 {
		return []float64{start}
	}
	grid := make([]float64, points)
	floats.Span(grid, start, floats.Max(mu))
	return grid
}
