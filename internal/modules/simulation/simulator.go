// Package simulation samples correlated daily return paths for a fixed
// portfolio from the fitted mean and covariance of its history.
package simulation

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/pkg/formulas"
)

// Sampling methods
const (
	MethodCholesky = "cholesky"
	MethodEigen    = "eigen"
)

// maxCholeskyCond rejects factorizations of numerically singular matrices.
// Such covariances are sampled through the eigen path even when Cholesky
// succeeds, so per-seed draws differ from a factor-whenever-possible rule
// while the sampled distribution stays the same.
const maxCholeskyCond = 1e12

// Upper bounds on a single run. Paths are held in memory, so the product of
// trials and horizon is capped as well.
const (
	MaxSimulations = 1_000_000
	MaxHorizonDays = 10 * formulas.DefaultTradingDays
	MaxPathValues  = 50_000_000
)

// DefaultSeed is used when callers ask for reproducible output without
// picking a seed.
const DefaultSeed uint64 = 42

// Options controls a simulation run.
type Options struct {
	Simulations int
	HorizonDays int
	// Seed makes the run reproducible. nil draws a fresh seed.
	Seed *uint64
	// Workers bounds concurrent trials (0 = GOMAXPROCS).
	Workers int
}

// Validate checks the run size against the limits above.
func (o Options) Validate() error {
	if o.HorizonDays < 1 || o.HorizonDays > MaxHorizonDays {
		return fmt.Errorf("%w: horizon must be between 1 and %d days, got %d", domain.ErrInvalidRequest, MaxHorizonDays, o.HorizonDays)
	}
	if o.Simulations < 0 || o.Simulations > MaxSimulations {
		return fmt.Errorf("%w: simulation count must be between 0 and %d, got %d", domain.ErrInvalidRequest, MaxSimulations, o.Simulations)
	}
	if o.Simulations*o.HorizonDays > MaxPathValues {
		return fmt.Errorf("%w: %d simulations of %d days exceed %d path values", domain.ErrInvalidRequest, o.Simulations, o.HorizonDays, MaxPathValues)
	}
	return nil
}

// DefaultOptions returns 10000 one-year trials seeded with DefaultSeed.
func DefaultOptions() Options {
	seed := DefaultSeed
	return Options{
		Simulations: 10000,
		HorizonDays: formulas.DefaultTradingDays,
		Seed:        &seed,
	}
}

// Bundle holds the simulated outcomes. Paths[k][d] is the cumulative log
// return of trial k after day d; Returns[k] equals Paths[k][HorizonDays-1].
type Bundle struct {
	Returns []float64   `json:"returns" msgpack:"returns"`
	Paths   [][]float64 `json:"paths" msgpack:"paths"`
	Method  string      `json:"method" msgpack:"method"`
	Seed    uint64      `json:"seed" msgpack:"seed"`
}

// Simulator runs Monte Carlo simulations.
type Simulator struct {
	log zerolog.Logger
}

// NewSimulator creates a new simulator.
func NewSimulator(log zerolog.Logger) *Simulator {
	return &Simulator{
		log: log.With().Str("component", "monte_carlo").Logger(),
	}
}

// Simulate draws opts.Simulations independent paths of opts.HorizonDays
// daily portfolio returns w'r, r ~ N(μ, Σ), where μ and Σ are the daily
// sample moments of the full history. Σ is factored by Cholesky, or by its
// eigen decomposition when it is not positive definite.
//
// Trial k draws from its own stream seeded (seed, k), so the output does not
// depend on how trials are scheduled across workers.
func (s *Simulator) Simulate(ctx context.Context, weights []float64, returns *domain.LogReturnSeries, opts Options) (*Bundle, error) {
	n := returns.NumAssets()
	if len(weights) != n {
		return nil, fmt.Errorf("%w: %d weights for %d assets", domain.ErrDimensionMismatch, len(weights), n)
	}
	if returns.Len() < 2 {
		return nil, fmt.Errorf("%w: %d return rows, need at least 2", domain.ErrInsufficientHistory, returns.Len())
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	var seed uint64
	if opts.Seed != nil {
		seed = *opts.Seed
	} else {
		seed = rand.Uint64()
	}

	mu, cov := formulas.SampleMoments(returns.Matrix())
	draw, method := newSampler(mu, cov)

	s.log.Debug().
		Str("method", method).
		Int("simulations", opts.Simulations).
		Int("horizon_days", opts.HorizonDays).
		Uint64("seed", seed).
		Msg("Starting Monte Carlo simulation")

	bundle := &Bundle{
		Returns: make([]float64, opts.Simulations),
		Paths:   make([][]float64, opts.Simulations),
		Method:  method,
		Seed:    seed,
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for k := 0; k < opts.Simulations; k++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			path := runTrial(rand.NewPCG(seed, uint64(k)), draw, weights, opts.HorizonDays)
			bundle.Paths[k] = path
			bundle.Returns[k] = path[len(path)-1]
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return bundle, nil
}

// sampler draws one day of asset returns into dst from src.
type sampler func(dst []float64, src rand.Source) []float64

// runTrial accumulates horizon daily portfolio returns w'r, r ~ N(μ, Σ).
func runTrial(src rand.Source, draw sampler, weights []float64, horizon int) []float64 {
	path := make([]float64, horizon)
	day := make([]float64, len(weights))
	var cum float64
	for d := 0; d < horizon; d++ {
		day = draw(day, src)
		cum += floats.Dot(weights, day)
		path[d] = cum
	}
	return path
}

// newSampler picks the multivariate normal draw for N(μ, Σ): the Cholesky
// factor when Σ is well conditioned, otherwise the eigen decomposition with
// negative eigenvalues clipped to zero.
func newSampler(mu []float64, cov *mat.SymDense) (sampler, string) {
	var chol mat.Cholesky
	if chol.Factorize(cov) && chol.Cond() < maxCholeskyCond {
		return func(dst []float64, src rand.Source) []float64 {
			return distmv.NormalRand(dst, mu, &chol, src)
		}, MethodCholesky
	}

	var eig mat.EigenSym
	if !eig.Factorize(cov, true) {
		// Not expected for a finite symmetric matrix: let gonum pivot.
		return func(dst []float64, src rand.Source) []float64 {
			return distmv.NormalRandCov(dst, mu, cov, src)
		}, MethodEigen
	}
	psd := distmv.NewPositivePartEigenSym(&eig)
	return func(dst []float64, src rand.Source) []float64 {
		return distmv.NormalRandCov(dst, mu, psd, src)
	}, MethodEigen
}
