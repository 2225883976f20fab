package optimization

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/pkg/formulas"
)

// SolveStatus reports what happened to an optional solve.
type SolveStatus string

const (
	StatusNotRequested SolveStatus = "not_requested"
	StatusConverged    SolveStatus = "converged"
	StatusNotConverged SolveStatus = "not_converged"
)

// SolveOptions controls a mean-variance solve.
type SolveOptions struct {
	// TargetReturn requests the minimum-volatility portfolio with this expected return.
	TargetReturn *float64
	// AllowShort lifts the zero lower bound. The upper bound of 1 per asset stays.
	AllowShort bool
}

// Result holds the portfolios produced by one Solve call.
//
// Target is nil when no target was requested or when its solve did not
// converge; TargetStatus tells the two apart.
type Result struct {
	MaxSharpe     domain.PortfolioResult  `json:"max_sharpe" msgpack:"max_sharpe"`
	MinVolatility domain.PortfolioResult  `json:"min_volatility" msgpack:"min_volatility"`
	Target        *domain.PortfolioResult `json:"target,omitempty" msgpack:"target,omitempty"`
	TargetStatus  SolveStatus             `json:"target_status" msgpack:"target_status"`
}

// MVOptimizer performs mean-variance portfolio optimization.
type MVOptimizer struct {
	log zerolog.Logger
}

// NewMVOptimizer creates a new mean-variance optimizer.
func NewMVOptimizer(log zerolog.Logger) *MVOptimizer {
	return &MVOptimizer{
		log: log.With().Str("component", "mv_optimizer").Logger(),
	}
}

// Solve runs the max-Sharpe and min-volatility solves and, when requested,
// the target-return solve.
//
// Constraints:
//   - Σw = 1
//   - 0 ≤ w_i ≤ 1 (long-only) or w_i ≤ 1 (AllowShort)
//   - μ'w = target (target solve only)
//
// Non-convergence never produces an error: max-Sharpe and min-volatility
// return the best available weights with Converged=false, the target
// portfolio is omitted. Errors are reserved for malformed inputs.
func (mvo *MVOptimizer) Solve(
	expectedReturns []float64,
	cov mat.Symmetric,
	riskFreeRate float64,
	opts SolveOptions,
) (*Result, error) {
	if err := validateInputs(expectedReturns, cov); err != nil {
		return nil, err
	}

	b := newBounds(len(expectedReturns), opts.AllowShort)

	res := &Result{
		MaxSharpe:     mvo.maxSharpe(expectedReturns, cov, riskFreeRate, b),
		MinVolatility: mvo.minVolatility(expectedReturns, cov, riskFreeRate, b),
		TargetStatus:  StatusNotRequested,
	}

	if opts.TargetReturn != nil {
		target, ok := mvo.targetReturn(expectedReturns, cov, riskFreeRate, *opts.TargetReturn, b)
		if ok {
			res.Target = &target
			res.TargetStatus = StatusConverged
		} else {
			res.TargetStatus = StatusNotConverged
			mvo.log.Debug().Float64("target_return", *opts.TargetReturn).Msg("Target return solve did not converge, omitting")
		}
	}

	return res, nil
}

// minVolatility minimizes w'Σw from the uniform allocation.
func (mvo *MVOptimizer) minVolatility(mu []float64, cov mat.Symmetric, rf float64, b bounds) domain.PortfolioResult {
	n := len(mu)
	prog := &quadProgram{
		q:   ridge(cov),
		aEq: mat.NewDense(1, n, ones(n)),
		bEq: []float64{1},
	}
	prog.g, prog.h = b.rows()

	sol := solveQP(prog, domain.UniformWeights(n), maxIterations(n))
	w := b.clip(sol.x)
	converged := sol.converged && b.feasible(w)
	if !converged {
		mvo.log.Warn().Int("iterations", sol.iterations).Msg("Min volatility solve did not converge, returning best effort")
	}
	return portfolio(w, mu, cov, rf, 0, converged)
}

// targetReturn minimizes w'Σw subject to μ'w = target.
func (mvo *MVOptimizer) targetReturn(mu []float64, cov mat.Symmetric, rf, target float64, b bounds) (domain.PortfolioResult, bool) {
	n := len(mu)
	if !b.short {
		// At max(μ) or min(μ) the feasible set collapses onto the assets
		// sharing that return, a degenerate vertex for the active set.
		if subset := extremeAssets(mu, target); subset != nil {
			return mvo.targetOnSubset(mu, cov, rf, target, subset, b)
		}
	}
	start, ok := targetStart(mu, target, b)
	if !ok {
		return domain.PortfolioResult{}, false
	}

	aEq := mat.NewDense(2, n, nil)
	aEq.SetRow(0, ones(n))
	aEq.SetRow(1, mu)
	prog := &quadProgram{
		q:   ridge(cov),
		aEq: aEq,
		bEq: []float64{1, target},
	}
	prog.g, prog.h = b.rows()

	sol := solveQP(prog, start, maxIterations(n))
	if !sol.converged {
		return domain.PortfolioResult{}, false
	}
	w := b.clip(sol.x)
	if !b.feasible(w) || math.Abs(formulas.PortfolioReturn(w, mu)-target) > 1e-6*math.Max(1, math.Abs(target)) {
		return domain.PortfolioResult{}, false
	}
	return portfolio(w, mu, cov, rf, 0, true), true
}

// targetOnSubset solves the minimum-volatility portfolio restricted to the
// given assets, which all have expected return equal to target.
func (mvo *MVOptimizer) targetOnSubset(mu []float64, cov mat.Symmetric, rf, target float64, subset []int, b bounds) (domain.PortfolioResult, bool) {
	n, k := len(mu), len(subset)
	w := make([]float64, n)
	if k == 1 {
		w[subset[0]] = 1
		return portfolio(w, mu, cov, rf, 0, true), true
	}

	sub := mat.NewSymDense(k, nil)
	for i, a := range subset {
		for j := i; j < k; j++ {
			sub.SetSym(i, j, cov.At(a, subset[j]))
		}
	}
	prog := &quadProgram{
		q:   ridge(sub),
		aEq: mat.NewDense(1, k, ones(k)),
		bEq: []float64{1},
	}
	prog.g, prog.h = newBounds(k, false).rows()

	sol := solveQP(prog, domain.UniformWeights(k), maxIterations(k))
	if !sol.converged {
		return domain.PortfolioResult{}, false
	}
	for i, a := range subset {
		w[a] = sol.x[i]
	}
	w = b.clip(w)
	if !b.feasible(w) || math.Abs(formulas.PortfolioReturn(w, mu)-target) > 1e-6*math.Max(1, math.Abs(target)) {
		return domain.PortfolioResult{}, false
	}
	return portfolio(w, mu, cov, rf, 0, true), true
}

// maxSharpe maximizes (μ'w - r_f)/sqrt(w'Σw).
//
// With at least one asset above the risk-free rate the problem is solved as
// the convex program min y'Σy s.t. (μ-r_f)'y = 1 over the cone spanned by
// the feasible set, then rescaled by w = y/Σy. Otherwise it falls back to a
// Nelder-Mead search over the projection onto the feasible set.
func (mvo *MVOptimizer) maxSharpe(mu []float64, cov mat.Symmetric, rf float64, b bounds) domain.PortfolioResult {
	if w, ok := mvo.maxSharpeHomogeneous(mu, cov, rf, b); ok {
		return portfolio(w, mu, cov, rf, math.Inf(-1), true)
	}

	w, converged := mvo.maxSharpeSearch(mu, cov, rf, b)
	if !converged {
		mvo.log.Warn().Msg("Max Sharpe solve did not converge, returning best effort")
	}
	return portfolio(w, mu, cov, rf, math.Inf(-1), converged)
}

func (mvo *MVOptimizer) maxSharpeHomogeneous(mu []float64, cov mat.Symmetric, rf float64, b bounds) ([]float64, bool) {
	n := len(mu)
	excess := make([]float64, n)
	best := -1
	for i := range mu {
		excess[i] = mu[i] - rf
		if excess[i] > 0 && (best < 0 || excess[i] > excess[best]) {
			best = i
		}
	}
	if best < 0 {
		return nil, false
	}

	prog := &quadProgram{
		q:   ridge(cov),
		aEq: mat.NewDense(1, n, excess),
		bEq: []float64{1},
	}
	if b.short {
		// w_i ≤ 1  ⇔  y_i - Σy ≤ 0, plus Σy ≥ 0
		g := mat.NewDense(n+1, n, nil)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				g.Set(i, j, -1)
			}
			g.Set(i, i, 0)
			g.Set(n, i, -1)
		}
		prog.g, prog.h = g, make([]float64, n+1)
	} else {
		// w_i ≥ 0  ⇔  y_i ≥ 0; w_i ≤ 1 follows from Σw = 1
		g := mat.NewDense(n, n, nil)
		for i := 0; i < n; i++ {
			g.Set(i, i, -1)
		}
		prog.g, prog.h = g, make([]float64, n)
	}

	y0 := make([]float64, n)
	y0[best] = 1 / excess[best]

	sol := solveQP(prog, y0, maxIterations(n))
	if !sol.converged {
		return nil, false
	}
	var kappa float64
	for _, v := range sol.x {
		kappa += v
	}
	if kappa <= 1e-12 {
		return nil, false
	}
	w := make([]float64, n)
	for i, v := range sol.x {
		w[i] = v / kappa
	}
	w = b.clip(w)
	return w, b.feasible(w)
}

// maxSearchStarts bounds the number of single-asset starts tried by the
// Nelder-Mead fallback in addition to the uniform allocation.
const maxSearchStarts = 8

// maxSharpeSearch minimizes the negative Sharpe ratio of the projected point
// with Nelder-Mead. The search is local, so it restarts from the uniform
// allocation and from the single-asset portfolios of the assets with the
// best individual Sharpe ratios, and keeps the best point found.
func (mvo *MVOptimizer) maxSharpeSearch(mu []float64, cov mat.Symmetric, rf float64, b bounds) ([]float64, bool) {
	n := len(mu)
	initial := domain.UniformWeights(n)
	if n == 1 {
		return initial, true
	}

	negSharpe := func(x []float64) float64 {
		w := b.project(x)
		vol := formulas.PortfolioVolatility(w, cov)
		if vol == 0 {
			return 1e12
		}
		return -(formulas.PortfolioReturn(w, mu) - rf) / vol
	}
	problem := optimize.Problem{Func: negSharpe}

	var (
		best      []float64
		bestValue = math.Inf(1)
		converged bool
	)
	for _, start := range searchStarts(mu, cov, rf) {
		result, err := optimize.Minimize(problem, start, &optimize.Settings{MajorIterations: 2000 * n}, &optimize.NelderMead{})
		if result == nil {
			mvo.log.Debug().Err(err).Msg("Nelder-Mead returned no location")
			continue
		}
		w := b.project(result.X)
		if v := negSharpe(w); v < bestValue {
			best, bestValue = w, v
			converged = err == nil && isSuccess(result.Status)
		}
	}
	if best == nil {
		return initial, false
	}
	return best, converged
}

// searchStarts returns the uniform allocation followed by single-asset
// portfolios ordered by the asset's own Sharpe ratio.
func searchStarts(mu []float64, cov mat.Symmetric, rf float64) [][]float64 {
	n := len(mu)
	order := make([]int, n)
	score := make([]float64, n)
	for i := range order {
		order[i] = i
		score[i] = math.Inf(-1)
		if sd := math.Sqrt(cov.At(i, i)); sd > 0 {
			score[i] = (mu[i] - rf) / sd
		}
	}
	sort.SliceStable(order, func(a, b int) bool { return score[order[a]] > score[order[b]] })

	starts := [][]float64{domain.UniformWeights(n)}
	for _, i := range order[:min(n, maxSearchStarts)] {
		vertex := make([]float64, n)
		vertex[i] = 1
		starts = append(starts, vertex)
	}
	return starts
}

func isSuccess(status optimize.Status) bool {
	switch status {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence, optimize.StepConvergence:
		return true
	default:
		return false
	}
}

// portfolio builds the result snapshot. zeroVolSharpe is the Sharpe ratio
// reported when the volatility is exactly zero.
func portfolio(w, mu []float64, cov mat.Symmetric, rf, zeroVolSharpe float64, converged bool) domain.PortfolioResult {
	ret := formulas.PortfolioReturn(w, mu)
	vol := formulas.PortfolioVolatility(w, cov)
	sharpe := zeroVolSharpe
	if vol > 0 {
		sharpe = (ret - rf) / vol
	}
	return domain.PortfolioResult{
		Weights:    w,
		Return:     ret,
		Volatility: vol,
		Sharpe:     sharpe,
		Converged:  converged,
	}
}

func validateInputs(mu []float64, cov mat.Symmetric) error {
	n := len(mu)
	if n == 0 {
		return fmt.Errorf("%w: no assets provided", domain.ErrDimensionMismatch)
	}
	if cov == nil || cov.SymmetricDim() != n {
		dim := 0
		if cov != nil {
			dim = cov.SymmetricDim()
		}
		return fmt.Errorf("%w: covariance matrix size %d doesn't match asset count %d", domain.ErrDimensionMismatch, dim, n)
	}
	for i := 0; i < n; i++ {
		if math.IsNaN(mu[i]) || math.IsInf(mu[i], 0) {
			return fmt.Errorf("expected return %d is not finite", i)
		}
		for j := 0; j <= i; j++ {
			if v := cov.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("covariance entry (%d,%d) is not finite", i, j)
			}
		}
	}
	return nil
}

func maxIterations(n int) int {
	return 100 + 20*n
}

func ones(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}
