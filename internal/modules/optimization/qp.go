package optimization

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	feasibilityTol = 1e-9
	multiplierTol  = 1e-10
	svdRankCond    = 1e-12
)

// quadProgram describes
//
//	minimize ½x'Qx + c'x  subject to  A x = b,  G x ≤ h
//
// with dense rows. c, A and G may be nil.
type quadProgram struct {
	q   mat.Symmetric
	c   []float64
	aEq *mat.Dense
	bEq []float64
	g   *mat.Dense
	h   []float64
}

type qpResult struct {
	x          []float64
	iterations int
	converged  bool
}

func (p *quadProgram) numEq() int {
	if p.aEq == nil {
		return 0
	}
	r, _ := p.aEq.Dims()
	return r
}

func (p *quadProgram) numIneq() int {
	if p.g == nil {
		return 0
	}
	r, _ := p.g.Dims()
	return r
}

// solveQP runs a primal active-set method from the feasible point x0.
// The working set starts empty; a blocking inequality is added on every
// partial step and the one with the most negative multiplier is dropped when
// the equality-constrained subproblem is already solved.
func solveQP(p *quadProgram, x0 []float64, maxIter int) qpResult {
	n := len(x0)
	x := append([]float64(nil), x0...)
	mIn := p.numIneq()

	working := make([]int, 0, mIn)
	inWorking := make([]bool, mIn)
	step := make([]float64, n)

	for iter := 1; iter <= maxIter; iter++ {
		xStar, nu, ok := p.solveEquality(working)
		if !ok {
			return qpResult{x: x, iterations: iter, converged: false}
		}

		floats.SubTo(step, xStar, x)
		scale := math.Max(1, floats.Norm(x, math.Inf(1)))
		if floats.Norm(step, math.Inf(1)) <= 1e-12*scale {
			// Subproblem solved at x: check inequality multipliers.
			drop, worst := -1, -multiplierTol
			offset := p.numEq()
			for k := range working {
				if nu[offset+k] < worst {
					drop, worst = k, nu[offset+k]
				}
			}
			if drop < 0 {
				return qpResult{x: x, iterations: iter, converged: true}
			}
			inWorking[working[drop]] = false
			working = append(working[:drop], working[drop+1:]...)
			continue
		}

		alpha, blocking := 1.0, -1
		for i := 0; i < mIn; i++ {
			if inWorking[i] {
				continue
			}
			row := p.g.RawRowView(i)
			gp := floats.Dot(row, step)
			if gp <= 1e-15 {
				continue
			}
			slack := math.Max(p.h[i]-floats.Dot(row, x), 0)
			if a := slack / gp; a < alpha {
				alpha, blocking = a, i
			}
		}

		if blocking < 0 {
			copy(x, xStar)
			continue
		}
		floats.AddScaled(x, alpha, step)
		working = append(working, blocking)
		inWorking[blocking] = true
	}

	return qpResult{x: x, iterations: maxIter, converged: false}
}

// solveEquality minimizes the objective subject to the equality rows and the
// inequality rows of the working set held at equality. It returns the
// minimizer and the multipliers (equality rows first, then working rows in
// order).
func (p *quadProgram) solveEquality(working []int) ([]float64, []float64, bool) {
	n := p.q.SymmetricDim()
	mEq := p.numEq()
	m := mEq + len(working)
	dim := n + m

	kkt := mat.NewDense(dim, dim, nil)
	rhs := mat.NewVecDense(dim, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			kkt.Set(i, j, p.q.At(i, j))
		}
		if p.c != nil {
			rhs.SetVec(i, -p.c[i])
		}
	}

	setRow := func(r int, row []float64, b float64) {
		for j, v := range row {
			kkt.Set(n+r, j, v)
			kkt.Set(j, n+r, v)
		}
		rhs.SetVec(n+r, b)
	}
	for r := 0; r < mEq; r++ {
		setRow(r, p.aEq.RawRowView(r), p.bEq[r])
	}
	for k, i := range working {
		setRow(mEq+k, p.g.RawRowView(i), p.h[i])
	}

	var sol mat.VecDense
	if err := sol.SolveVec(kkt, rhs); err != nil || hasNaN(sol.RawVector().Data) {
		// Singular or badly conditioned KKT system (redundant equality rows or
		// a rank-deficient covariance): take the minimum-norm least-squares solution.
		var svd mat.SVD
		if !svd.Factorize(kkt, mat.SVDFull) {
			return nil, nil, false
		}
		rank := svd.Rank(svdRankCond)
		if rank == 0 {
			return nil, nil, false
		}
		sol.Reset()
		svd.SolveVecTo(&sol, rhs, rank)
	}

	raw := sol.RawVector().Data
	if hasNaN(raw) {
		return nil, nil, false
	}
	x := append([]float64(nil), raw[:n]...)
	nu := append([]float64(nil), raw[n:]...)
	return x, nu, true
}

// ridge returns Σ + δI with δ small relative to the mean variance. It keeps
// the subproblems strictly convex for singular covariances (for example
// perfectly correlated assets) without moving well-posed solutions.
func ridge(cov mat.Symmetric) *mat.SymDense {
	n := cov.SymmetricDim()
	out := mat.NewSymDense(n, nil)
	out.CopySym(cov)
	var trace float64
	for i := 0; i < n; i++ {
		trace += cov.At(i, i)
	}
	delta := 1e-8 * math.Max(trace/float64(n), 1e-8)
	for i := 0; i < n; i++ {
		out.SetSym(i, i, out.At(i, i)+delta)
	}
	return out
}

func hasNaN(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return true
		}
	}
	return false
}
