package optimization

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/frontier/internal/domain"
)

// bounds is the per-asset box of the feasible set. Long-only portfolios
// live in [0, 1]; when shorting is allowed the lower bound is dropped.
type bounds struct {
	n     int
	short bool
}

func newBounds(n int, allowShort bool) bounds {
	return bounds{n: n, short: allowShort}
}

func (b bounds) lower() float64 {
	if b.short {
		return math.Inf(-1)
	}
	return 0
}

func (b bounds) upper() float64 {
	return 1
}

// rows returns the inequality rows G w ≤ h of the box. Long-only only needs
// w ≥ 0 since the budget row implies w ≤ 1.
func (b bounds) rows() (*mat.Dense, []float64) {
	g := mat.NewDense(b.n, b.n, nil)
	h := make([]float64, b.n)
	for i := 0; i < b.n; i++ {
		if b.short {
			g.Set(i, i, 1)
			h[i] = 1
		} else {
			g.Set(i, i, -1)
		}
	}
	return g, h
}

func (b bounds) clip(x []float64) []float64 {
	w := make([]float64, len(x))
	lo, hi := b.lower(), b.upper()
	for i, v := range x {
		w[i] = math.Min(math.Max(v, lo), hi)
	}
	return w
}

// feasible reports whether w satisfies the budget to 1e-6 and the box.
func (b bounds) feasible(w []float64) bool {
	var sum float64
	lo, hi := b.lower(), b.upper()
	for _, v := range w {
		if math.IsNaN(v) || v < lo-1e-9 || v > hi+1e-9 {
			return false
		}
		sum += v
	}
	return math.Abs(sum-1) <= 1e-6
}

// project returns the Euclidean projection of x onto {Σw = 1, lo ≤ w ≤ hi},
// found by bisection on the shift τ in w_i = clip(x_i - τ).
func (b bounds) project(x []float64) []float64 {
	n := len(x)
	lo, hi := b.lower(), b.upper()
	sumAt := func(tau float64) float64 {
		var s float64
		for _, v := range x {
			s += math.Min(math.Max(v-tau, lo), hi)
		}
		return s
	}

	minX, maxX := x[0], x[0]
	for _, v := range x {
		minX = math.Min(minX, v)
		maxX = math.Max(maxX, v)
	}
	// sumAt is non-increasing in τ; at tauLo every entry sits at hi (sum ≥ 1),
	// at tauHi every entry is at or below 1/n.
	tauLo := minX - hi
	tauHi := maxX - 1/float64(n)
	if !b.short {
		tauHi = maxX - lo
	}
	for iter := 0; iter < 200; iter++ {
		mid := 0.5 * (tauLo + tauHi)
		if sumAt(mid) > 1 {
			tauLo = mid
		} else {
			tauHi = mid
		}
		if tauHi-tauLo <= 1e-15*math.Max(1, math.Abs(mid)) {
			break
		}
	}

	w := make([]float64, n)
	tau := 0.5 * (tauLo + tauHi)
	var sum float64
	for i, v := range x {
		w[i] = math.Min(math.Max(v-tau, lo), hi)
		sum += w[i]
	}
	// Absorb the bisection residual in a coordinate with room to move.
	if r := 1 - sum; r != 0 {
		for i := range w {
			if nv := w[i] + r; nv >= lo && nv <= hi {
				w[i] = nv
				break
			}
		}
	}
	return w
}

// targetStart finds a point satisfying Σw = 1, μ'w = target and the box.
// It returns false when no such point exists.
func targetStart(mu []float64, target float64, b bounds) ([]float64, bool) {
	n := len(mu)
	lowIdx, highIdx := 0, 0
	for i := range mu {
		if mu[i] < mu[lowIdx] {
			lowIdx = i
		}
		if mu[i] > mu[highIdx] {
			highIdx = i
		}
	}
	lowMu, highMu := mu[lowIdx], mu[highIdx]
	tol := 1e-9 * math.Max(1, math.Abs(target))

	if highMu-lowMu <= 1e-15*math.Max(1, math.Abs(highMu)) {
		if math.Abs(target-highMu) <= tol {
			return domain.UniformWeights(n), true
		}
		return nil, false
	}

	if target >= lowMu-tol && target <= highMu+tol {
		t := math.Min(math.Max(target, lowMu), highMu)
		theta := (t - lowMu) / (highMu - lowMu)
		w := make([]float64, n)
		w[lowIdx] = 1 - theta
		w[highIdx] += theta
		return w, true
	}

	if !b.short {
		return nil, false
	}
	return dykstra(mu, target, b)
}

// extremeAssets returns the assets whose expected return equals target when
// target is max(μ) or min(μ), and nil otherwise.
func extremeAssets(mu []float64, target float64) []int {
	lowMu, highMu := mu[0], mu[0]
	for _, v := range mu {
		lowMu = math.Min(lowMu, v)
		highMu = math.Max(highMu, v)
	}
	tol := 1e-9 * math.Max(1, math.Abs(target))
	if math.Abs(target-highMu) > tol && math.Abs(target-lowMu) > tol {
		return nil
	}
	var subset []int
	for i, v := range mu {
		if math.Abs(v-target) <= tol {
			subset = append(subset, i)
		}
	}
	return subset
}

// dykstra alternates projections between the affine set {Σw = 1, μ'w = t}
// and the box until both hold.
func dykstra(mu []float64, target float64, b bounds) ([]float64, bool) {
	n := len(mu)
	a := mat.NewDense(2, n, nil)
	a.SetRow(0, ones(n))
	a.SetRow(1, mu)
	rhs := mat.NewVecDense(2, []float64{1, target})

	// Projection onto the affine set: x - A'(AA')⁻¹(Ax - b)
	var aat mat.Dense
	aat.Mul(a, a.T())
	var inv mat.Dense
	if err := inv.Inverse(&aat); err != nil {
		return nil, false
	}
	projectAffine := func(x *mat.VecDense) *mat.VecDense {
		var r, y, corr mat.VecDense
		r.MulVec(a, x)
		r.SubVec(&r, rhs)
		y.MulVec(&inv, &r)
		corr.MulVec(a.T(), &y)
		var out mat.VecDense
		out.SubVec(x, &corr)
		return &out
	}

	lo, hi := b.lower(), b.upper()
	x := projectAffine(mat.NewVecDense(n, domain.UniformWeights(n)))
	p := mat.NewVecDense(n, nil)
	q := mat.NewVecDense(n, nil)

	for iter := 0; iter < 10000; iter++ {
		// box step
		var xp mat.VecDense
		xp.AddVec(x, p)
		y := mat.NewVecDense(n, nil)
		for i := 0; i < n; i++ {
			y.SetVec(i, math.Min(math.Max(xp.AtVec(i), lo), hi))
		}
		p.SubVec(&xp, y)

		// affine step
		var yq mat.VecDense
		yq.AddVec(y, q)
		x = projectAffine(&yq)
		q.SubVec(&yq, x)

		residual := 0.0
		for i := 0; i < n; i++ {
			v := x.AtVec(i)
			residual = math.Max(residual, math.Max(lo-v, v-hi))
		}
		if residual <= 1e-10 {
			w := make([]float64, n)
			for i := range w {
				w[i] = math.Min(math.Max(x.AtVec(i), lo), hi)
			}
			return w, true
		}
	}
	return nil, false
}
