package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestMeanAndStdDev(t *testing.T) {
	tests := []struct {
		name    string
		data    []float64
		mean    float64
		std     float64
		epsilon float64
	}{
		{"empty", nil, 0, 0, 0},
		{"single value", []float64{0.5}, 0.5, 0, 0},
		{"symmetric", []float64{-1, 1}, 0, math.Sqrt2, 1e-12},
		{"constant", []float64{0.01, 0.01, 0.01}, 0.01, 0, 1e-15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.mean, Mean(tt.data), tt.epsilon+1e-15)
			assert.InDelta(t, tt.std, StdDev(tt.data), tt.epsilon+1e-15)
		})
	}
}

func TestSampleMoments(t *testing.T) {
	x := mat.NewDense(4, 2, []float64{
		0.01, 0.02,
		0.03, 0.00,
		-0.01, 0.04,
		0.01, 0.02,
	})

	mu, cov := SampleMoments(x)
	require.Len(t, mu, 2)
	assert.InDelta(t, 0.01, mu[0], 1e-12)
	assert.InDelta(t, 0.02, mu[1], 1e-12)

	// Column 0 deviations: 0, .02, -.02, 0 -> var = .0008/3
	assert.InDelta(t, 0.0008/3, cov.At(0, 0), 1e-15)
	// Cross: (0*0 + .02*-.02 + -.02*.02 + 0*0)/3
	assert.InDelta(t, -0.0008/3, cov.At(0, 1), 1e-15)
	assert.Equal(t, cov.At(0, 1), cov.At(1, 0))
}

func TestSampleMoments_SingleRow(t *testing.T) {
	x := mat.NewDense(1, 3, []float64{0.1, 0.2, 0.3})
	mu, cov := SampleMoments(x)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, mu)
	assert.Equal(t, 3, cov.SymmetricDim())
	assert.Equal(t, 0.0, cov.At(1, 1))
}

func TestAnnualize(t *testing.T) {
	x := mat.NewDense(3, 1, []float64{0.001, 0.002, 0.003})

	mu, cov := Annualize(x, 252)
	assert.InDelta(t, 0.002*252, mu[0], 1e-12)
	assert.InDelta(t, 1e-6*252, cov.At(0, 0), 1e-15)

	muDefault, _ := Annualize(x, 0)
	assert.InDelta(t, mu[0], muDefault[0], 1e-15, "non-positive days fall back to 252")
}

func TestAnnualizedReturnAndVolatility(t *testing.T) {
	x := mat.NewDense(2, 2, []float64{
		0.01, 0.0,
		-0.01, 0.0,
	})

	rets, vols := AnnualizedReturnAndVolatility(x, 252)
	assert.InDelta(t, 0, rets[0], 1e-15)
	assert.InDelta(t, math.Sqrt(0.0002)*math.Sqrt(252), vols[0], 1e-12)
	assert.Equal(t, 0.0, vols[1])
}

func TestPortfolioMetrics(t *testing.T) {
	cov := mat.NewSymDense(2, []float64{
		0.04, 0.01,
		0.01, 0.09,
	})
	w := []float64{0.5, 0.5}

	assert.InDelta(t, 0.15, PortfolioReturn(w, []float64{0.1, 0.2}), 1e-15)
	// 0.25*0.04 + 2*0.25*0.01 + 0.25*0.09 = 0.0375
	assert.InDelta(t, 0.0375, PortfolioVariance(w, cov), 1e-15)
	assert.InDelta(t, math.Sqrt(0.0375), PortfolioVolatility(w, cov), 1e-15)
	assert.Equal(t, 0.0, PortfolioVariance(nil, cov))
}
