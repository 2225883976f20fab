package testing

import (
	"math"
	"time"

	"github.com/aristath/frontier/internal/domain"
)

// FixtureStart is the first date of every generated price table
var FixtureStart = time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)

// NewPriceFixture returns rows prices for each symbol on consecutive days.
// Each asset follows its own deterministic drift and oscillation, so the
// covariance matrix is well conditioned for up to a handful of assets.
func NewPriceFixture(symbols []string, rows int) *domain.PriceSeries {
	dates := make([]time.Time, rows)
	prices := make([][]float64, rows)
	for i := range prices {
		dates[i] = FixtureStart.AddDate(0, 0, i)
		prices[i] = make([]float64, len(symbols))
		for j := range symbols {
			drift := 0.0002 * float64(j+1)
			wave := 0.02 * math.Sin(float64(i)/float64(3+2*j)+float64(j))
			prices[i][j] = 100 * math.Exp(drift*float64(i)+wave)
		}
	}

	ps, err := domain.NewPriceSeries(symbols, dates, prices)
	if err != nil {
		panic(err)
	}
	return ps
}
